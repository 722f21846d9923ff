package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/storage"
)

func main() {
	envFlag := flag.String("env", "dev", "Environment (dev, test, prod)")
	envFileFlag := flag.String("env-file", "", "Path to .env file")
	driverFlag := flag.String("driver", "", "Override DB_DRIVER (mysql, postgres, sqlite)")
	printFlag := flag.Bool("print", false, "Print the schema instead of applying it")
	flag.Parse()

	loadEnv(*envFlag, *envFileFlag)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *driverFlag != "" {
		cfg.Database.Driver = *driverFlag
	}

	if *printFlag {
		schema, err := storage.Schema(cfg.Database.Driver)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(strings.Join(schema, ";\n\n") + ";")
		return
	}

	log := logger.NewLogger()
	defer log.Close()

	// Opening a store creates any missing tables and indexes.
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("MIGRATE", "Migration failed: "+err.Error())
	}
	defer store.Close()

	log.Info("MIGRATE", "Migration completed successfully")
}

func loadEnv(env string, envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			fmt.Printf("Loaded environment from %s\n", envFile)
			return
		}
	}

	envSpecificFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envSpecificFile); err == nil {
		fmt.Printf("Loaded environment from %s\n", envSpecificFile)
		return
	}

	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
		return
	}

	fmt.Println("No .env file found, using default or system environment variables")
}
