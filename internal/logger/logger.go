package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes component-tagged lines to stdout and, optionally, a log file.
type Logger struct {
	mu    sync.Mutex
	base  io.Writer
	out   io.Writer
	file  *os.File
	level Level

	debugColor   *color.Color
	infoColor    *color.Color
	warnColor    *color.Color
	errorColor   *color.Color
	processColor *color.Color
	dbColor      *color.Color
	kafkaColor   *color.Color
	apiColor     *color.Color
	paymentColor *color.Color
	jobColor     *color.Color
	sessionColor *color.Color
	securityClr  *color.Color
}

func NewLogger() *Logger {
	return NewLoggerWithWriter(os.Stdout, LevelInfo)
}

func NewLoggerWithWriter(out io.Writer, level Level) *Logger {
	return &Logger{
		base:         out,
		out:          out,
		level:        level,
		debugColor:   color.New(color.FgHiBlack),
		infoColor:    color.New(color.FgGreen),
		warnColor:    color.New(color.FgYellow),
		errorColor:   color.New(color.FgRed, color.Bold),
		processColor: color.New(color.FgCyan),
		dbColor:      color.New(color.FgBlue),
		kafkaColor:   color.New(color.FgMagenta),
		apiColor:     color.New(color.FgHiCyan),
		paymentColor: color.New(color.FgHiGreen),
		jobColor:     color.New(color.FgHiBlue),
		sessionColor: color.New(color.FgHiMagenta),
		securityClr:  color.New(color.FgHiRed),
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return NewLoggerWithWriter(io.Discard, LevelError+1)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// OpenFile tees all further output into path, appending.
func (l *Logger) OpenFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.file = f
	l.out = io.MultiWriter(l.out, f)
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.out = l.base
		return err
	}
	return nil
}

func (l *Logger) write(level Level, c *color.Color, tag, component, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.out, "%s %s [%s] %s\n", ts, c.Sprintf("%-8s", tag), component, msg)
}

func (l *Logger) Debug(component, msg string) {
	l.write(LevelDebug, l.debugColor, "DEBUG", component, msg)
}

func (l *Logger) Info(component, msg string) {
	l.write(LevelInfo, l.infoColor, "INFO", component, msg)
}

func (l *Logger) Warn(component, msg string) {
	l.write(LevelWarn, l.warnColor, "WARN", component, msg)
}

func (l *Logger) Error(component, msg string) {
	l.write(LevelError, l.errorColor, "ERROR", component, msg)
}

func (l *Logger) Fatal(component, msg string) {
	l.write(LevelError, l.errorColor, "FATAL", component, msg)
	l.Close()
	os.Exit(1)
}

func (l *Logger) LogProcess(component, msg string) {
	l.write(LevelInfo, l.processColor, "PROCESS", component, msg)
}

func (l *Logger) LogDatabase(op, db, msg string) {
	l.write(LevelDebug, l.dbColor, "DB", db+"/"+op, msg)
}

func (l *Logger) LogKafka(op, topic, msg string) {
	l.write(LevelInfo, l.kafkaColor, "KAFKA", topic+"/"+op, msg)
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, l.apiColor, "API", "HTTP", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogPayment(op, id, msg string) {
	l.write(LevelInfo, l.paymentColor, "PAYMENT", op, fmt.Sprintf("[%s] %s", id, msg))
}

func (l *Logger) LogJob(op, jobID, msg string) {
	l.write(LevelInfo, l.jobColor, "JOB", op, fmt.Sprintf("[%s] %s", jobID, msg))
}

// LogSession never prints the full token; qrID is shortened to its prefix.
func (l *Logger) LogSession(op, qrID, msg string) {
	l.write(LevelInfo, l.sessionColor, "SESSION", op, fmt.Sprintf("[%s] %s", TokenPrefix(qrID), msg))
}

func (l *Logger) LogSecurity(event, msg string) {
	l.write(LevelWarn, l.securityClr, "SECURITY", event, msg)
}

// TokenPrefix shortens a bearer-style secret for log output.
func TokenPrefix(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "..."
}
