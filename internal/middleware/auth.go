package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/utils"
)

const (
	userIDKey       = "user_id"
	deviceKeyHeader = "X-Device-Key"
)

// Claims is what the identity provider signs; the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

type UserAuth struct {
	secret []byte
	issuer string
	log    *logger.Logger
}

func NewUserAuth(cfg config.AuthConfig, log *logger.Logger) *UserAuth {
	return &UserAuth{secret: []byte(cfg.JWTSecret), issuer: cfg.JWTIssuer, log: log}
}

func (a *UserAuth) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// RequireUser rejects requests without a valid bearer token and stores
// the verified user id on the context.
func (a *UserAuth) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Authentication required", ""))
			return
		}

		claims, err := a.validateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.log.LogSecurity("AUTH_FAILED", fmt.Sprintf("Rejected token from %s: %v", c.ClientIP(), err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Invalid or expired token", ""))
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the id RequireUser verified.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// DeviceAuth requires printers to present a pre-registered key in
// X-Device-Key. With no hashes configured every caller is let through.
type DeviceAuth struct {
	hashes [][]byte
	log    *logger.Logger
}

func NewDeviceAuth(cfg config.AuthConfig, log *logger.Logger) *DeviceAuth {
	d := &DeviceAuth{log: log}
	for _, h := range cfg.DeviceKeyHashes {
		d.hashes = append(d.hashes, []byte(h))
	}
	return d
}

func (d *DeviceAuth) Enabled() bool { return len(d.hashes) > 0 }

func (d *DeviceAuth) RequireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.Enabled() {
			c.Next()
			return
		}

		key := c.GetHeader(deviceKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Device key required", ""))
			return
		}
		for _, h := range d.hashes {
			if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
				c.Next()
				return
			}
		}

		d.log.LogSecurity("DEVICE_REJECTED", fmt.Sprintf("Unknown device key from %s", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Unknown device", ""))
	}
}
