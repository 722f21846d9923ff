package utils

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx reply.
func ErrorResponse(message string, details string) gin.H {
	body := gin.H{
		"ok":    false,
		"error": message,
	}
	if details != "" {
		body["details"] = details
	}
	return body
}

func SuccessResponse(fields gin.H) gin.H {
	body := gin.H{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	return body
}

// UnixTimeToTime converts provider epoch seconds to UTC.
func UnixTimeToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Now is the server clock: UTC truncated to microseconds so it survives every backing store unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
