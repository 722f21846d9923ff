package utils

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, TokenBytes)
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestGenerateIDs(t *testing.T) {
	_, err := uuid.Parse(GenerateUUID())
	assert.NoError(t, err)

	id := GeneratePaymentID()
	assert.True(t, strings.HasPrefix(id, "pay_"))
	assert.NotEqual(t, id, GeneratePaymentID())
}

func TestResponses(t *testing.T) {
	assert.Equal(t, gin.H{"ok": false, "error": "bad"}, ErrorResponse("bad", ""))
	assert.Equal(t, gin.H{"ok": false, "error": "bad", "details": "why"}, ErrorResponse("bad", "why"))
	assert.Equal(t, gin.H{"ok": true, "job": 1}, SuccessResponse(gin.H{"job": 1}))
}

func TestTimeHelpers(t *testing.T) {
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), UnixTimeToTime(1704067200))

	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%1000)
}
