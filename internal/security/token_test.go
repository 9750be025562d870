package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGiftToken(t *testing.T) {
	a := NewGiftToken()
	b := NewGiftToken()

	assert.NotEqual(t, a, b)
	// 32 字节 RawURLEncoding 后固定 43 字符
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestHashGiftToken(t *testing.T) {
	h1 := HashGiftToken("secret", "token-a")
	h2 := HashGiftToken("secret", "token-a")
	h3 := HashGiftToken("secret", "token-b")
	h4 := HashGiftToken("other-secret", "token-a")

	// 同输入稳定，token 或密钥任一变化哈希必变
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
	assert.Len(t, h1, 64)
}

func TestContentTicket_RoundTrip(t *testing.T) {
	ticket, err := CreateContentTicket("secret", 123, 10*time.Minute)
	require.NoError(t, err)

	packetID, err := VerifyContentTicket("secret", ticket)
	require.NoError(t, err)
	assert.Equal(t, int64(123), packetID)
}

func TestContentTicket_Expired(t *testing.T) {
	ticket, err := CreateContentTicket("secret", 123, -time.Minute)
	require.NoError(t, err)

	_, err = VerifyContentTicket("secret", ticket)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestContentTicket_WrongSecret(t *testing.T) {
	ticket, err := CreateContentTicket("secret", 123, 10*time.Minute)
	require.NoError(t, err)

	_, err = VerifyContentTicket("another-secret", ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestContentTicket_Garbage(t *testing.T) {
	_, err := VerifyContentTicket("secret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrTicketInvalid)

	_, err = VerifyContentTicket("secret", "")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}
