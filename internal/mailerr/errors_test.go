package mailerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(Connect, "mx.example.com", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connect")
	assert.Contains(t, err.Error(), "mx.example.com")
}

func TestErrorWithoutOp(t *testing.T) {
	err := New(DKIMSign, "", errors.New("bad key"))
	assert.Equal(t, "dkim_sign: bad key", err.Error())
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("wrapping: %w", New(TLSRequired, "mx.example.com", errors.New("no starttls")))
	assert.True(t, Is(err, TLSRequired))
	assert.False(t, Is(err, TLSHandshake))
	assert.False(t, Is(errors.New("plain"), TLSRequired))
}

func TestFromSMTPCode(t *testing.T) {
	t.Run("permanent", func(t *testing.T) {
		err := FromSMTPCode(550, "mx.example.com", "mailbox unavailable")
		require.Error(t, err)
		assert.True(t, Is(err, SMTPPermanent))
	})

	t.Run("transient", func(t *testing.T) {
		err := FromSMTPCode(421, "mx.example.com", "service unavailable")
		require.Error(t, err)
		assert.True(t, Is(err, SMTPTransient))
	})

	t.Run("success codes return nil", func(t *testing.T) {
		assert.NoError(t, FromSMTPCode(250, "mx.example.com", "OK"))
		assert.NoError(t, FromSMTPCode(354, "mx.example.com", "start mail input"))
	})
}
