package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box := New("s3cr3t-notification-key")

	token, err := box.Encrypt("AC-twilio-sid-123")
	require.NoError(t, err)
	assert.NotContains(t, token, "twilio")

	plain, err := box.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "AC-twilio-sid-123", plain)
}

func TestEncryptNoncesDiffer(t *testing.T) {
	box := New("key")
	a, err := box.Encrypt("same")
	require.NoError(t, err)
	b, err := box.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	token, err := New("key-one").Encrypt("secret")
	require.NoError(t, err)

	_, err = New("key-two").Decrypt(token)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptTampered(t *testing.T) {
	box := New("key")
	token, err := box.Encrypt("secret")
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-5] ^= 'x'
	_, err = box.Decrypt(string(tampered))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptGarbage(t *testing.T) {
	box := New("key")
	for _, bad := range []string{"", "not base64!!", "c2hvcnQ="} {
		_, err := box.Decrypt(bad)
		assert.ErrorIs(t, err, ErrDecrypt, bad)
	}
}

func TestEncryptEmpty(t *testing.T) {
	box := New("key")
	token, err := box.Encrypt("")
	require.NoError(t, err)
	plain, err := box.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}
