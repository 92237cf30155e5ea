package wecom

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // mandated by the callback protocol
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken  = "QDG6eK"
	testAESKey = "jWmYm7qr5nMoAUwZRjGtBxmz3KA1tkAj3ykkR6q2B2C"
)

func newTestCrypt(t *testing.T, receiveID string) *Crypt {
	t.Helper()

	crypt, err := NewCrypt(testToken, testAESKey, receiveID)
	require.NoError(t, err)

	return crypt
}

func TestNewCrypt_Validation(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		key     string
		wantErr error
	}{
		{name: "missing token", token: "", key: testAESKey, wantErr: ErrMissingCredentials},
		{name: "short key", token: testToken, key: "abc", wantErr: ErrInvalidAESKey},
		{name: "not base64", token: testToken, key: "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!", wantErr: ErrInvalidAESKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCrypt(tt.token, tt.key, "")
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignature_SortsParts(t *testing.T) {
	crypt := newTestCrypt(t, "")

	sum := sha1.Sum([]byte("1409659813" + "263014780" + testToken + "payload")) //nolint:gosec
	assert.Equal(t, hex.EncodeToString(sum[:]), crypt.Signature("1409659813", "263014780", "payload"))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	crypt := newTestCrypt(t, "")

	plaintext := []byte(`{"msgid":"m-1","msgtype":"text","text":{"content":"你好"}}`)

	reply, err := crypt.Encrypt(plaintext, "nonce-1", "1700000000")
	require.NoError(t, err)

	assert.Equal(t, "nonce-1", reply.Nonce)
	assert.Equal(t, "1700000000", reply.Timestamp)
	assert.Equal(t, crypt.Signature("1700000000", "nonce-1", reply.Encrypt), reply.MsgSignature)

	raw, err := base64.StdEncoding.DecodeString(reply.Encrypt)
	require.NoError(t, err)
	assert.Zero(t, len(raw)%paddingBlockSize)

	decrypted, err := crypt.Decrypt(reply.Encrypt, reply.MsgSignature, reply.Timestamp, reply.Nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_UsesRandomPrefix(t *testing.T) {
	crypt := newTestCrypt(t, "")
	crypt.random = bytes.NewReader(bytes.Repeat([]byte{7}, 2*randomPrefixLength))

	first, err := crypt.Encrypt([]byte("hello"), "n", "1")
	require.NoError(t, err)

	second, err := crypt.Encrypt([]byte("hello"), "n", "1")
	require.NoError(t, err)

	assert.Equal(t, first.Encrypt, second.Encrypt)

	_, err = crypt.Encrypt([]byte("hello"), "n", "1")
	require.Error(t, err)
}

func TestDecrypt_Rejections(t *testing.T) {
	crypt := newTestCrypt(t, "corp-a")

	reply, err := crypt.Encrypt([]byte("hello"), "n", "1")
	require.NoError(t, err)

	t.Run("signature mismatch", func(t *testing.T) {
		_, err := crypt.Decrypt(reply.Encrypt, "deadbeef", reply.Timestamp, reply.Nonce)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered timestamp", func(t *testing.T) {
		_, err := crypt.Decrypt(reply.Encrypt, reply.MsgSignature, "2", reply.Nonce)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("receive id mismatch", func(t *testing.T) {
		other := newTestCrypt(t, "corp-b")

		_, err := other.Decrypt(reply.Encrypt, reply.MsgSignature, reply.Timestamp, reply.Nonce)
		require.ErrorIs(t, err, ErrReceiveIDMismatch)
	})

	t.Run("receive id not checked when unset", func(t *testing.T) {
		open := newTestCrypt(t, "")

		msg, err := open.Decrypt(reply.Encrypt, reply.MsgSignature, reply.Timestamp, reply.Nonce)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(msg))
	})

	t.Run("not base64", func(t *testing.T) {
		bad := "%%%"

		_, err := crypt.Decrypt(bad, crypt.Signature("1", "n", bad), "1", "n")
		require.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("partial block", func(t *testing.T) {
		bad := base64.StdEncoding.EncodeToString([]byte("short"))

		_, err := crypt.Decrypt(bad, crypt.Signature("1", "n", bad), "1", "n")
		require.ErrorIs(t, err, ErrInvalidCiphertext)
	})
}

func TestVerifyURL(t *testing.T) {
	crypt := newTestCrypt(t, "")

	echo, err := crypt.Encrypt([]byte("1616140317555161061"), "nonce", "1597212914")
	require.NoError(t, err)

	plain, err := crypt.VerifyURL(echo.MsgSignature, echo.Timestamp, echo.Nonce, echo.Encrypt)
	require.NoError(t, err)
	assert.Equal(t, "1616140317555161061", plain)
}

func TestUnpad(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    []byte
		wantErr bool
	}{
		{name: "empty", data: nil, wantErr: true},
		{name: "zero", data: []byte{'a', 0}, wantErr: true},
		{name: "too long", data: []byte{'a', 33}, wantErr: true},
		{name: "exceeds data", data: []byte{3, 3}, wantErr: true},
		{name: "valid", data: []byte{'a', 'b', 2, 2}, want: []byte{'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := unpad(tt.data)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPadding)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStreamReply(t *testing.T) {
	body, err := json.Marshal(NewStreamReply("stream-1", true, "42"))
	require.NoError(t, err)

	assert.JSONEq(t, `{"msgtype":"stream","stream":{"id":"stream-1","finish":true,"content":"42"}}`, string(body))
}
