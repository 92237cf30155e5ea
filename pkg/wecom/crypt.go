// Package wecom implements the WeCom AI bot callback envelope: signatures, AES-CBC message
// encryption and the JSON message shapes exchanged with the platform.
package wecom

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // mandated by the callback protocol
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	encodingAESKeyLength = 43
	randomPrefixLength   = 16
	lengthFieldSize      = 4
	paddingBlockSize     = 32
)

var (
	ErrInvalidAESKey      = errors.New("invalid encoding AES key")
	ErrInvalidSignature   = errors.New("message signature mismatch")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrInvalidPadding     = errors.New("invalid PKCS#7 padding")
	ErrMalformedFrame     = errors.New("malformed decrypted frame")
	ErrReceiveIDMismatch  = errors.New("receive id mismatch")
	ErrMissingCredentials = errors.New("callback token is required")
)

// EncryptedReply is the JSON body returned to the platform for an encrypted response.
type EncryptedReply struct {
	Encrypt      string `json:"encrypt"`
	MsgSignature string `json:"msgsignature"`
	Timestamp    string `json:"timestamp"`
	Nonce        string `json:"nonce"`
}

// Crypt signs, encrypts and decrypts callback payloads for one bot.
type Crypt struct {
	token     string
	key       []byte
	receiveID string
	random    io.Reader
}

// NewCrypt builds a Crypt from the token and the 43 character EncodingAESKey configured on the
// platform. receiveID may be empty, in which case the frame's receive id is not checked.
func NewCrypt(token, encodingAESKey, receiveID string) (*Crypt, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	if len(encodingAESKey) != encodingAESKeyLength {
		return nil, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidAESKey, encodingAESKeyLength, len(encodingAESKey))
	}

	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAESKey, err)
	}

	return &Crypt{
		token:     token,
		key:       key,
		receiveID: receiveID,
		random:    rand.Reader,
	}, nil
}

// Signature is the SHA1 of token, timestamp, nonce and the encrypted text, sorted and concatenated.
func (c *Crypt) Signature(timestamp, nonce, encrypted string) string {
	parts := []string{c.token, timestamp, nonce, encrypted}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, ""))) //nolint:gosec // mandated by the callback protocol

	return hex.EncodeToString(sum[:])
}

// VerifyURL answers the platform's URL verification handshake with the decrypted echostr.
func (c *Crypt) VerifyURL(signature, timestamp, nonce, echostr string) (string, error) {
	plaintext, err := c.Decrypt(echostr, signature, timestamp, nonce)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// Decrypt checks the signature and returns the message carried by the encrypted frame.
func (c *Crypt) Decrypt(encrypted, signature, timestamp, nonce string) ([]byte, error) {
	expected := c.Signature(timestamp, nonce, encrypted)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return nil, ErrInvalidSignature
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCiphertext, err)
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of the block size", ErrInvalidCiphertext, len(ciphertext))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, c.key[:aes.BlockSize]).CryptBlocks(plain, ciphertext)

	plain, err = unpad(plain)
	if err != nil {
		return nil, err
	}

	if len(plain) < randomPrefixLength+lengthFieldSize {
		return nil, ErrMalformedFrame
	}

	content := plain[randomPrefixLength:]
	msgLen := int(binary.BigEndian.Uint32(content[:lengthFieldSize]))

	if msgLen > len(content)-lengthFieldSize {
		return nil, fmt.Errorf("%w: declared length %d exceeds frame", ErrMalformedFrame, msgLen)
	}

	msg := content[lengthFieldSize : lengthFieldSize+msgLen]
	receiveID := content[lengthFieldSize+msgLen:]

	if c.receiveID != "" && string(receiveID) != c.receiveID {
		return nil, ErrReceiveIDMismatch
	}

	return msg, nil
}

// Encrypt frames, pads and encrypts plaintext and signs the result with the given nonce and timestamp.
func (c *Crypt) Encrypt(plaintext []byte, nonce, timestamp string) (*EncryptedReply, error) {
	var frame bytes.Buffer

	prefix := make([]byte, randomPrefixLength)

	_, err := io.ReadFull(c.random, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random prefix: %w", err)
	}

	frame.Write(prefix)

	var length [lengthFieldSize]byte

	binary.BigEndian.PutUint32(length[:], uint32(len(plaintext))) //nolint:gosec // bounded by request size
	frame.Write(length[:])
	frame.Write(plaintext)
	frame.WriteString(c.receiveID)

	padded := pad(frame.Bytes())

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.key[:aes.BlockSize]).CryptBlocks(ciphertext, padded)

	encrypted := base64.StdEncoding.EncodeToString(ciphertext)

	return &EncryptedReply{
		Encrypt:      encrypted,
		MsgSignature: c.Signature(timestamp, nonce, encrypted),
		Timestamp:    timestamp,
		Nonce:        nonce,
	}, nil
}

// pad applies PKCS#7 padding to a multiple of 32 bytes.
func pad(data []byte) []byte {
	n := paddingBlockSize - len(data)%paddingBlockSize

	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}

	n := int(data[len(data)-1])
	if n < 1 || n > paddingBlockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}

	return data[:len(data)-n], nil
}
