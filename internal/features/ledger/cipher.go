package ledger

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

const (
	keyLen      = 32
	nonceLen    = 12
	hkdfInfo    = "ledger-sync-token-vault"
	cipherLabel = "enc:v1:"
)

// TokenCipher encrypts tokens at rest with AES-256-GCM. Without a configured
// secret it passes values through unchanged and says so in the log.
type TokenCipher struct {
	key []byte
	log *zap.Logger
}

func NewTokenCipher(secret string, log *zap.Logger) (*TokenCipher, error) {
	c := &TokenCipher{log: log.Named("token_cipher")}
	if secret == "" {
		c.log.Warn("TOKEN_ENCRYPTION_KEY not set, OAuth tokens will be stored unencrypted")
		return c, nil
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	c.key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, c.key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return c, nil
}

// Enabled reports whether values are actually encrypted.
func (c *TokenCipher) Enabled() bool {
	return len(c.key) == keyLen
}

// Encrypt returns "enc:v1:" + base64(nonce || ciphertext).
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !c.Enabled() {
		return plaintext, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("random nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherLabel + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Unlabelled values are returned as stored.
func (c *TokenCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, cipherLabel) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", errors.New("token is encrypted but no encryption key is configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, cipherLabel))
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if len(raw) < nonceLen {
		return "", errors.New("ciphertext too short")
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (c *TokenCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}
