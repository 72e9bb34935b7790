// Package crypto seals account credentials before they reach a storage
// backend.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"

	xerrors "DroidRelay/internal/errors"
)

const (
	keyLength    = 32
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	DefaultSalt  = "droid-relay-salt"
	plainPrefix  = "plain:"
	sealedPrefix = "gcm:"
)

// Cipher encrypts and decrypts single string values.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESCipher seals values with AES-256-GCM using a key derived by scrypt.
type AESCipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewAESCipher derives the encryption key from secret and salt.
func NewAESCipher(secret, salt string) (*AESCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "encryption secret 不能为空")
	}
	if salt == "" {
		salt = DefaultSalt
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCryptoFailure, err, "派生加密密钥失败")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCryptoFailure, err, "初始化 AES 失败")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCryptoFailure, err, "初始化 GCM 失败")
	}
	return &AESCipher{aead: aead, rand: rand.Reader}, nil
}

// Encrypt returns "gcm:" followed by hex(nonce || sealed).
func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", xerrors.Wrap(xerrors.CodeCryptoFailure, err, "生成随机数失败")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values written by Plain are accepted as-is so a
// store can be switched to encryption without rewriting existing rows.
func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	if strings.HasPrefix(ciphertext, plainPrefix) {
		return strings.TrimPrefix(ciphertext, plainPrefix), nil
	}
	if !strings.HasPrefix(ciphertext, sealedPrefix) {
		return "", xerrors.New(xerrors.CodeCryptoFailure, "未知的密文格式")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(ciphertext, sealedPrefix))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeCryptoFailure, err, "解码密文失败")
	}
	size := c.aead.NonceSize()
	if len(raw) < size {
		return "", xerrors.New(xerrors.CodeCryptoFailure, "密文长度不足")
	}
	plain, err := c.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeCryptoFailure, err, "解密失败")
	}
	return string(plain), nil
}

// Plain stores values unencrypted behind a marker prefix.
type Plain struct{}

// Encrypt implements Cipher.
func (Plain) Encrypt(plaintext string) (string, error) {
	return plainPrefix + plaintext, nil
}

// Decrypt implements Cipher.
func (Plain) Decrypt(ciphertext string) (string, error) {
	if strings.HasPrefix(ciphertext, sealedPrefix) {
		return "", xerrors.New(xerrors.CodeCryptoFailure, "未配置加密密钥，无法解密")
	}
	return strings.TrimPrefix(ciphertext, plainPrefix), nil
}

var (
	_ Cipher = (*AESCipher)(nil)
	_ Cipher = Plain{}
)
