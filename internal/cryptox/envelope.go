// Package cryptox implements the symmetric envelope protecting an account's
// storage passphrase. The envelope is AES-256-CBC with PKCS#7 padding and a
// fixed IV taken from an operator-supplied 16-byte secret; the cipher key is
// derived from the plaintext session token, which is never persisted.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
)

// chunkSize bounds the internal buffer the envelope processes data through.
const chunkSize = 4096

var (
	ErrInvalidSecret  = errors.New("secret must be exactly 16 bytes")
	ErrInvalidPadding = errors.New("invalid padding")
)

// DeriveKey turns a plaintext session token into a 256-bit cipher key.
// SHA-256 keeps the derivation one-way: once the token is gone, the
// envelope is unrecoverable until the next login.
func DeriveKey(token string) []byte {
	key := sha256.Sum256([]byte(token))
	return key[:]
}

// Encryptor encrypts and decrypts short secrets with a fixed IV derived
// once at process start.
type Encryptor struct {
	iv []byte
}

func NewEncryptor(secret string) (*Encryptor, error) {
	if len(secret) != aes.BlockSize {
		return nil, ErrInvalidSecret
	}
	return &Encryptor{iv: []byte(secret)}, nil
}

// Encrypt encrypts data under key (32 bytes, see DeriveKey).
func (e *Encryptor) Encrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	padded := pad(data, aes.BlockSize)
	enc := cipher.NewCBCEncrypter(block, e.iv)

	out := make([]byte, 0, len(padded))
	buf := make([]byte, chunkSize)
	for len(padded) > 0 {
		n := min(len(padded), chunkSize)
		enc.CryptBlocks(buf[:n], padded[:n])
		out = append(out, buf[:n]...)
		padded = padded[n:]
	}

	return out, nil
}

// Decrypt reverses Encrypt. A wrong key or tampered ciphertext surfaces as
// an error; callers treat it like a missing session but log it distinctly.
func (e *Encryptor) Decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidPadding
	}

	dec := cipher.NewCBCDecrypter(block, e.iv)

	out := make([]byte, 0, len(data))
	buf := make([]byte, chunkSize)
	for len(data) > 0 {
		n := min(len(data), chunkSize)
		dec.CryptBlocks(buf[:n], data[:n])
		out = append(out, buf[:n]...)
		data = data[n:]
	}

	return unpad(out, aes.BlockSize)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
