package vaultcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Payloads use the OpenSSL "enc" container: "Salted__" + 8 byte salt + AES-256-CBC ciphertext
// with PKCS#7 padding. Key and IV come from PBKDF2-SHA256 over the password and salt.
const (
	saltedMagic   = "Salted__"
	saltLen       = 8
	headerLen     = len(saltedMagic) + saltLen
	pbkdf2Rounds  = 20000
	derivedKeyLen = 32
)

var (
	ErrEmptyPassword = errors.New("empty password")
	ErrDecrypt       = errors.New("decrypt failed")
)

func deriveKeyIV(password string, salt []byte) ([]byte, []byte) {
	dk := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, derivedKeyLen+aes.BlockSize, sha256.New)
	return dk[:derivedKeyLen], dk[derivedKeyLen:]
}

// EncryptBytes encrypts plain with a fresh random salt.
func EncryptBytes(plain []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return encryptWithSalt(plain, password, salt)
}

func encryptWithSalt(plain []byte, password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	key, iv := deriveKeyIV(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, headerLen+len(padded))
	copy(out, saltedMagic)
	copy(out[len(saltedMagic):], salt)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[headerLen:], padded)
	return out, nil
}

// DecryptBytes reverses EncryptBytes. A wrong password almost always surfaces as ErrDecrypt
// through the padding check, but not always: callers decrypting names must still check
// the result with IsPlausibleText.
func DecryptBytes(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(data) < headerLen+aes.BlockSize || !bytes.HasPrefix(data, []byte(saltedMagic)) {
		return nil, fmt.Errorf("%w: malformed payload", ErrDecrypt)
	}

	body := data[headerLen:]
	if len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: payload is not block aligned", ErrDecrypt)
	}

	key, iv := deriveKeyIV(password, data[len(saltedMagic):headerLen])
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return pkcs7Unpad(plain, aes.BlockSize)
}

// EncryptedSize maps a plaintext size to the size EncryptBytes produces for it.
func EncryptedSize(size int64) int64 {
	return int64(headerLen) + (size/aes.BlockSize+1)*aes.BlockSize
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return b[:len(b)-n], nil
}
