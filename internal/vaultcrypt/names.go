package vaultcrypt

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Encrypted names start with the encoded "Salted__" magic. Only the fully determined
// characters of the encoding are used as the prefix.
const (
	MagicPrefixBase32    = "KNQWY5DFMRPV"
	MagicPrefixBase64URL = "U2FsdGVkX1"

	defaultNameCacheSize = 4096
)

var (
	base32Enc    = base32.StdEncoding.WithPadding(base32.NoPadding)
	base64URLEnc = base64.RawURLEncoding
)

// Scheme identifies how an encrypted name is encoded.
type Scheme string

const (
	SchemeNone      Scheme = ""
	SchemeBase32    Scheme = "base32"
	SchemeBase64URL Scheme = "base64url"
)

// SchemeOf reports the encoding scheme of an at-rest name.
func SchemeOf(name string) Scheme {
	switch {
	case strings.HasPrefix(name, MagicPrefixBase32):
		return SchemeBase32
	case strings.HasPrefix(name, MagicPrefixBase64URL):
		return SchemeBase64URL
	default:
		return SchemeNone
	}
}

// EncryptName encrypts a logical name into the base64url form.
func EncryptName(name, password string) (string, error) {
	data, err := EncryptBytes([]byte(name), password)
	if err != nil {
		return "", err
	}
	return base64URLEnc.EncodeToString(data), nil
}

// EncryptNameBase32 encrypts a logical name into the legacy base32 form.
func EncryptNameBase32(name, password string) (string, error) {
	data, err := EncryptBytes([]byte(name), password)
	if err != nil {
		return "", err
	}
	return base32Enc.EncodeToString(data), nil
}

// DecryptName decrypts an at-rest name in either scheme.
func DecryptName(enc, password string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch SchemeOf(enc) {
	case SchemeBase32:
		data, err = base32Enc.DecodeString(strings.TrimRight(enc, "="))
	case SchemeBase64URL:
		data, err = base64URLEnc.DecodeString(strings.TrimRight(enc, "="))
	default:
		return "", fmt.Errorf("%w: unexpected name to decrypt %q", ErrDecrypt, enc)
	}
	if err != nil {
		return "", fmt.Errorf("%w: decode %q: %v", ErrDecrypt, enc, err)
	}

	plain, err := DecryptBytes(data, password)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// IsPlausibleText reports whether s looks like a real path rather than the output of
// decrypting with the wrong key.
func IsPlausibleText(s string) bool {
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Cipher binds a password and memoizes name decryption, which is dominated by key derivation.
type Cipher struct {
	password string
	names    *lru.Cache[string, string]
}

// NewCipher returns a Cipher for password. An empty password yields a disabled Cipher.
func NewCipher(password string) (*Cipher, error) {
	names, err := lru.New[string, string](defaultNameCacheSize)
	if err != nil {
		return nil, fmt.Errorf("name cache: %w", err)
	}
	return &Cipher{password: password, names: names}, nil
}

func (c *Cipher) Enabled() bool {
	return c != nil && c.password != ""
}

func (c *Cipher) Password() string {
	if c == nil {
		return ""
	}
	return c.password
}

func (c *Cipher) EncryptName(name string) (string, error) {
	return EncryptName(name, c.password)
}

// DecryptName decrypts enc, memoizing successful results. Plausibility is left to the caller.
func (c *Cipher) DecryptName(enc string) (string, error) {
	if name, ok := c.names.Get(enc); ok {
		return name, nil
	}
	name, err := DecryptName(enc, c.password)
	if err != nil {
		return "", err
	}
	c.names.Add(enc, name)
	return name, nil
}
