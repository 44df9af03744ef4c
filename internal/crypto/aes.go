package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrKeyVersionNotFound = errors.New("key version not found")
	ErrKeySize            = errors.New("key must be 32 bytes")
)

// Keyring guarda as chaves AES-256 por versão e a versão usada para novas gravações.
type Keyring struct {
	keys    map[string][]byte
	current string
}

// NewKeyring lê DATA_ENCRYPTION_KEYS ("v1:base64,v2:base64") e fixa a versão corrente.
func NewKeyring(env, current string) (*Keyring, error) {
	keys, err := ParseKeysEnv(env)
	if err != nil {
		return nil, err
	}
	if current == "" {
		current = "v1"
	}
	if _, ok := keys[current]; !ok {
		return nil, fmt.Errorf("current key %q: %w", current, ErrKeyVersionNotFound)
	}
	return &Keyring{keys: keys, current: current}, nil
}

// SealedCPF é o CPF cifrado pronto para persistir junto do hash de busca.
type SealedCPF struct {
	Ciphertext []byte
	Nonce      []byte
	KeyVersion string
	Hash       string
}

// SealCPF normaliza, cifra com a chave corrente e calcula o hash do CPF.
func (k *Keyring) SealCPF(cpf string) (*SealedCPF, error) {
	digits := NormalizeCPF(cpf)
	ct, nonce, err := Encrypt([]byte(digits), k.current, k.keys)
	if err != nil {
		return nil, err
	}
	return &SealedCPF{Ciphertext: ct, Nonce: nonce, KeyVersion: k.current, Hash: CPFHash(digits)}, nil
}

// OpenCPF decifra um CPF gravado com qualquer versão conhecida.
func (k *Keyring) OpenCPF(s *SealedCPF) (string, error) {
	b, err := Decrypt(s.Ciphertext, s.Nonce, s.KeyVersion, k.keys)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Encrypt(plaintext []byte, keyVersion string, keysMap map[string][]byte) (ciphertext, nonce []byte, err error) {
	gcm, err := gcmFor(keyVersion, keysMap)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func Decrypt(ciphertext, nonce []byte, keyVersion string, keysMap map[string][]byte) ([]byte, error) {
	gcm, err := gcmFor(keyVersion, keysMap)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func gcmFor(keyVersion string, keysMap map[string][]byte) (cipher.AEAD, error) {
	key, ok := keysMap[keyVersion]
	if !ok {
		return nil, ErrKeyVersionNotFound
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func ParseKeysEnv(env string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if env == "" {
		return out, nil
	}
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx <= 0 {
			continue
		}
		ver := strings.TrimSpace(part[:idx])
		key, err := decodeKey(strings.TrimSpace(part[idx+1:]))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", ver, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("key %s must be 32 bytes for AES-256 (got %d)", ver, len(key))
		}
		out[ver] = key
	}
	return out, nil
}

// decodeKey aceita base64 com ou sem padding; 44 chars terminando em "=" viram 43 sem padding.
func decodeKey(b64 string) ([]byte, error) {
	if len(b64) == 44 && strings.HasSuffix(b64, "=") {
		b64 = b64[:43]
	}
	if len(b64)%4 == 3 {
		return base64.RawStdEncoding.DecodeString(b64)
	}
	switch len(b64) % 4 {
	case 2:
		b64 += "=="
	case 3:
		b64 += "="
	}
	return base64.StdEncoding.DecodeString(b64)
}
