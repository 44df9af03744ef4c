package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// NormalizeCPF remove tudo que não for dígito. É a única forma persistida e comparada;
// pontuação é só apresentação.
func NormalizeCPF(cpf string) string {
	return nonDigits.ReplaceAllString(cpf, "")
}

// IsCanonicalCPF indica se s já está normalizado com 11 dígitos.
func IsCanonicalCPF(s string) bool {
	return len(s) == 11 && NormalizeCPF(s) == s
}

// CPFHash retorna SHA-256 do CPF normalizado em hex (coluna de busca).
func CPFHash(cpfNormalized string) string {
	h := sha256.Sum256([]byte(cpfNormalized))
	return hex.EncodeToString(h[:])
}
