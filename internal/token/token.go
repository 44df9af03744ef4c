// Package token normaliza e valida os tokens de sessão recebidos pela URL.
// O token é uma capability: quem o possui pode ler e escrever a sessão.
package token

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\w-]`)
	uuidV4        = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

// Sanitize remove tudo que não for caractere de palavra ou hífen.
func Sanitize(raw string) string {
	return nonTokenChars.ReplaceAllString(raw, "")
}

// IsValidSessionToken retorna true apenas para o formato textual de UUID v4 (8-4-4-4-12,
// versão 4, variante 8/9/a/b). Tokens com caracteres fora de [\w-] são rejeitados.
func IsValidSessionToken(tok string) bool {
	if tok == "" || Sanitize(tok) != tok {
		return false
	}
	return uuidV4.MatchString(strings.ToLower(tok))
}

// Parse sanitiza e valida o token vindo da URL. Retorna a forma canônica (minúscula).
func Parse(raw string) (string, bool) {
	tok := strings.ToLower(Sanitize(strings.TrimSpace(raw)))
	if !IsValidSessionToken(tok) {
		return "", false
	}
	return tok, true
}

// New gera um token novo (UUID v4 aleatório).
func New() string {
	return uuid.New().String()
}
