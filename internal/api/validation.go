package api

import (
	"errors"
	"regexp"
	"strings"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
)

var (
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidPhone = errors.New("invalid phone")
)

// emailRegex valida formato de e-mail (uma @ e domínio com ponto).
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmailRegex valida formato de e-mail com o regex padrão do backend.
func ValidateEmailRegex(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePhone usa a mesma regra da conclusão do cadastro.
func ValidatePhone(phone string) error {
	if !signup.IsValidPhone(phone) {
		return ErrInvalidPhone
	}
	return nil
}
