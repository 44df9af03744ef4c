package signup

import (
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/crypto"
)

// Answers são as respostas parciais do formulário. Campo nil = não informado.
type Answers struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	CPF       *string `json:"cpf,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
	Address   *string `json:"address,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
}

var textPolicy = bluemonday.StrictPolicy()

// Merge sobrescreve apenas os campos informados em partial.
func (a Answers) Merge(partial Answers) Answers {
	if partial.Name != nil {
		a.Name = partial.Name
	}
	if partial.Email != nil {
		a.Email = partial.Email
	}
	if partial.Phone != nil {
		a.Phone = partial.Phone
	}
	if partial.CPF != nil {
		a.CPF = partial.CPF
	}
	if partial.BirthDate != nil {
		a.BirthDate = partial.BirthDate
	}
	if partial.Address != nil {
		a.Address = partial.Address
	}
	if partial.PhotoURL != nil {
		a.PhotoURL = partial.PhotoURL
	}
	return a
}

// IsEmpty indica que nenhum campo foi informado.
func (a Answers) IsEmpty() bool {
	return a == Answers{}
}

// NormalizeAnswers devolve uma cópia com CPF só dígitos, e-mail minúsculo, data de nascimento
// em AAAA-MM-DD e textos livres sem marcação HTML. O resultado é texto puro; o escape fica a cargo de quem exibe.
func NormalizeAnswers(a Answers) Answers {
	out := Answers{
		Name:      cleanText(a.Name),
		Email:     mapStr(a.Email, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }),
		Phone:     mapStr(a.Phone, strings.TrimSpace),
		CPF:       mapStr(a.CPF, crypto.NormalizeCPF),
		BirthDate: mapStr(a.BirthDate, normalizeDate),
		Address:   cleanText(a.Address),
		PhotoURL:  mapStr(a.PhotoURL, strings.TrimSpace),
	}
	return out
}

// MissingRequired lista os campos obrigatórios para a conclusão que estão ausentes ou inválidos.
// Espera respostas já normalizadas.
func MissingRequired(a Answers) []string {
	var missing []string
	if value(a.Name) == "" {
		missing = append(missing, "name")
	}
	if !IsValidPhone(value(a.Phone)) {
		missing = append(missing, "phone")
	}
	if !crypto.IsCanonicalCPF(value(a.CPF)) {
		missing = append(missing, "cpf")
	}
	if !isValidBirthDate(value(a.BirthDate)) {
		missing = append(missing, "birth_date")
	}
	return missing
}

const isoDate = "2006-01-02"

// IsValidPhone aceita telefone brasileiro com DDD (10 ou 11 dígitos) ou com DDI 55 (12 ou 13).
func IsValidPhone(phone string) bool {
	n := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n >= 10 && n <= 13
}

// normalizeDate aceita DD/MM/AAAA ou AAAA-MM-DD; o que não for data fica só aparado.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{isoDate, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate)
		}
	}
	return s
}

func isValidBirthDate(s string) bool {
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return false
	}
	return t.Year() >= 1900 && !t.After(time.Now())
}

func cleanText(p *string) *string {
	return mapStr(p, func(s string) string {
		return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
	})
}

func mapStr(p *string, fn func(string) string) *string {
	if p == nil {
		return nil
	}
	v := fn(*p)
	return &v
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
