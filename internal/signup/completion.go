package signup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedResponse indica uma resposta de conclusão fora dos formatos conhecidos.
var ErrMalformedResponse = errors.New("malformed completion response")

// CompletionResponse é a resposta da conclusão no store. Os únicos casos são BareToken,
// StructuredResult e IdempotentReplay.
type CompletionResponse interface {
	completionResponse()
}

// BareToken: o store devolveu só o token da anamnese.
type BareToken struct {
	Token string
}

// StructuredResult: token da anamnese e/ou id do paciente. Qualquer um pode vir vazio.
type StructuredResult struct {
	AnamneseToken string
	PatientID     *uuid.UUID
}

// IdempotentReplay: a sessão já tinha sido concluída por uma chamada anterior.
// Não traz payload; o resultado precisa ser recuperado por consulta.
type IdempotentReplay struct{}

func (BareToken) completionResponse()        {}
func (StructuredResult) completionResponse() {}
func (IdempotentReplay) completionResponse() {}

type structuredWire struct {
	AnamneseToken  string `json:"anamnese_token"`
	AnamneseTokenC string `json:"anamneseToken"`
	AnamnesisToken string `json:"anamnesis_token"`
	Token          string `json:"token"`
	PatientID      string `json:"patient_id"`
	PatientIDCamel string `json:"patientId"`
}

// DecodeCompletionResponse converte o JSON devolvido pela função remota de conclusão:
// string pura, objeto com anamnese_token/patient_id (snake ou camel case), ou uma lista
// com um único elemento de um desses formatos. null ou vazio vira StructuredResult{}.
func DecodeCompletionResponse(raw json.RawMessage) (CompletionResponse, error) {
	return decodeCompletion(raw, true)
}

func decodeCompletion(raw json.RawMessage, allowList bool) (CompletionResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return StructuredResult{}, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return StructuredResult{}, nil
		}
		return BareToken{Token: s}, nil
	case '[':
		if !allowList {
			return nil, fmt.Errorf("%w: nested list", ErrMalformedResponse)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		switch len(items) {
		case 0:
			return StructuredResult{}, nil
		case 1:
			return decodeCompletion(items[0], false)
		default:
			return nil, fmt.Errorf("%w: list with %d items", ErrMalformedResponse, len(items))
		}
	case '{':
		var w structuredWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		res := StructuredResult{AnamneseToken: firstNonEmpty(w.AnamneseToken, w.AnamneseTokenC, w.AnamnesisToken, w.Token)}
		if id, err := uuid.Parse(firstNonEmpty(w.PatientID, w.PatientIDCamel)); err == nil {
			res.PatientID = &id
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedResponse, raw[0])
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
