package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

// Caminhos pelos quais a conclusão chegou ao token da anamnese.
const (
	PathDirect        = "direct"
	PathPatientLookup = "patient_lookup"
	PathReplay        = "replay"
	PathRecovered     = "recovered"
)

// Result é o desfecho da conclusão. PatientID é informativo e pode vir nil.
type Result struct {
	PatientID     *uuid.UUID
	AnamneseToken string
	Path          string
}

// Resolver conclui a sessão e descobre o token da anamnese, tolerando respostas
// incompletas do store e repetições da mesma conclusão.
type Resolver struct {
	store Store
	opts  options
}

func NewResolver(store Store, opts ...Option) *Resolver {
	return &Resolver{store: store, opts: buildOptions(opts)}
}

// Complete finaliza a sessão do token com as respostas coletadas.
//
// Uma sessão já concluída não é erro: o paciente é recuperado pelo vínculo da sessão,
// depois por CPF e por e-mail, e o token devolvido é o da anamnese SENT mais recente
// e ainda válida desse paciente.
func (r *Resolver) Complete(ctx context.Context, raw string, answers Answers) (*Result, error) {
	tok, ok := token.Parse(raw)
	if !ok {
		return nil, r.failed(PathDirect, fail("complete", ErrInvalidToken, nil))
	}
	a := NormalizeAnswers(answers)
	if missing := MissingRequired(a); len(missing) > 0 {
		return nil, r.failed(PathDirect, fail("complete", ErrInvalidAnswers, fmt.Errorf("missing: %s", strings.Join(missing, ","))))
	}

	resp, err := r.store.CompleteSession(ctx, tok, a)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, r.failed(PathDirect, fail("complete", ErrNotFound, err))
	case errors.Is(err, ErrSessionClosed):
		return nil, r.failed(PathDirect, fail("complete", ErrExpired, err))
	case err != nil:
		return nil, r.failed(PathDirect, fail("complete", ErrCompletionFailed, err))
	}

	var res *Result
	switch v := resp.(type) {
	case BareToken:
		res, err = r.fromResponse(ctx, tok, a, v.Token, nil)
	case StructuredResult:
		res, err = r.fromResponse(ctx, tok, a, v.AnamneseToken, v.PatientID)
	case IdempotentReplay:
		r.opts.log.Info("completion replay: session already completed, recovering outcome")
		res, err = r.recover(ctx, tok, a, PathReplay)
	default:
		err = fail("complete", ErrCompletionFailed, fmt.Errorf("%w: %T", ErrMalformedResponse, resp))
	}
	if err != nil {
		return nil, r.failed(pathOf(resp), err)
	}
	r.opts.metrics.Completion(res.Path, "ok")
	r.opts.log.Info("signup completed", zap.String("path", res.Path), zap.Bool("has_patient_id", res.PatientID != nil))
	return res, nil
}

func (r *Resolver) fromResponse(ctx context.Context, tok string, a Answers, anamnese string, patientID *uuid.UUID) (*Result, error) {
	if anamnese != "" {
		if t, ok := token.Parse(anamnese); ok {
			if patientID == nil {
				patientID = r.linkedPatient(ctx, tok)
			}
			return &Result{PatientID: patientID, AnamneseToken: t, Path: PathDirect}, nil
		}
		r.opts.log.Warn("completion returned a malformed anamnesis token, falling back")
	}
	if patientID != nil {
		return r.fromPatient(ctx, *patientID, PathPatientLookup)
	}
	return r.recover(ctx, tok, a, PathRecovered)
}

// recover localiza o paciente quando a conclusão não trouxe nada utilizável:
// vínculo da sessão, depois CPF, depois e-mail.
func (r *Resolver) recover(ctx context.Context, tok string, a Answers, path string) (*Result, error) {
	pid := r.linkedPatient(ctx, tok)
	if pid == nil && a.CPF != nil && *a.CPF != "" {
		id, err := r.store.FindPatientByCPF(ctx, *a.CPF)
		if err != nil {
			r.opts.log.Warn("recover: patient lookup by cpf failed", zap.Error(err))
		}
		pid = id
	}
	if pid == nil && a.Email != nil && *a.Email != "" {
		id, err := r.store.FindPatientByEmail(ctx, *a.Email)
		if err != nil {
			r.opts.log.Warn("recover: patient lookup by email failed", zap.Error(err))
		}
		pid = id
	}
	if pid == nil {
		return nil, fail("complete", ErrTokenUnresolvable, errors.New("no patient linked to session"))
	}
	return r.fromPatient(ctx, *pid, path)
}

func (r *Resolver) fromPatient(ctx context.Context, pid uuid.UUID, path string) (*Result, error) {
	t, err := r.store.FindAnamnesisToken(ctx, pid, r.opts.now())
	if err != nil {
		return nil, fail("complete", ErrTokenUnresolvable, err)
	}
	if t == "" {
		return nil, fail("complete", ErrTokenUnresolvable, fmt.Errorf("no open anamnesis session for patient %s", pid))
	}
	clean, ok := token.Parse(t)
	if !ok {
		return nil, fail("complete", ErrTokenUnresolvable, fmt.Errorf("malformed anamnesis token for patient %s", pid))
	}
	return &Result{PatientID: &pid, AnamneseToken: clean, Path: path}, nil
}

// linkedPatient lê o vínculo gravado na sessão. Erros só vão para o log.
func (r *Resolver) linkedPatient(ctx context.Context, tok string) *uuid.UUID {
	s, err := r.store.GetSession(ctx, tok)
	if err != nil {
		r.opts.log.Debug("linked patient lookup failed", zap.Error(err))
		return nil
	}
	if s == nil {
		return nil
	}
	return s.LinkedPatientID
}

func (r *Resolver) failed(path string, err error) error {
	outcome := "error"
	if k := Kind(err); k != nil {
		outcome = strings.ReplaceAll(k.Error(), " ", "_")
	}
	r.opts.metrics.Completion(path, outcome)
	r.opts.log.Warn("signup completion failed", zap.String("path", path), zap.Error(err))
	return err
}

func pathOf(resp CompletionResponse) string {
	if _, ok := resp.(IdempotentReplay); ok {
		return PathReplay
	}
	return PathDirect
}
