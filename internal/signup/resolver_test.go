package signup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/token"
)

type resolverFixture struct {
	m     *Manager
	r     *Resolver
	store *fakeStore
	clk   *fakeClock
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	m, store, clk := newTestManager(t)
	return &resolverFixture{m: m, r: NewResolver(store, WithClock(clk.Now)), store: store, clk: clk}
}

func (f *resolverFixture) session(t *testing.T) string {
	t.Helper()
	c, err := f.m.CreateSession(context.Background(), 48, "", nil)
	require.NoError(t, err)
	return c.Token
}

func TestResolver_FullFlow(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)

	require.True(t, f.m.SaveAnswers(ctx, tok, Answers{Name: strp("Ana")}))
	f.clk.Advance(600 * time.Millisecond)
	require.True(t, f.m.SaveAnswers(ctx, tok, Answers{Phone: strp("11999999999")}))

	s, err := f.m.LoadSession(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "Ana", *s.Answers.Name)
	assert.Equal(t, "11999999999", *s.Answers.Phone)

	res, err := f.r.Complete(ctx, tok, fullAnswers("123.456.789-00"))
	require.NoError(t, err)
	assert.True(t, token.IsValidSessionToken(res.AnamneseToken))
	assert.Equal(t, PathDirect, res.Path)
	require.NotNil(t, res.PatientID)

	again, err := f.r.Complete(ctx, tok, fullAnswers("123.456.789-00"))
	require.NoError(t, err)
	assert.Equal(t, res.AnamneseToken, again.AnamneseToken)
	assert.Equal(t, *res.PatientID, *again.PatientID)
	assert.Equal(t, PathReplay, again.Path)
	assert.Len(t, f.store.patients, 1)
	assert.Len(t, f.store.anamneses, 1)
}

func TestResolver_CompletedSessionLoadsAsCompleted(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	_, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)

	s, err := f.m.LoadSession(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.NotNil(t, s.LinkedPatientID)
}

func TestResolver_CPFFormatsMatchSamePatient(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	first, err := f.r.Complete(ctx, f.session(t), fullAnswers("123.456.789-00"))
	require.NoError(t, err)
	second, err := f.r.Complete(ctx, f.session(t), fullAnswers("12345678900"))
	require.NoError(t, err)

	assert.Equal(t, *first.PatientID, *second.PatientID)
	assert.Len(t, f.store.patients, 1)
}

func TestResolver_InvalidTokenNeverReachesStore(t *testing.T) {
	f := newResolverFixture(t)
	_, err := f.r.Complete(context.Background(), "not-a-token", fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, f.store.completeCalls)
}

func TestResolver_MissingRequiredAnswers(t *testing.T) {
	f := newResolverFixture(t)
	a := fullAnswers("123")
	_, err := f.r.Complete(context.Background(), f.session(t), a)
	require.ErrorIs(t, err, ErrInvalidAnswers)
	assert.Equal(t, 0, f.store.completeCalls)
}

func TestResolver_StoreFailureIsCompletionFailed(t *testing.T) {
	f := newResolverFixture(t)
	f.store.completeErr = errors.New(`pq: duplicate key value violates unique constraint "patients_pkey"`)

	_, err := f.r.Complete(context.Background(), f.session(t), fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.NotContains(t, UserMessage(err), "duplicate")
}

func TestResolver_MalformedFieldsNeverReachStore(t *testing.T) {
	f := newResolverFixture(t)
	tok := f.session(t)

	for _, patch := range []Answers{{BirthDate: strp("ontem")}, {Phone: strp("99")}} {
		_, err := f.r.Complete(context.Background(), tok, fullAnswers("12345678900").Merge(patch))
		require.ErrorIs(t, err, ErrInvalidAnswers)
	}
	assert.Equal(t, 0, f.store.completeCalls)
}

func TestResolver_ExpiredSessionIsNotRetryable(t *testing.T) {
	f := newResolverFixture(t)
	tok := f.session(t)
	f.clk.Advance(49 * time.Hour)

	_, err := f.r.Complete(context.Background(), tok, fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, ErrExpired, Kind(err))
}

func TestResolver_UnknownSessionIsNotFound(t *testing.T) {
	f := newResolverFixture(t)

	_, err := f.r.Complete(context.Background(), token.New(), fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ErrNotFound, Kind(err))
}

func TestResolver_MalformedLookupTokenIsUnresolvable(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(_ string, pid uuid.UUID) CompletionResponse {
		return StructuredResult{PatientID: &pid}
	}
	tok := f.session(t)
	// a anamnese gravada para o paciente tem um token que não passa na validação
	f.store.mu.Lock()
	f.store.anamnesisOverride = "javascript:alert(1)"
	f.store.mu.Unlock()

	res, err := f.r.Complete(context.Background(), tok, fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrTokenUnresolvable)
	assert.Nil(t, res)
}

func TestResolver_LookupTokenIsCanonicalized(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(_ string, pid uuid.UUID) CompletionResponse {
		return StructuredResult{PatientID: &pid}
	}
	tok := f.session(t)
	want := token.New()
	f.store.mu.Lock()
	f.store.anamnesisOverride = "  " + strings.ToUpper(want) + " "
	f.store.mu.Unlock()

	res, err := f.r.Complete(context.Background(), tok, fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, want, res.AnamneseToken)
}

func TestResolver_BareTokenResponse(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(anamnese string, _ uuid.UUID) CompletionResponse {
		return BareToken{Token: anamnese}
	}

	res, err := f.r.Complete(context.Background(), f.session(t), fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, PathDirect, res.Path)
	assert.Equal(t, f.store.anamneses[0].Token, res.AnamneseToken)
	// o id vem do vínculo gravado na sessão
	require.NotNil(t, res.PatientID)
	assert.Equal(t, f.store.patients[0].id, *res.PatientID)
}

func TestResolver_PatientIDOnlyResponse(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(_ string, pid uuid.UUID) CompletionResponse {
		return StructuredResult{PatientID: &pid}
	}

	res, err := f.r.Complete(context.Background(), f.session(t), fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, PathPatientLookup, res.Path)
	assert.Equal(t, f.store.anamneses[0].Token, res.AnamneseToken)
	assert.Equal(t, 1, f.store.anamnesisCalls)
}

func TestResolver_EmptyResponseRecovers(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(string, uuid.UUID) CompletionResponse { return StructuredResult{} }

	res, err := f.r.Complete(context.Background(), f.session(t), fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, PathRecovered, res.Path)
	assert.Equal(t, f.store.anamneses[0].Token, res.AnamneseToken)
}

func TestResolver_MalformedAnamnesisTokenFallsBack(t *testing.T) {
	f := newResolverFixture(t)
	f.store.respond = func(_ string, pid uuid.UUID) CompletionResponse {
		return StructuredResult{AnamneseToken: "<script>", PatientID: &pid}
	}

	res, err := f.r.Complete(context.Background(), f.session(t), fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, PathPatientLookup, res.Path)
	assert.True(t, token.IsValidSessionToken(res.AnamneseToken))
}

func TestResolver_ReplayWithoutLinkUsesCPF(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	first, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)

	f.store.unlink(tok)
	res, err := f.r.Complete(ctx, tok, fullAnswers("123.456.789-00"))
	require.NoError(t, err)
	assert.Equal(t, PathReplay, res.Path)
	assert.Equal(t, first.AnamneseToken, res.AnamneseToken)
	assert.Equal(t, 1, f.store.cpfCalls)
	assert.Equal(t, 0, f.store.emailCalls)
}

func TestResolver_ReplayFallsBackToEmail(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	first, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)

	f.store.unlink(tok)
	f.store.cpfErr = errors.New("lookup timeout")
	a := fullAnswers("12345678900")
	a.Email = strp("  ANA@example.com ")
	res, err := f.r.Complete(ctx, tok, a)
	require.NoError(t, err)
	assert.Equal(t, first.AnamneseToken, res.AnamneseToken)
	assert.Equal(t, 1, f.store.emailCalls)
}

func TestResolver_ReplayWithNoPatientIsUnresolvable(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	_, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)

	f.store.unlink(tok)
	f.store.patients = nil
	_, err = f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrTokenUnresolvable)
}

func TestResolver_ExpiredAnamnesisIsNeverReturned(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	_, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)

	// anamnese venceu: a repetição não pode devolver o token antigo
	f.clk.Advance(8 * 24 * time.Hour)
	_, err = f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.ErrorIs(t, err, ErrTokenUnresolvable)
}

func TestResolver_NewestValidAnamnesisWins(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	tok := f.session(t)
	first, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)
	pid := *first.PatientID
	now := f.clk.Now()

	older := uuid.NewString()
	newestExpired := uuid.NewString()
	f.store.anamneses = []AnamnesisSession{
		{Token: older, PatientID: pid, Status: StatusSent, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		{Token: newestExpired, PatientID: pid, Status: StatusSent, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)},
		{Token: uuid.NewString(), PatientID: pid, Status: StatusCompleted, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}

	res, err := f.r.Complete(ctx, tok, fullAnswers("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, older, res.AnamneseToken)
}

func TestSelectAnamnesisToken(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	pid := uuid.New()
	cases := []struct {
		name     string
		sessions []AnamnesisSession
		want     string
	}{
		{"none", nil, ""},
		{"expires exactly now", []AnamnesisSession{
			{Token: "a", PatientID: pid, Status: StatusSent, CreatedAt: now.Add(-time.Hour), ExpiresAt: now},
		}, ""},
		{"newest sent", []AnamnesisSession{
			{Token: "a", PatientID: pid, Status: StatusSent, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			{Token: "b", PatientID: pid, Status: StatusSent, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		}, "b"},
		{"skips completed", []AnamnesisSession{
			{Token: "a", PatientID: pid, Status: StatusSent, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			{Token: "b", PatientID: pid, Status: StatusCompleted, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
		}, "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectAnamnesisToken(tc.sessions, now))
		})
	}
}
