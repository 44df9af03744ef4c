package sweeper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
)

type mockExpirer struct {
	mu           sync.Mutex
	signup       int64
	anamnesis    int64
	signupErr    error
	anamnesisErr error
	calls        int
	lastNow      time.Time
}

func (m *mockExpirer) ExpireSignupSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastNow = now
	return m.signup, m.signupErr
}

func (m *mockExpirer) ExpireAnamnesisSessions(_ context.Context, _ time.Time) (int64, error) {
	return m.anamnesis, m.anamnesisErr
}

func (m *mockExpirer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	metrics.Nop
	expired map[string]int
}

func (r *mockRecorder) SessionsExpired(kind string, n int) { r.expired[kind] += n }

func TestSweep_CountsAndMetrics(t *testing.T) {
	rec := &mockRecorder{expired: map[string]int{}}
	m := &mockExpirer{signup: 3, anamnesis: 1}
	s := New(m, nil, rec)
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	res, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Signup != 3 || res.Anamnesis != 1 {
		t.Errorf("got %+v", res)
	}
	if !m.lastNow.Equal(fixed) {
		t.Errorf("now = %v", m.lastNow)
	}
	if rec.expired["signup"] != 3 || rec.expired["anamnesis"] != 1 {
		t.Errorf("metrics = %v", rec.expired)
	}
}

func TestSweep_OneKindFailing(t *testing.T) {
	m := &mockExpirer{signupErr: errors.New("db down"), anamnesis: 2}
	res, err := New(m, nil, nil).Sweep(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Anamnesis != 2 {
		t.Errorf("anamnesis deveria ter rodado: %+v", res)
	}
}

func TestRun_OnceWhenNoInterval(t *testing.T) {
	m := &mockExpirer{}
	if err := New(m, nil, nil).Run(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if m.callCount() != 1 {
		t.Errorf("calls = %d", m.callCount())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	m := &mockExpirer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(m, nil, nil).Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run não parou após cancel")
	}
	if m.callCount() < 3 {
		t.Errorf("calls = %d", m.callCount())
	}
}

func TestSweep_CountsReachScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(&mockExpirer{signup: 3, anamnesis: 1}, nil, metrics.NewCollector(reg))
	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	rr := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`signup_sessions_expired_total{kind="signup"} 3`,
		`signup_sessions_expired_total{kind="anamnesis"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
