package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataver/internal/metrics"
	"github.com/roach88/dataver/internal/version"
)

var errMissing = errors.New("missing")

type missingError struct{}

func (missingError) Error() string  { return "not found" }
func (missingError) NotFound() bool { return true }

type memStore struct {
	mu       sync.Mutex
	tokens   map[string]Token
	statuses map[string]version.Status
}

func newMemStore() *memStore {
	return &memStore{
		tokens:   map[string]Token{},
		statuses: map[string]version.Status{"v1": version.StatusProcessing, "v2": version.StatusPublished},
	}
}

func (m *memStore) CreateToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *memStore) GetToken(_ context.Context, id string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return Token{}, fmt.Errorf("token %s: %w", id, missingError{})
	}
	return t, nil
}

func (m *memStore) DeleteExpiredTokens(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.tokens {
		if !t.Expires.After(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) VersionStatus(_ context.Context, id string) (version.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[id]
	if !ok {
		return "", errMissing
	}
	return st, nil
}

var epoch = time.Date(2024, time.September, 1, 9, 0, 0, 0, time.UTC)

func TestStatusAt(t *testing.T) {
	tok := Token{Activates: epoch, Expires: epoch.Add(time.Hour)}
	tests := []struct {
		at   time.Time
		want Status
	}{
		{epoch.Add(-time.Second), StatusPending},
		{epoch, StatusActive},
		{epoch.Add(59 * time.Minute), StatusActive},
		{epoch.Add(time.Hour), StatusExpired},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.StatusAt(tt.at), tt.at)
	}

	empty := Token{Activates: epoch.Add(time.Hour), Expires: epoch}
	assert.Equal(t, StatusExpired, empty.StatusAt(epoch.Add(-time.Hour)), "expiry wins over activation")
}

func newService(now *time.Time) (*Service, *memStore) {
	m := newMemStore()
	n := 0
	svc := NewService(m,
		WithClock(func() time.Time { return *now }),
		WithIDs(func() string { n++; return fmt.Sprintf("tok-%d", n) }))
	return svc, m
}

func TestIssue(t *testing.T) {
	now := epoch
	svc, m := newService(&now)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, IssueRequest{VersionID: "v1", Label: "Reviewers", Expires: epoch.Add(24 * time.Hour), CreatedBy: "analyst"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.ID)
	assert.Equal(t, epoch, tok.Activates)
	assert.Equal(t, tok, m.tokens["tok-1"])

	tests := []struct {
		name string
		req  IssueRequest
	}{
		{"no label", IssueRequest{VersionID: "v1", Expires: epoch.Add(time.Hour)}},
		{"empty window", IssueRequest{VersionID: "v1", Label: "x", Activates: epoch.Add(time.Hour), Expires: epoch.Add(time.Hour)}},
		{"published version", IssueRequest{VersionID: "v2", Label: "x", Expires: epoch.Add(time.Hour)}},
		{"unknown version", IssueRequest{VersionID: "v9", Label: "x", Expires: epoch.Add(time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(ctx, tt.req)
			assert.Error(t, err)
		})
	}
	assert.Len(t, m.tokens, 1)
}

func TestAuthorize(t *testing.T) {
	now := epoch
	svc, m := newService(&now)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, IssueRequest{
		VersionID: "v1",
		Label:     "Reviewers",
		Activates: epoch.Add(time.Hour),
		Expires:   epoch.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, tok.ID, "v1")
	assert.ErrorIs(t, err, ErrPreviewForbidden, "pending")

	now = epoch.Add(90 * time.Minute)
	got, err := svc.Authorize(ctx, tok.ID, "v1")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)

	_, err = svc.Authorize(ctx, tok.ID, "v2")
	assert.ErrorIs(t, err, ErrPreviewForbidden, "other version")

	_, err = svc.Authorize(ctx, "nope", "v1")
	assert.ErrorIs(t, err, ErrPreviewForbidden, "unknown token")

	m.statuses["v1"] = version.StatusPublished
	_, err = svc.Authorize(ctx, tok.ID, "v1")
	assert.ErrorIs(t, err, ErrPreviewForbidden, "published version")
	m.statuses["v1"] = version.StatusProcessing

	now = epoch.Add(2 * time.Hour)
	_, err = svc.Authorize(ctx, tok.ID, "v1")
	assert.ErrorIs(t, err, ErrPreviewForbidden, "expired")
}

func TestSweep(t *testing.T) {
	now := epoch
	m := newMemStore()
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	s, err := NewSweeper(m, DefaultSweepSchedule, time.Hour,
		WithSweeperClock(func() time.Time { return now }),
		WithSweeperMetrics(met))
	require.NoError(t, err)

	ctx := context.Background()
	for i, exp := range []time.Duration{-3 * time.Hour, -30 * time.Minute, time.Hour} {
		require.NoError(t, m.CreateToken(ctx, Token{ID: fmt.Sprint(i), Expires: epoch.Add(exp)}))
	}

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only tokens past the grace period")
	assert.Len(t, m.tokens, 2)

	now = epoch.Add(3 * time.Hour)
	n, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3.0, promtest.ToFloat64(met.PreviewTokensSwept))
}

func TestNewSweeper_BadSchedule(t *testing.T) {
	_, err := NewSweeper(newMemStore(), "every tuesday", time.Hour)
	assert.Error(t, err)
}

func TestSweeper_StartStop(t *testing.T) {
	s, err := NewSweeper(newMemStore(), "@every 1h", time.Hour)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
