package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dataver/internal/version"
)

// ErrPreviewForbidden is returned when a token does not grant access to a
// version: it is unknown, bound to another version, pending or expired,
// or the version is no longer in a previewable status.
var ErrPreviewForbidden = errors.New("preview forbidden")

// Store persists preview tokens.
type Store interface {
	CreateToken(ctx context.Context, t Token) error
	GetToken(ctx context.Context, id string) (Token, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error)
	VersionStatus(ctx context.Context, versionID string) (version.Status, error)
}

// Service issues and checks preview tokens.
type Service struct {
	store  Store
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDs sets the token id source. Defaults to UUIDv7.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithClock sets the time source used for token windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueRequest describes a token to create. A zero Activates means now.
type IssueRequest struct {
	VersionID string
	Label     string
	Activates time.Time
	Expires   time.Time
	CreatedBy string
}

// Issue creates a token for a version that has not been published yet.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Token, error) {
	if req.Label == "" {
		return Token{}, fmt.Errorf("issue preview token: label is required")
	}
	now := s.now().UTC()
	if req.Activates.IsZero() {
		req.Activates = now
	}
	if !req.Expires.After(req.Activates) {
		return Token{}, fmt.Errorf("issue preview token: expiry %s is not after activation %s",
			req.Expires.Format(time.RFC3339), req.Activates.Format(time.RFC3339))
	}
	status, err := s.store.VersionStatus(ctx, req.VersionID)
	if err != nil {
		return Token{}, fmt.Errorf("issue preview token: %w", err)
	}
	if !status.Previewable() {
		return Token{}, fmt.Errorf("issue preview token: version %s is %s", req.VersionID, status)
	}

	t := Token{
		ID:               s.newID(),
		DataSetVersionID: req.VersionID,
		Label:            req.Label,
		Activates:        req.Activates.UTC(),
		Expires:          req.Expires.UTC(),
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
	}
	if err := s.store.CreateToken(ctx, t); err != nil {
		return Token{}, fmt.Errorf("issue preview token: %w", err)
	}
	s.logger.Info("preview token issued",
		"version", t.DataSetVersionID,
		"token", t.ID,
		"activates", t.Activates,
		"expires", t.Expires)
	return t, nil
}

// Authorize checks that tokenID grants access to versionID now. Every
// refusal wraps ErrPreviewForbidden; store failures are returned as is.
func (s *Service) Authorize(ctx context.Context, tokenID, versionID string) (Token, error) {
	t, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		if isNotFound(err) {
			return Token{}, fmt.Errorf("%w: unknown token", ErrPreviewForbidden)
		}
		return Token{}, fmt.Errorf("authorize preview: %w", err)
	}
	if t.DataSetVersionID != versionID {
		return Token{}, fmt.Errorf("%w: token is for another version", ErrPreviewForbidden)
	}
	if st := t.StatusAt(s.now()); st != StatusActive {
		return Token{}, fmt.Errorf("%w: token is %s", ErrPreviewForbidden, st)
	}
	status, err := s.store.VersionStatus(ctx, versionID)
	if err != nil {
		return Token{}, fmt.Errorf("authorize preview: %w", err)
	}
	if !status.Previewable() {
		return Token{}, fmt.Errorf("%w: version is %s", ErrPreviewForbidden, status)
	}
	return t, nil
}

// notFound is satisfied by stores that mark missing rows.
type notFound interface{ NotFound() bool }

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}
