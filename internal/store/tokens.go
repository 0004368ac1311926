package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dataver/internal/preview"
)

const tokenColumns = `id, version_id, label, activates, expires, created_by, created_at`

// CreateToken stores a preview token.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateToken(ctx context.Context, t preview.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preview_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.DataSetVersionID, t.Label, formatTime(t.Activates), formatTime(t.Expires),
		t.CreatedBy, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func scanToken(row scanner) (preview.Token, error) {
	var (
		t                             preview.Token
		activates, expires, createdAt string
	)
	if err := row.Scan(&t.ID, &t.DataSetVersionID, &t.Label, &activates, &expires, &t.CreatedBy, &createdAt); err != nil {
		return preview.Token{}, err
	}
	var err error
	if t.Activates, err = parseTime(activates); err != nil {
		return preview.Token{}, err
	}
	if t.Expires, err = parseTime(expires); err != nil {
		return preview.Token{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return preview.Token{}, err
	}
	return t, nil
}

// GetToken retrieves a token by id.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) GetToken(ctx context.Context, id string) (preview.Token, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM preview_tokens WHERE id = ?`, id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return preview.Token{}, notFound("preview token", id)
	}
	if err != nil {
		return preview.Token{}, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// ListTokens returns the tokens of a version, oldest first.
func (s *Store) ListTokens(ctx context.Context, versionID string) ([]preview.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM preview_tokens
		WHERE version_id = ?
		ORDER BY created_at COLLATE BINARY ASC, id COLLATE BINARY ASC
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	out := []preview.Token{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return out, nil
}

// DeleteToken revokes a token.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM preview_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n == 0 {
		return notFound("preview token", id)
	}
	return nil
}

// DeleteExpiredTokens removes every token that expired at or before
// before and returns how many were removed.
func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM preview_tokens WHERE expires <= ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return int(n), nil
}

var _ preview.Store = (*Store)(nil)
