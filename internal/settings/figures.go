package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"figurespeaker/internal/services"
)

// Figure maps an RFID tag to a playable URI and tracks resume progress.
type Figure struct {
	Tag          string        `json:"tag"`
	URI          string        `json:"uri"`
	Name         string        `json:"name,omitempty"`
	PlayMode     string        `json:"play_mode,omitempty"`
	Progress     time.Duration `json:"progress"`
	LastPlayedAt *time.Time    `json:"last_played_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

const figureColumns = "tag, uri, name, play_mode, progress_ms, last_played_at, created_at, updated_at"

func scanFigure(scanner interface{ Scan(dest ...any) error }) (*Figure, error) {
	var (
		fig          Figure
		progressMS   int64
		lastPlayed   sql.NullString
		createdAtRaw string
		updatedAtRaw string
	)
	if err := scanner.Scan(&fig.Tag, &fig.URI, &fig.Name, &fig.PlayMode, &progressMS, &lastPlayed, &createdAtRaw, &updatedAtRaw); err != nil {
		return nil, err
	}
	fig.Progress = time.Duration(progressMS) * time.Millisecond
	if lastPlayed.Valid {
		if ts, err := parseTimeString(lastPlayed.String); err == nil {
			fig.LastPlayedAt = &ts
		}
	}
	if ts, err := parseTimeString(createdAtRaw); err == nil {
		fig.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedAtRaw); err == nil {
		fig.UpdatedAt = ts
	}
	return &fig, nil
}

// UpsertFigure inserts or replaces the tag's URI, name, and play mode.
// Stored progress is kept unless the URI changes.
func (s *Store) UpsertFigure(ctx context.Context, fig Figure) error {
	fig.Tag = strings.TrimSpace(fig.Tag)
	fig.URI = strings.TrimSpace(fig.URI)
	if fig.Tag == "" {
		return services.Wrap(services.ErrValidation, "settings", "figure", "tag is required", nil)
	}
	if fig.URI == "" {
		return services.Wrap(services.ErrValidation, "settings", "figure", "uri is required", nil)
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO figures (tag, uri, name, play_mode, progress_ms, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?)
         ON CONFLICT(tag) DO UPDATE SET
             progress_ms = CASE WHEN figures.uri = excluded.uri THEN figures.progress_ms ELSE 0 END,
             uri = excluded.uri,
             name = excluded.name,
             play_mode = excluded.play_mode,
             updated_at = excluded.updated_at`,
		fig.Tag, fig.URI, strings.TrimSpace(fig.Name), strings.ToUpper(strings.TrimSpace(fig.PlayMode)), now, now,
	); err != nil {
		return fmt.Errorf("upsert figure %s: %w", fig.Tag, err)
	}
	return nil
}

// GetFigure returns the figure for tag, or nil when unknown.
func (s *Store) GetFigure(ctx context.Context, tag string) (*Figure, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+figureColumns+` FROM figures WHERE tag = ?`, tag)
	fig, err := scanFigure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get figure: %w", err)
	}
	return fig, nil
}

// ListFigures returns all figures ordered by tag.
func (s *Store) ListFigures(ctx context.Context) ([]*Figure, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+figureColumns+` FROM figures ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("list figures: %w", err)
	}
	defer rows.Close()

	var figures []*Figure
	for rows.Next() {
		fig, err := scanFigure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan figure: %w", err)
		}
		figures = append(figures, fig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate figures: %w", err)
	}
	return figures, nil
}

// DeleteFigure removes a figure. It reports whether a row was deleted.
func (s *Store) DeleteFigure(ctx context.Context, tag string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM figures WHERE tag = ?`, tag)
	if err != nil {
		return false, fmt.Errorf("delete figure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete figure: %w", err)
	}
	return affected > 0, nil
}

// SaveProgress records the playback position reached for tag at playedAt.
func (s *Store) SaveProgress(ctx context.Context, tag string, position time.Duration, playedAt time.Time) error {
	if position < 0 {
		position = 0
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE figures SET progress_ms = ?, last_played_at = ?, updated_at = ? WHERE tag = ?`,
		position.Milliseconds(), nullableTime(&playedAt), s.timestamp(), tag,
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "settings", "figure", "unknown tag "+tag, nil)
	}
	return nil
}
