package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"figurespeaker/internal/config"
	"figurespeaker/internal/services"
)

const (
	keyVolumeMin     = "volume.min"
	keyVolumeMax     = "volume.max"
	keyVolumeCurrent = "volume.current"
)

// VolumeSettings is the persisted {min, max, current} tuple.
type VolumeSettings struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Current int `json:"current"`
}

// Validate checks ranges and ordering.
func (v VolumeSettings) Validate() error {
	for name, value := range map[string]int{"min": v.Min, "max": v.Max, "current": v.Current} {
		if value < 0 || value > 100 {
			return services.Wrap(services.ErrValidation, "settings", "volume", fmt.Sprintf("%s must be between 0 and 100", name), nil)
		}
	}
	if v.Min > v.Max {
		return services.Wrap(services.ErrValidation, "settings", "volume", "min must not exceed max", nil)
	}
	if v.Current < v.Min || v.Current > v.Max {
		return services.Wrap(services.ErrValidation, "settings", "volume", "current must lie within min and max", nil)
	}
	return nil
}

func (s *Store) seedVolume(ctx context.Context, seed config.Volume) error {
	now := s.timestamp()
	for key, value := range map[string]int{
		keyVolumeMin:     seed.Min,
		keyVolumeMax:     seed.Max,
		keyVolumeCurrent: seed.Current,
	} {
		if _, err := s.execWithRetry(ctx,
			`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, now,
		); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) readInt(ctx context.Context, key string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, services.Wrap(services.ErrNotFound, "settings", key, "setting not stored", nil)
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

// CurrentVolume returns the persisted current volume.
func (s *Store) CurrentVolume(ctx context.Context) (int, error) {
	return s.readInt(ctx, keyVolumeCurrent)
}

// MinVolume returns the persisted lower volume bound.
func (s *Store) MinVolume(ctx context.Context) (int, error) {
	return s.readInt(ctx, keyVolumeMin)
}

// MaxVolume returns the persisted upper volume bound.
func (s *Store) MaxVolume(ctx context.Context) (int, error) {
	return s.readInt(ctx, keyVolumeMax)
}

// SetCurrentVolume overwrites the current volume.
func (s *Store) SetCurrentVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return services.Wrap(services.ErrValidation, "settings", "volume", "current must be between 0 and 100", nil)
	}
	if _, err := s.execWithRetry(ctx,
		`UPDATE settings SET value = ?, updated_at = ? WHERE key = ?`,
		volume, s.timestamp(), keyVolumeCurrent,
	); err != nil {
		return fmt.Errorf("set current volume: %w", err)
	}
	return nil
}

// SwapCurrentVolume sets the current volume to next only if it still equals
// expected. It reports whether the swap happened.
func (s *Store) SwapCurrentVolume(ctx context.Context, expected, next int) (bool, error) {
	if next < 0 || next > 100 {
		return false, services.Wrap(services.ErrValidation, "settings", "volume", "current must be between 0 and 100", nil)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE settings SET value = ?, updated_at = ? WHERE key = ? AND value = ?`,
		next, s.timestamp(), keyVolumeCurrent, expected,
	)
	if err != nil {
		return false, fmt.Errorf("swap current volume: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap current volume: %w", err)
	}
	return affected == 1, nil
}

// VolumeSettings returns the full persisted tuple.
func (s *Store) VolumeSettings(ctx context.Context) (VolumeSettings, error) {
	var out VolumeSettings
	var err error
	if out.Min, err = s.MinVolume(ctx); err != nil {
		return VolumeSettings{}, err
	}
	if out.Max, err = s.MaxVolume(ctx); err != nil {
		return VolumeSettings{}, err
	}
	if out.Current, err = s.CurrentVolume(ctx); err != nil {
		return VolumeSettings{}, err
	}
	return out, nil
}

// UpdateVolumeSettings replaces the tuple atomically after validation.
func (s *Store) UpdateVolumeSettings(ctx context.Context, v VolumeSettings) error {
	if err := v.Validate(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = tx.Rollback()
		}()
		now := s.timestamp()
		for key, value := range map[string]int{
			keyVolumeMin:     v.Min,
			keyVolumeMax:     v.Max,
			keyVolumeCurrent: v.Current,
		} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
                 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, now,
			); err != nil {
				return fmt.Errorf("update %s: %w", key, err)
			}
		}
		return tx.Commit()
	})
}
