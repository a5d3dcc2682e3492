package figures

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"figurespeaker/internal/config"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/settings"
)

// Catalogue looks up stored figures by tag.
type Catalogue interface {
	GetFigure(ctx context.Context, tag string) (*settings.Figure, error)
}

// Resolver turns scanned tags into play requests.
type Resolver struct {
	catalogue   Catalogue
	defaultMode string
	resetAfter  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewResolver builds a resolver using the [player] configuration section.
func NewResolver(catalogue Catalogue, player config.Player, logger *slog.Logger) *Resolver {
	mode := strings.ToUpper(strings.TrimSpace(player.DefaultPlayMode))
	if mode != config.PlayModeReset {
		mode = config.PlayModeResume
	}
	return &Resolver{
		catalogue:   catalogue,
		defaultMode: mode,
		resetAfter:  player.ResetAfter(),
		now:         time.Now,
		logger:      logging.NewComponentLogger(logger, "figures"),
	}
}

// Resolve returns the play request for tag. Unknown tags resolve to nil.
func (r *Resolver) Resolve(ctx context.Context, tag string) (*playback.Request, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, nil
	}
	fig, err := r.catalogue.GetFigure(ctx, tag)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, r.logger)
	if fig == nil {
		logger.Info("unknown figure",
			logging.Tag(tag),
			logging.Event("figure_unknown"),
		)
		return nil, nil
	}

	req := &playback.Request{Tag: fig.Tag, URI: fig.URI, Name: fig.Name}
	switch mode := r.mode(fig); {
	case mode == config.PlayModeReset:
		logging.Decision(logger, "starting figure from the beginning", "figure_resume", "play mode is RESET")
	case r.expired(fig):
		logging.Decision(logger, "starting figure from the beginning", "figure_resume", "last play older than reset window",
			logging.Duration("reset_after", r.resetAfter),
		)
	default:
		req.Position = fig.Progress
	}
	return req, nil
}

func (r *Resolver) mode(fig *settings.Figure) string {
	switch mode := strings.ToUpper(strings.TrimSpace(fig.PlayMode)); mode {
	case config.PlayModeResume, config.PlayModeReset:
		return mode
	default:
		return r.defaultMode
	}
}

func (r *Resolver) expired(fig *settings.Figure) bool {
	if r.resetAfter <= 0 || fig.LastPlayedAt == nil {
		return false
	}
	return r.now().Sub(*fig.LastPlayedAt) > r.resetAfter
}
