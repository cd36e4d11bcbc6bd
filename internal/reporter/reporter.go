package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

// Reporter periodically captures an aggregate vault snapshot and hands it to
// the configured sink. A failing capture or save never stops the loop; the
// next tick tries again.
type Reporter struct {
	log      zerolog.Logger
	vault    *vault.Vault
	interval time.Duration
	save     func(types.VaultSnapshot) error
}

type Config struct {
	Vault    *vault.Vault
	Interval time.Duration
	Save     func(types.VaultSnapshot) error
}

func New(cfg Config) (*Reporter, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if cfg.Save == nil {
		return nil, fmt.Errorf("save sink cannot be nil")
	}
	return &Reporter{
		log:      logger.GetForComponent("reporter"),
		vault:    cfg.Vault,
		interval: cfg.Interval,
		save:     cfg.Save,
	}, nil
}

// RunLoop snapshots immediately, then on every tick until the context is
// cancelled.
func (r *Reporter) RunLoop(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("Starting reporter loop")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.capture()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Reporter loop stopped due to context cancellation")
			return
		case <-ticker.C:
			r.capture()
		}
	}
}

func (r *Reporter) capture() {
	snap, err := r.vault.Snapshot()
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to capture vault snapshot")
		return
	}
	if err := r.save(snap); err != nil {
		r.log.Error().Err(err).Str("snapshot_id", snap.ID).Msg("Failed to save vault snapshot")
		return
	}
	r.log.Info().
		Str("snapshot_id", snap.ID).
		Str("totalAssets", snap.TotalAssets.String()).
		Str("idleAssets", snap.IdleAssets.String()).
		Int("strategies", len(snap.Strategies)).
		Msg("Vault snapshot saved")
}
