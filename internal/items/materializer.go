package items

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/motor-valuation/internal/obs"
)

// Materializer creates the item master row for a newly created non-standard motor.
type Materializer struct {
	Store      Store
	DefaultUOM string
	Logger     *zerolog.Logger
}

// Materialize creates the item described by p and reports whether a row was
// written. Existing items are left untouched.
func (m Materializer) Materialize(ctx context.Context, p MaterializePayload) (bool, error) {
	logger := obs.LoggerOrNop(m.Logger).With().Str("item_code", p.ItemCode).Logger()

	exists, err := m.Store.Exists(ctx, p.ItemCode)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Info().Msg("item already exists, skipping")
		return false, nil
	}

	var hsn string
	if p.BaseItem != "" {
		base, err := m.Store.Get(ctx, p.BaseItem)
		switch {
		case err == nil:
			hsn = base.HSNCode
		case errors.Is(err, ErrNotFound):
			logger.Warn().Str("base_item", p.BaseItem).Msg("base item missing, hsn code left empty")
		default:
			return false, err
		}
	}

	uom := m.DefaultUOM
	if uom == "" {
		uom = "Nos"
	}
	err = m.Store.Create(ctx, Item{
		Code:          p.ItemCode,
		Name:          p.ItemCode,
		Group:         p.ItemGroup,
		Brand:         p.Brand,
		FrameSize:     p.FrameSize,
		Flameproof:    p.Flameproof,
		NonStandard:   true,
		StockUOM:      uom,
		ValuationRate: p.ValuationRate,
		HSNCode:       hsn,
		Description:   p.Description,
	})
	if errors.Is(err, ErrExists) {
		logger.Info().Msg("item created concurrently, skipping")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Info().Str("creation_id", p.CreationID).Msg("item materialised")
	return true, nil
}

// ProcessTask implements asynq.Handler.
func (m Materializer) ProcessTask(ctx context.Context, t *asynq.Task) error {
	start := time.Now()
	p, err := DecodeMaterializePayload(t)
	if err != nil {
		obs.ObserveItemMaterialize("invalid", obs.DurationMillis(time.Since(start)))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	created, err := m.Materialize(ctx, p)
	result := "skipped"
	switch {
	case err != nil:
		result = "error"
	case created:
		result = "created"
	}
	obs.ObserveItemMaterialize(result, obs.DurationMillis(time.Since(start)))
	return err
}
