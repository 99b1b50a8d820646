package nonstd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/baseprice"
	"github.com/noah-isme/motor-valuation/internal/brandconfig"
	"github.com/noah-isme/motor-valuation/internal/common"
	"github.com/noah-isme/motor-valuation/internal/events"
	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/lock"
	"github.com/noah-isme/motor-valuation/internal/obs"
	"github.com/noah-isme/motor-valuation/internal/pricelog"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

// ItemReader loads base items.
type ItemReader interface {
	Get(ctx context.Context, code string) (items.Item, error)
}

// Locker serialises work on a key across API instances.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// MaterializeScheduler queues creation of the item master row.
type MaterializeScheduler interface {
	Schedule(ctx context.Context, p items.MaterializePayload) error
}

// ServiceConfig configures the Service.
type ServiceConfig struct {
	Catalogs  brandconfig.Store
	Prices    baseprice.Source
	Items     ItemReader
	Repo      Repository
	PriceLogs pricelog.Store
	Locker    Locker
	LockTTL   time.Duration
	Scheduler MaterializeScheduler
	Logger    *zerolog.Logger
	Now       func() time.Time
	NewID     func() string
}

// Service implements the non-standard item workflows.
type Service struct {
	catalogs  brandconfig.Store
	prices    baseprice.Source
	items     ItemReader
	repo      Repository
	logs      pricelog.Store
	locker    Locker
	lockTTL   time.Duration
	scheduler MaterializeScheduler
	logger    *zerolog.Logger
	now       func() time.Time
	newID     func() string
	drafts    *draftGates
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalogs == nil || cfg.Prices == nil || cfg.Items == nil {
		return nil, errors.New("nonstd: catalogs, prices and items are required")
	}
	if cfg.Repo == nil || cfg.PriceLogs == nil {
		return nil, errors.New("nonstd: repository and price log store are required")
	}
	s := &Service{
		catalogs:  cfg.Catalogs,
		prices:    cfg.Prices,
		items:     cfg.Items,
		repo:      cfg.Repo,
		logs:      cfg.PriceLogs,
		locker:    cfg.Locker,
		lockTTL:   cfg.LockTTL,
		scheduler: cfg.Scheduler,
		logger:    obs.LoggerOrNop(cfg.Logger),
		now:       cfg.Now,
		newID:     cfg.NewID,
		drafts:    newDraftGates(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	return s, nil
}

// baseItem loads the item a non-standard motor derives from.
func (s *Service) baseItem(ctx context.Context, code string) (items.Item, error) {
	it, err := s.items.Get(ctx, code)
	if err != nil {
		if errors.Is(err, items.ErrNotFound) {
			return items.Item{}, common.NotFound(fmt.Sprintf("base item %s not found", code))
		}
		return items.Item{}, common.Transport("load base item", err)
	}
	return it, nil
}

// catalog loads the brand catalog filtered for target. A brand without an
// active configuration yields an empty catalog and a warning.
func (s *Service) catalog(ctx context.Context, brand string, target valuation.Target) ([]valuation.ParameterConfig, []string, error) {
	raw, err := s.catalogs.ActiveCatalog(ctx, brand)
	if err != nil {
		return nil, nil, common.Transport("load brand configuration", err)
	}
	if len(raw) == 0 {
		s.logger.Warn().Str("brand", brand).Msg("no active brand configuration")
		return []valuation.ParameterConfig{}, []string{fmt.Sprintf("no active motor configuration found for brand %s", brand)}, nil
	}
	return valuation.FilterCatalog(raw, target), nil, nil
}

func targetOf(it items.Item) valuation.Target {
	return valuation.Target{Flameproof: it.Flameproof, FrameSize: it.FrameSize}
}

// Catalog returns the parameters of brand that apply to baseItem.
func (s *Service) Catalog(ctx context.Context, brand, baseItem string) (CatalogView, error) {
	brand = strings.TrimSpace(brand)
	baseItem = strings.TrimSpace(baseItem)
	if brand == "" || baseItem == "" {
		return CatalogView{}, common.Validation("brand and base item are required", nil)
	}
	it, err := s.baseItem(ctx, baseItem)
	if err != nil {
		return CatalogView{}, err
	}
	params, warnings, err := s.catalog(ctx, brand, targetOf(it))
	if err != nil {
		return CatalogView{}, err
	}
	return CatalogView{
		Brand:      brand,
		BaseItem:   baseItem,
		FrameSize:  it.FrameSize,
		Flameproof: it.Flameproof,
		Parameters: params,
		Warnings:   warnings,
	}, nil
}

// resolve turns choices into priced selections using the filtered catalog. The
// selections come back in catalog order whatever order the choices arrive in.
func resolve(catalog []valuation.ParameterConfig, choices []Choice) ([]valuation.SelectedParameter, error) {
	byCode := make(map[string]valuation.ParameterConfig, len(catalog))
	for _, p := range catalog {
		byCode[p.Code] = p
	}
	seen := make(map[string]struct{}, len(choices))
	out := make([]valuation.SelectedParameter, 0, len(choices))
	var problems []string
	for _, c := range choices {
		code := strings.TrimSpace(c.Code)
		value := strings.TrimSpace(c.Value)
		if _, dup := seen[code]; dup {
			problems = append(problems, fmt.Sprintf("parameter %s selected more than once", code))
			continue
		}
		seen[code] = struct{}{}
		param, ok := byCode[code]
		if !ok {
			problems = append(problems, fmt.Sprintf("parameter %s is not configured for this brand", code))
			continue
		}
		sel, ok := param.Select(value)
		if !ok {
			problems = append(problems, fmt.Sprintf("value %q is not available for parameter %s", value, code))
			continue
		}
		out = append(out, sel)
	}
	if len(problems) > 0 {
		return nil, common.Validation("invalid parameter selection", problems)
	}
	return valuation.OrderByCatalog(catalog, out), nil
}

func discountError(err error) error {
	if errors.Is(err, valuation.ErrDiscountOutOfRange) || errors.Is(err, valuation.ErrUnknownDiscountStage) {
		return common.Validation(err.Error(), nil)
	}
	return err
}

func (s *Service) quote(ctx context.Context, d Draft) (Quote, error) {
	d.BaseItem = strings.TrimSpace(d.BaseItem)
	d.Brand = strings.TrimSpace(d.Brand)
	if d.BaseItem == "" || d.Brand == "" {
		return Quote{}, common.Validation("base item and brand are required", nil)
	}
	stage, err := valuation.ParseDiscountStage(d.ApplyDiscountAfter)
	if err != nil {
		return Quote{}, discountError(err)
	}
	if d.DiscountPercentage.IsNegative() || d.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return Quote{}, discountError(valuation.ErrDiscountOutOfRange)
	}

	it, err := s.baseItem(ctx, d.BaseItem)
	if err != nil {
		return Quote{}, err
	}
	catalog, warnings, err := s.catalog(ctx, d.Brand, targetOf(it))
	if err != nil {
		return Quote{}, err
	}
	selections, err := resolve(catalog, d.Choices)
	if err != nil {
		return Quote{}, err
	}

	price, err := s.prices.BasePrice(ctx, d.BaseItem, d.Brand)
	if err != nil {
		return Quote{}, common.Transport("load base price", err)
	}
	if price.IsZero() {
		s.logger.Warn().Str("base_item", d.BaseItem).Msg("no buying price, valuing from zero")
		warnings = append(warnings, fmt.Sprintf("no buying price found for %s, base price taken as 0", d.BaseItem))
	}

	res, err := valuation.Evaluate(d.BaseItem, price, selections, stage, d.DiscountPercentage)
	if err != nil {
		return Quote{}, discountError(err)
	}
	if len(res.Ignored) > 0 {
		obs.AddUnknownModes(len(res.Ignored))
		s.logger.Warn().Strs("parameters", res.Ignored).Str("brand", d.Brand).Msg("parameters with unknown pricing mode ignored")
		warnings = append(warnings, fmt.Sprintf("unknown pricing mode, not priced: %s", strings.Join(res.Ignored, ", ")))
	}

	return Quote{
		BaseItem:           d.BaseItem,
		Brand:              d.Brand,
		ItemGroup:          it.Group,
		FrameSize:          it.FrameSize,
		Flameproof:         it.Flameproof,
		BasePrice:          price,
		Parameters:         selections,
		DiscountStage:      stage,
		DiscountPercentage: d.DiscountPercentage,
		Result:             res,
		Description:        valuation.Describe(price, selections),
		Warnings:           warnings,
	}, nil
}

// Preview prices a draft without saving anything. Drafts carrying a key are
// sequenced per key: a preview overtaken by a newer edit is marked Superseded.
func (s *Service) Preview(ctx context.Context, d Draft) (Quote, error) {
	key := strings.TrimSpace(d.Key)
	if key == "" {
		q, err := s.quote(ctx, d)
		if err != nil {
			return Quote{}, err
		}
		obs.IncValuationComputed("preview")
		return q, nil
	}

	gate, ticket := s.drafts.begin(key, s.now())
	q, err := s.quote(ctx, d)
	if err != nil {
		return Quote{}, err
	}
	if !gate.Commit(ticket, q.Result) {
		q.Superseded = true
		s.logger.Debug().Str("draft", key).Uint64("ticket", ticket).Msg("stale preview discarded")
		obs.IncValuationComputed("preview_stale")
		return q, nil
	}
	obs.IncValuationComputed("preview")
	return q, nil
}

// Create saves a draft as a new non-standard item together with its first
// price log entry, then queues creation of the item master row.
func (s *Service) Create(ctx context.Context, d Draft) (Created, error) {
	if len(d.Choices) == 0 {
		obs.IncNonStandardItemCreated("invalid")
		return Created{}, common.Validation("select at least one parameter", nil)
	}
	q, err := s.quote(ctx, d)
	if err != nil {
		obs.IncNonStandardItemCreated(resultLabel(err))
		return Created{}, err
	}
	obs.IncValuationComputed("create")

	now := s.now().UTC()
	user, _ := common.UserID(ctx)
	rec := Record{
		ID:                 s.newID(),
		BaseItem:           q.BaseItem,
		Brand:              q.Brand,
		ItemGroup:          q.ItemGroup,
		FrameSize:          q.FrameSize,
		Flameproof:         q.Flameproof,
		BasePrice:          q.BasePrice,
		ApplyDiscountAfter: q.DiscountStage,
		DiscountPercentage: decimal.Zero,
		ItemCode:           q.Result.ItemCode,
		ValuationPrice:     q.Result.ValuationPrice,
		Description:        q.Description,
		CreatedBy:          user,
		Parameters:         q.Parameters,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	var entry pricelog.Entry
	save := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(tx Tx) error {
			taken, err := tx.ItemCodeTaken(ctx, rec.ItemCode)
			if err != nil {
				return common.Transport("check item code", err)
			}
			if taken {
				return common.Conflict(fmt.Sprintf("item %s already exists", rec.ItemCode))
			}
			if err := tx.InsertRecord(ctx, rec); err != nil {
				if errors.Is(err, ErrDuplicateCode) {
					return common.Conflict(fmt.Sprintf("item %s already exists", rec.ItemCode))
				}
				return common.Transport("save non-standard item", err)
			}
			entry, err = tx.AppendPriceLog(ctx, pricelog.Entry{
				CreationID:         rec.ID,
				ItemCode:           rec.ItemCode,
				ReferenceDoctype:   strings.TrimSpace(d.ReferenceDoctype),
				ReferenceName:      strings.TrimSpace(d.ReferenceName),
				DiscountStage:      string(q.DiscountStage),
				DiscountPercentage: q.DiscountPercentage,
				DiscountAmount:     q.Result.DiscountAmount,
				ValuationPrice:     rec.ValuationPrice,
				FinalPrice:         q.Result.FinalPrice,
				CreatedBy:          user,
				CreatedAt:          now,
			})
			if err != nil {
				return common.Transport("append price log", err)
			}
			if err := tx.Emit(ctx, events.TopicNonStandardItemCreated, rec.ID, createdEvent(rec)); err != nil {
				return common.Transport("record creation event", err)
			}
			if err := tx.Emit(ctx, events.TopicPriceLogAppended, rec.ID, entry); err != nil {
				return common.Transport("record price log event", err)
			}
			return nil
		})
	}
	if err := s.withItemLock(ctx, rec.ItemCode, save); err != nil {
		obs.IncNonStandardItemCreated(resultLabel(err))
		return Created{}, err
	}
	obs.IncNonStandardItemCreated("created")
	obs.IncPriceLogAppended(entry.DiscountStage)

	warnings := q.Warnings
	if err := s.schedule(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("item_code", rec.ItemCode).Msg("queue item materialisation")
		warnings = append(warnings, "item master creation could not be queued")
	}
	s.logger.Info().Str("id", rec.ID).Str("item_code", rec.ItemCode).Str("valuation_price", rec.ValuationPrice.StringFixed(2)).Msg("non-standard item created")
	return Created{Record: rec, PriceLog: entry, Warnings: warnings}, nil
}

func (s *Service) withItemLock(ctx context.Context, code string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, "nonstd:"+code, s.lockTTL, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return common.Conflict(fmt.Sprintf("item %s is being created by another request", code))
	}
	if err != nil && !common.IsAppError(err) {
		return common.Transport("acquire item lock", err)
	}
	return err
}

func (s *Service) schedule(ctx context.Context, rec Record) error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Schedule(ctx, items.MaterializePayload{
		CreationID:    rec.ID,
		ItemCode:      rec.ItemCode,
		BaseItem:      rec.BaseItem,
		ItemGroup:     rec.ItemGroup,
		Brand:         rec.Brand,
		FrameSize:     rec.FrameSize,
		Flameproof:    rec.Flameproof,
		ValuationRate: rec.ValuationPrice,
		Description:   rec.Description,
	})
}

func createdEvent(rec Record) map[string]any {
	return map[string]any{
		"id":              rec.ID,
		"item_code":       rec.ItemCode,
		"base_item":       rec.BaseItem,
		"brand":           rec.Brand,
		"valuation_price": rec.ValuationPrice,
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, common.ErrValidation):
		return "invalid"
	case errors.Is(err, common.ErrConflict):
		return "conflict"
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", common.NotFound("non-standard item not found")
	}
	return parsed.String(), nil
}

// Get returns a creation record with its parameters.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	id, err := parseID(id)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, recordError(err)
	}
	return rec, nil
}

func recordError(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return common.NotFound("non-standard item not found")
	}
	if common.IsAppError(err) {
		return err
	}
	return common.Transport("load non-standard item", err)
}

// UpdateDiscount re-prices a created item at a new discount and appends a
// price log entry. Only the discount stage of the record is updated; prices
// stay as created and discounted prices live in the price log.
func (s *Service) UpdateDiscount(ctx context.Context, id string, u DiscountUpdate) (DiscountOutcome, error) {
	id, err := parseID(id)
	if err != nil {
		return DiscountOutcome{}, err
	}
	stage, err := valuation.ParseDiscountStage(u.ApplyDiscountAfter)
	if err != nil {
		return DiscountOutcome{}, discountError(err)
	}
	if u.DiscountPercentage.IsNegative() || u.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return DiscountOutcome{}, discountError(valuation.ErrDiscountOutOfRange)
	}

	user, _ := common.UserID(ctx)
	now := s.now().UTC()
	var out DiscountOutcome
	err = s.repo.InTx(ctx, func(tx Tx) error {
		rec, err := tx.LockRecord(ctx, id)
		if err != nil {
			return recordError(err)
		}
		d, err := valuation.ApplyDiscount(rec.BasePrice, rec.Parameters, rec.ValuationPrice, stage, u.DiscountPercentage)
		if err != nil {
			return discountError(err)
		}
		if err := tx.UpdateDiscount(ctx, id, stage, now); err != nil {
			return common.Transport("update discount", err)
		}
		entry, err := tx.AppendPriceLog(ctx, pricelog.Entry{
			CreationID:         rec.ID,
			ItemCode:           rec.ItemCode,
			ReferenceDoctype:   strings.TrimSpace(u.ReferenceDoctype),
			ReferenceName:      strings.TrimSpace(u.ReferenceName),
			DiscountStage:      string(stage),
			DiscountPercentage: u.DiscountPercentage,
			DiscountAmount:     d.DiscountAmount,
			ValuationPrice:     rec.ValuationPrice,
			FinalPrice:         d.FinalPrice,
			CreatedBy:          user,
			CreatedAt:          now,
		})
		if err != nil {
			return common.Transport("append price log", err)
		}
		if err := tx.Emit(ctx, events.TopicPriceLogAppended, rec.ID, entry); err != nil {
			return common.Transport("record price log event", err)
		}
		out = DiscountOutcome{
			OldPrice:       rec.ValuationPrice,
			NewPrice:       d.FinalPrice,
			DiscountAmount: d.DiscountAmount,
			Message:        fmt.Sprintf("Price updated from %s to %s", valuation.FormatAmount(rec.ValuationPrice), valuation.FormatAmount(d.FinalPrice)),
			PriceLog:       entry,
		}
		return nil
	})
	if err != nil {
		if !common.IsAppError(err) {
			err = common.Transport("update discount", err)
		}
		return DiscountOutcome{}, err
	}
	obs.IncPriceLogAppended(string(stage))
	obs.IncValuationComputed("discount")
	return out, nil
}

// PriceLogs lists the price history of a creation, newest first.
func (s *Service) PriceLogs(ctx context.Context, id string, page common.Pagination) ([]PriceLogView, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.logs.List(ctx, rec.ID, page.PerPage, page.Offset())
	if err != nil {
		return nil, common.Transport("list price logs", err)
	}
	out := make([]PriceLogView, 0, len(entries))
	for _, e := range entries {
		out = append(out, PriceLogView{Entry: e, Reference: e.Reference(), Creator: e.Creator()})
	}
	return out, nil
}
