package nonstd

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/pricelog"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

type fakeCatalogs struct {
	catalogs map[string][]valuation.ParameterConfig
	err      error
}

func (f fakeCatalogs) ActiveCatalog(_ context.Context, brand string) ([]valuation.ParameterConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.catalogs[brand], nil
}

type fakePrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f fakePrices) BasePrice(_ context.Context, code, _ string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.prices[code], nil
}

type fakeItems map[string]items.Item

func (f fakeItems) Get(_ context.Context, code string) (items.Item, error) {
	it, ok := f[code]
	if !ok {
		return items.Item{}, items.ErrNotFound
	}
	return it, nil
}

type emitted struct {
	topic     string
	aggregate string
}

// memRepo keeps committed state separate from the state of the running
// transaction so a failed callback leaves nothing behind.
type memRepo struct {
	records   map[string]Record
	logs      []pricelog.Entry
	events    []emitted
	taken     map[string]bool
	appendErr error
	seq       int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]Record{}, taken: map[string]bool{}}
}

func (m *memRepo) Get(_ context.Context, id string) (Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (m *memRepo) InTx(_ context.Context, fn func(Tx) error) error {
	tx := &memTx{repo: m, records: map[string]Record{}}
	for k, v := range m.records {
		tx.records[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.records = tx.records
	m.logs = append(m.logs, tx.logs...)
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *memRepo) List(_ context.Context, creationID string, limit, offset int) ([]pricelog.Entry, error) {
	var out []pricelog.Entry
	for _, e := range m.logs {
		if e.CreationID == creationID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Append(context.Context, pricelog.Entry) (pricelog.Entry, error) {
	return pricelog.Entry{}, errors.New("use a transaction")
}

type memTx struct {
	repo    *memRepo
	records map[string]Record
	logs    []pricelog.Entry
	events  []emitted
}

func (t *memTx) ItemCodeTaken(_ context.Context, code string) (bool, error) {
	if t.repo.taken[code] {
		return true, nil
	}
	for _, r := range t.records {
		if r.ItemCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRecord(_ context.Context, rec Record) error {
	t.records[rec.ID] = rec
	return nil
}

func (t *memTx) LockRecord(_ context.Context, id string) (Record, error) {
	rec, ok := t.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (t *memTx) UpdateDiscount(_ context.Context, id string, stage valuation.DiscountStage, at time.Time) error {
	rec := t.records[id]
	rec.ApplyDiscountAfter = stage
	rec.UpdatedAt = at
	t.records[id] = rec
	return nil
}

func (t *memTx) AppendPriceLog(_ context.Context, e pricelog.Entry) (pricelog.Entry, error) {
	if t.repo.appendErr != nil {
		return pricelog.Entry{}, t.repo.appendErr
	}
	t.repo.seq++
	e.ID = string(rune('A' + t.repo.seq))
	t.logs = append(t.logs, e)
	return e, nil
}

func (t *memTx) Emit(_ context.Context, topic, aggregateID string, _ any) error {
	t.events = append(t.events, emitted{topic: topic, aggregate: aggregateID})
	return nil
}

type fakeLocker struct {
	err   error
	names []string
}

func (l *fakeLocker) WithLock(ctx context.Context, name string, _ time.Duration, fn func(context.Context) error) error {
	l.names = append(l.names, name)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type fakeScheduler struct {
	payloads []items.MaterializePayload
	err      error
}

func (s *fakeScheduler) Schedule(_ context.Context, p items.MaterializePayload) error {
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func intPtr(v int) *int { return &v }

func motorType(m valuation.MotorType) *valuation.MotorType { return &m }

func siemensCatalog() []valuation.ParameterConfig {
	return []valuation.ParameterConfig{
		{
			Code: "VF", Name: "Volt/Frame", PricingMode: valuation.ModePercentage, FrameSizeDependent: true,
			Options: []valuation.ParameterOption{
				{Value: "460V", FrameSize: intPtr(160), PriceValue: decimal.RequireFromString("7.5")},
				{Value: "460V", FrameSize: intPtr(180), PriceValue: decimal.NewFromInt(10)},
			},
		},
		{
			Code: "SH", Name: "Space Heater", PricingMode: valuation.ModeFixedAmount, MotorTypeDependent: true,
			Options: []valuation.ParameterOption{
				{Value: "Yes", MotorType: motorType(valuation.MotorTypeFLP), PriceValue: decimal.NewFromInt(1155)},
				{Value: "Yes", MotorType: motorType(valuation.MotorTypeNonFLP), PriceValue: decimal.NewFromInt(900)},
			},
		},
		{
			Code: "PT", Name: "Paint", PricingMode: valuation.ModeBoth,
			Options: []valuation.ParameterOption{
				{Value: "Epoxy", PricePercent: decimal.NewFromInt(2), PriceAmount: decimal.NewFromInt(250)},
			},
		},
		{
			Code: "TR", Name: "Tiered", PricingMode: valuation.PricingMode("Tiered"),
			Options: []valuation.ParameterOption{{Value: "T1", PriceValue: decimal.NewFromInt(999)}},
		},
	}
}
