package nonstd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/motor-valuation/internal/common"
	"github.com/noah-isme/motor-valuation/internal/events"
	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/lock"
	"github.com/noah-isme/motor-valuation/internal/valuation"
)

const creationID = "5f0c1d2e-3b4a-4c5d-8e9f-0a1b2c3d4e5f"

type fixture struct {
	svc       *Service
	repo      *memRepo
	locker    *fakeLocker
	scheduler *fakeScheduler
}

func newFixture(t *testing.T, opts ...func(*ServiceConfig)) fixture {
	t.Helper()
	repo := newMemRepo()
	f := fixture{repo: repo, locker: &fakeLocker{}, scheduler: &fakeScheduler{}}
	cfg := ServiceConfig{
		Catalogs: fakeCatalogs{catalogs: map[string][]valuation.ParameterConfig{"Siemens": siemensCatalog()}},
		Prices:   fakePrices{prices: map[string]decimal.Decimal{"1LE7-160": decimal.NewFromInt(1000)}},
		Items: fakeItems{
			"1LE7-160": {Code: "1LE7-160", Group: "Motors", Brand: "Siemens", FrameSize: intPtr(160), Flameproof: true},
			"NOPRICE":  {Code: "NOPRICE", Group: "Motors"},
		},
		Repo:      repo,
		PriceLogs: repo,
		Locker:    f.locker,
		Scheduler: f.scheduler,
		Now:       func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
		NewID:     func() string { return creationID },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func fullDraft() Draft {
	return Draft{
		BaseItem: "1LE7-160",
		Brand:    "Siemens",
		Choices: []Choice{
			{Code: "SH", Value: "Yes"},
			{Code: "PT", Value: "Epoxy"},
			{Code: "VF", Value: "460V"},
		},
	}
}

func TestPreviewResolvesSelections(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.Preview(context.Background(), fullDraft())
	require.NoError(t, err)
	require.Equal(t, "1LE7-160_VF-460V_SH-Yes_PT-Epoxy", q.Result.ItemCode)
	require.Equal(t, "2500", q.Result.ValuationPrice.String())
	require.Equal(t, "2500", q.Result.FinalPrice.String())
	require.Equal(t, "Motors", q.ItemGroup)
	require.Empty(t, q.Warnings)
	require.Contains(t, q.Description, "Final Price (Zero Discount)")
}

func TestPreviewDiscountStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := fullDraft()
	d.ApplyDiscountAfter = "Absolute Amount"
	d.DiscountPercentage = decimal.NewFromInt(10)
	q, err := f.svc.Preview(ctx, d)
	require.NoError(t, err)
	require.Equal(t, "2500", q.Result.ValuationPrice.String())
	require.Equal(t, "2250", q.Result.FinalPrice.String())
	require.Equal(t, "250", q.Result.DiscountAmount.String())

	d.ApplyDiscountAfter = "Percentage Values"
	q, err = f.svc.Preview(ctx, d)
	require.NoError(t, err)
	require.Equal(t, "2392.5", q.Result.FinalPrice.String())
	require.Equal(t, "107.5", q.Result.DiscountAmount.String())
}

func TestPreviewValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(*Draft){
		"missing brand":     func(d *Draft) { d.Brand = "" },
		"unknown stage":     func(d *Draft) { d.ApplyDiscountAfter = "Sometimes" },
		"discount too high": func(d *Draft) { d.DiscountPercentage = decimal.NewFromInt(101) },
		"negative discount": func(d *Draft) { d.DiscountPercentage = decimal.NewFromInt(-1) },
		"unknown parameter": func(d *Draft) { d.Choices = append(d.Choices, Choice{Code: "XX", Value: "1"}) },
		"unknown value":     func(d *Draft) { d.Choices[0].Value = "Maybe" },
		"duplicate code":    func(d *Draft) { d.Choices = append(d.Choices, Choice{Code: "SH", Value: "Yes"}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := fullDraft()
			mutate(&d)
			_, err := f.svc.Preview(ctx, d)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestPreviewFiltersOptionsForMotor(t *testing.T) {
	f := newFixture(t, func(c *ServiceConfig) {
		c.Items = fakeItems{"1LE7-180": {Code: "1LE7-180", FrameSize: intPtr(180)}}
		c.Prices = fakePrices{prices: map[string]decimal.Decimal{"1LE7-180": decimal.NewFromInt(1000)}}
	})
	d := Draft{BaseItem: "1LE7-180", Brand: "Siemens", Choices: []Choice{{Code: "VF", Value: "460V"}, {Code: "SH", Value: "Yes"}}}

	q, err := f.svc.Preview(context.Background(), d)
	require.NoError(t, err)
	// frame 180 picks the 10% option, non-flameproof the 900 heater.
	require.Equal(t, "2000", q.Result.ValuationPrice.String())
}

func TestPreviewFailOpenWarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.Preview(ctx, Draft{BaseItem: "NOPRICE", Brand: "Unknown"})
	require.NoError(t, err)
	require.Equal(t, "NOPRICE", q.Result.ItemCode)
	require.True(t, q.Result.ValuationPrice.IsZero())
	require.Len(t, q.Warnings, 2)

	_, err = f.svc.Preview(ctx, Draft{BaseItem: "NOPRICE", Brand: "Unknown", Choices: []Choice{{Code: "SH", Value: "Yes"}}})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestPreviewReportsUnknownPricingMode(t *testing.T) {
	f := newFixture(t)
	d := fullDraft()
	d.Choices = append(d.Choices, Choice{Code: "TR", Value: "T1"})

	q, err := f.svc.Preview(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, "2500", q.Result.ValuationPrice.String())
	require.Equal(t, []string{"TR"}, q.Result.Ignored)
	require.Len(t, q.Warnings, 1)
}

func TestPreviewCollaboratorErrors(t *testing.T) {
	boom := errors.New("connection refused")
	ctx := context.Background()

	f := newFixture(t, func(c *ServiceConfig) { c.Catalogs = fakeCatalogs{err: boom} })
	_, err := f.svc.Preview(ctx, fullDraft())
	require.ErrorIs(t, err, common.ErrTransport)
	require.ErrorIs(t, err, boom)

	f = newFixture(t, func(c *ServiceConfig) { c.Prices = fakePrices{err: boom} })
	_, err = f.svc.Preview(ctx, fullDraft())
	require.ErrorIs(t, err, common.ErrTransport)

	f = newFixture(t)
	d := fullDraft()
	d.BaseItem = "MISSING"
	_, err = f.svc.Preview(ctx, d)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreatePersistsRecordAndPriceLog(t *testing.T) {
	f := newFixture(t)
	ctx := common.WithUserID(context.Background(), "estimator@example.com")
	d := fullDraft()
	d.ApplyDiscountAfter = "Absolute Amount"
	d.DiscountPercentage = decimal.NewFromInt(10)
	d.ReferenceDoctype = "Quotation"
	d.ReferenceName = "QTN-0001"

	created, err := f.svc.Create(ctx, d)
	require.NoError(t, err)

	rec := created.Record
	require.Equal(t, creationID, rec.ID)
	require.Equal(t, "1LE7-160_VF-460V_SH-Yes_PT-Epoxy", rec.ItemCode)
	require.Equal(t, "2500", rec.ValuationPrice.String())
	require.True(t, rec.DiscountPercentage.IsZero())
	require.Equal(t, valuation.StageAfterAbsolute, rec.ApplyDiscountAfter)
	require.Equal(t, "estimator@example.com", rec.CreatedBy)
	require.Len(t, rec.Parameters, 3)

	require.Len(t, f.repo.logs, 1)
	entry := f.repo.logs[0]
	require.Equal(t, "Quotation: QTN-0001", entry.Reference())
	require.Equal(t, "10", entry.DiscountPercentage.String())
	require.Equal(t, "250", entry.DiscountAmount.String())
	require.Equal(t, "2500", entry.ValuationPrice.String())
	require.Equal(t, "2250", entry.FinalPrice.String())

	require.Equal(t, []emitted{
		{topic: events.TopicNonStandardItemCreated, aggregate: creationID},
		{topic: events.TopicPriceLogAppended, aggregate: creationID},
	}, f.repo.events)
	require.Equal(t, []string{"nonstd:" + rec.ItemCode}, f.locker.names)

	require.Len(t, f.scheduler.payloads, 1)
	p := f.scheduler.payloads[0]
	require.Equal(t, rec.ItemCode, p.ItemCode)
	require.Equal(t, "2500", p.ValuationRate.String())
	require.True(t, p.Flameproof)
}

func TestCreateRequiresParameters(t *testing.T) {
	f := newFixture(t)
	d := fullDraft()
	d.Choices = nil

	_, err := f.svc.Create(context.Background(), d)
	require.ErrorIs(t, err, common.ErrValidation)
	require.Empty(t, f.repo.records)
}

func TestCreateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, fullDraft())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, fullDraft())
	require.ErrorIs(t, err, common.ErrConflict)
	require.Len(t, f.repo.logs, 1)

	f = newFixture(t)
	f.repo.taken["1LE7-160_VF-460V_SH-Yes_PT-Epoxy"] = true
	_, err = f.svc.Create(ctx, fullDraft())
	require.ErrorIs(t, err, common.ErrConflict)

	f = newFixture(t)
	f.locker.err = lock.ErrNotAcquired
	_, err = f.svc.Create(ctx, fullDraft())
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestCreateRollsBackWhenPriceLogFails(t *testing.T) {
	f := newFixture(t)
	f.repo.appendErr = errors.New("disk full")

	_, err := f.svc.Create(context.Background(), fullDraft())
	require.ErrorIs(t, err, common.ErrTransport)
	require.Empty(t, f.repo.records)
	require.Empty(t, f.repo.events)
	require.Empty(t, f.scheduler.payloads)
}

func TestCreateKeepsRecordWhenQueueFails(t *testing.T) {
	f := newFixture(t)
	f.scheduler.err = errors.New("redis down")

	created, err := f.svc.Create(context.Background(), fullDraft())
	require.NoError(t, err)
	require.Contains(t, created.Warnings, "item master creation could not be queued")
	require.Len(t, f.repo.records, 1)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, fullDraft())
	require.NoError(t, err)

	rec, err := f.svc.Get(ctx, creationID)
	require.NoError(t, err)
	require.Equal(t, "1LE7-160_VF-460V_SH-Yes_PT-Epoxy", rec.ItemCode)

	_, err = f.svc.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.svc.Get(ctx, "0b0f6c8e-5a8c-4f7e-9f59-1f1f1f1f1f1f")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateDiscountAppendsEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, fullDraft())
	require.NoError(t, err)

	out, err := f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{
		ApplyDiscountAfter: "Percentage Values",
		DiscountPercentage: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	require.Equal(t, "2500", out.OldPrice.String())
	require.Equal(t, "2392.5", out.NewPrice.String())
	require.Equal(t, "107.5", out.DiscountAmount.String())
	require.Contains(t, out.Message, "Price updated from")

	rec, err := f.svc.Get(ctx, creationID)
	require.NoError(t, err)
	require.Equal(t, "2500", rec.ValuationPrice.String())
	require.Equal(t, valuation.StageAfterPercentage, rec.ApplyDiscountAfter)
	require.True(t, rec.DiscountPercentage.IsZero())

	require.Len(t, f.repo.logs, 2)
	require.Equal(t, "2500", f.repo.logs[1].ValuationPrice.String())
	require.Equal(t, "Direct Creation", f.repo.logs[1].Reference())
	require.Equal(t, "2500", f.repo.logs[0].FinalPrice.String())
}

func TestUpdateDiscountLeavesStoredPricesUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := fullDraft()
	d.ApplyDiscountAfter = "Absolute Amount"
	d.DiscountPercentage = decimal.NewFromInt(10)
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)
	before := f.repo.records[creationID]

	for _, pct := range []int64{20, 5} {
		out, err := f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{
			ApplyDiscountAfter: "Absolute Amount",
			DiscountPercentage: decimal.NewFromInt(pct),
		})
		require.NoError(t, err)
		require.Equal(t, "2500", out.OldPrice.String())
		require.Equal(t, "Price updated from ₹2,500.00 to "+valuation.FormatAmount(out.NewPrice), out.Message)
	}

	after := f.repo.records[creationID]
	require.True(t, before.BasePrice.Equal(after.BasePrice))
	require.True(t, before.ValuationPrice.Equal(after.ValuationPrice))
	require.True(t, after.DiscountPercentage.IsZero())
	require.Equal(t, before.Parameters, after.Parameters)
	require.Equal(t, before.ItemCode, after.ItemCode)

	require.Len(t, f.repo.logs, 3)
	require.Equal(t, "2250", f.repo.logs[0].FinalPrice.String())
	require.Equal(t, "2000", f.repo.logs[1].FinalPrice.String())
	require.Equal(t, "2375", f.repo.logs[2].FinalPrice.String())
}

func TestCreateOrdersSelectionsByCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orders := [][]Choice{
		{{Code: "PT", Value: "Epoxy"}, {Code: "VF", Value: "460V"}, {Code: "SH", Value: "Yes"}},
		{{Code: "VF", Value: "460V"}, {Code: "SH", Value: "Yes"}, {Code: "PT", Value: "Epoxy"}},
		{{Code: "SH", Value: "Yes"}, {Code: "PT", Value: "Epoxy"}, {Code: "VF", Value: "460V"}},
	}
	for _, choices := range orders {
		d := fullDraft()
		d.Choices = choices
		q, err := f.svc.Preview(ctx, d)
		require.NoError(t, err)
		require.Equal(t, "1LE7-160_VF-460V_SH-Yes_PT-Epoxy", q.Result.ItemCode)
		require.Equal(t, "2500", q.Result.ValuationPrice.String())

		codes := make([]string, 0, len(q.Parameters))
		for _, p := range q.Parameters {
			codes = append(codes, p.Code)
		}
		require.Equal(t, []string{"VF", "SH", "PT"}, codes)
	}

	d := fullDraft()
	d.Choices = orders[0]
	created, err := f.svc.Create(ctx, d)
	require.NoError(t, err)
	require.Equal(t, "1LE7-160_VF-460V_SH-Yes_PT-Epoxy", created.Record.ItemCode)
}

func TestUpdateDiscountErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{ApplyDiscountAfter: "Absolute Amount", DiscountPercentage: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{ApplyDiscountAfter: "Absolute Amount", DiscountPercentage: decimal.NewFromInt(150)})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{ApplyDiscountAfter: "later"})
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestPriceLogsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, fullDraft())
	require.NoError(t, err)
	_, err = f.svc.UpdateDiscount(ctx, creationID, DiscountUpdate{ApplyDiscountAfter: "Absolute Amount", DiscountPercentage: decimal.NewFromInt(10)})
	require.NoError(t, err)

	logs, err := f.svc.PriceLogs(ctx, creationID, common.Pagination{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "2250", logs[0].FinalPrice.String())
	require.Equal(t, "2500", logs[1].FinalPrice.String())
	require.Equal(t, "Direct Creation", logs[0].Reference)
	require.Equal(t, "System", logs[0].Creator)

	_, err = f.svc.PriceLogs(ctx, "0b0f6c8e-5a8c-4f7e-9f59-1f1f1f1f1f1f", common.Pagination{Page: 1, PerPage: 10})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Catalog(ctx, "Siemens", "1LE7-160")
	require.NoError(t, err)
	require.Len(t, view.Parameters, 4)
	require.Len(t, view.Parameters[0].Options, 1)
	require.Equal(t, "7.5", view.Parameters[0].Options[0].PriceValue.String())
	require.Len(t, view.Parameters[1].Options, 1)
	require.Equal(t, "1155", view.Parameters[1].Options[0].PriceValue.String())

	view, err = f.svc.Catalog(ctx, "Nobody", "1LE7-160")
	require.NoError(t, err)
	require.Empty(t, view.Parameters)
	require.Len(t, view.Warnings, 1)

	_, err = f.svc.Catalog(ctx, "Siemens", "")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	require.Error(t, err)
	_, err = NewService(ServiceConfig{Catalogs: fakeCatalogs{}, Prices: fakePrices{}, Items: fakeItems{}})
	require.Error(t, err)
}

var _ MaterializeScheduler = items.Scheduler{}
