package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ValuationComputedTotal counts valuations computed, by operation.
	ValuationComputedTotal *prometheus.CounterVec
	// ValuationUnknownModeTotal counts selections skipped because their pricing mode was not recognised.
	ValuationUnknownModeTotal prometheus.Counter
	// PriceLogAppendedTotal counts price log entries written, by discount stage.
	PriceLogAppendedTotal *prometheus.CounterVec
	// NonStandardItemCreatedTotal counts creation attempts by outcome.
	NonStandardItemCreatedTotal *prometheus.CounterVec
	// CatalogLookupTotal counts brand catalog lookups by source (cache, store, missing).
	CatalogLookupTotal *prometheus.CounterVec
	// ItemMaterializeDuration records item materialisation latency in milliseconds.
	ItemMaterializeDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ValuationComputedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_computed_total",
			Help:      "Count of computed valuations by operation.",
		}, []string{"operation"}))
		ValuationUnknownModeTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valuation_unknown_mode_total",
			Help:      "Selections that contributed nothing because of an unknown pricing mode.",
		}))
		PriceLogAppendedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_log_appended_total",
			Help:      "Count of price log entries appended by discount stage.",
		}, []string{"stage"}))
		NonStandardItemCreatedTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonstandard_item_created_total",
			Help:      "Count of non-standard item creation attempts by result.",
		}, []string{"result"}))
		CatalogLookupTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brand_catalog_lookup_total",
			Help:      "Count of brand catalog lookups by source.",
		}, []string{"source"}))
		ItemMaterializeDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_materialize_duration_ms",
			Help:      "Latency of item materialisation tasks in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"result"}))
	})
}

// registerOrReuse registers c, returning the already registered collector of the
// same type when one exists.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return c
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return c
}

// The helpers below are nil-safe so packages can record metrics without
// requiring MustRegisterDomainMetrics in tests.

// IncValuationComputed records one computed valuation for operation.
func IncValuationComputed(operation string) {
	if ValuationComputedTotal != nil {
		ValuationComputedTotal.WithLabelValues(operation).Inc()
	}
}

// AddUnknownModes records n selections ignored for an unknown pricing mode.
func AddUnknownModes(n int) {
	if ValuationUnknownModeTotal != nil && n > 0 {
		ValuationUnknownModeTotal.Add(float64(n))
	}
}

// IncPriceLogAppended records an appended price log entry.
func IncPriceLogAppended(stage string) {
	if stage == "" {
		stage = "none"
	}
	if PriceLogAppendedTotal != nil {
		PriceLogAppendedTotal.WithLabelValues(stage).Inc()
	}
}

// IncNonStandardItemCreated records a creation outcome.
func IncNonStandardItemCreated(result string) {
	if NonStandardItemCreatedTotal != nil {
		NonStandardItemCreatedTotal.WithLabelValues(result).Inc()
	}
}

// IncCatalogLookup records where a brand catalog was served from.
func IncCatalogLookup(source string) {
	if CatalogLookupTotal != nil {
		CatalogLookupTotal.WithLabelValues(source).Inc()
	}
}

// ObserveItemMaterialize records the duration of an item materialisation task.
func ObserveItemMaterialize(result string, ms float64) {
	if ItemMaterializeDuration != nil {
		ItemMaterializeDuration.WithLabelValues(result).Observe(ms)
	}
}
