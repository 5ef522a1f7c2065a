package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpos/backend/internal/cache"
	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

const (
	DefaultCacheTTL   = 30 * time.Second
	DefaultWindowDays = 30
	trendDays         = 7
	topProducts       = 5
)

// Source is the read side the aggregator needs. store.Repository satisfies it.
type Source interface {
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error)
}

type Aggregator struct {
	source     Source
	cache      cache.MetricsCache
	cacheTTL   time.Duration
	loc        *time.Location
	windowDays int
	logger     *zap.Logger
}

func NewAggregator(source Source, cacheStore cache.MetricsCache, cacheTTL time.Duration, loc *time.Location, windowDays int, logger *zap.Logger) *Aggregator {
	if cacheStore == nil {
		cacheStore = cache.NoopMetricsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if loc == nil {
		loc = time.UTC
	}
	if windowDays < trendDays {
		windowDays = DefaultWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		source:     source,
		cache:      cacheStore,
		cacheTTL:   cacheTTL,
		loc:        loc,
		windowDays: windowDays,
		logger:     logger.Named("metrics"),
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Snapshot returns the dashboard rollups as of now. A cached copy may be up
// to cacheTTL old. Cache failures are logged and otherwise ignored.
func (a *Aggregator) Snapshot(ctx context.Context, now time.Time) (domain.MetricsSnapshot, error) {
	windowStart, windowEnd := a.window(now)
	key := cache.SnapshotKey{Day: startOfDay(now, a.loc).Format("2006-01-02"), WindowDays: a.windowDays}

	if cached, ok, err := a.cache.Get(ctx, key); err != nil {
		a.logger.Warn("metrics cache read failed", zap.String("day", key.Day), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	sales, err := a.source.ListSales(ctx, windowStart, windowEnd)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("load sales: %w", err)
	}
	pending, err := a.source.ListOrders(ctx, store.OrderFilter{States: domain.PendingOrderStates})
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("load pending orders: %w", err)
	}

	snapshot := Compute(sales, len(pending), now, a.loc, a.windowDays)
	if err := a.cache.Set(ctx, key, &snapshot, a.cacheTTL); err != nil {
		a.logger.Warn("metrics cache write failed", zap.String("day", key.Day), zap.Error(err))
	}
	return snapshot, nil
}

func (a *Aggregator) window(now time.Time) (time.Time, time.Time) {
	today := startOfDay(now, a.loc)
	return today.AddDate(0, 0, -(a.windowDays - 1)), today.AddDate(0, 0, 1)
}

// Compute derives every rollup from the given sales. Sales outside the
// reporting window are ignored, so callers may pass a superset.
func Compute(sales []domain.Sale, pendingOrders int, now time.Time, loc *time.Location, windowDays int) domain.MetricsSnapshot {
	if loc == nil {
		loc = time.UTC
	}
	if windowDays < trendDays {
		windowDays = trendDays
	}
	today := startOfDay(now, loc)
	tomorrow := today.AddDate(0, 0, 1)
	windowStart := today.AddDate(0, 0, -(windowDays - 1))
	trendStart := today.AddDate(0, 0, -(trendDays - 1))

	snapshot := domain.MetricsSnapshot{
		PendingOrderCount: pendingOrders,
		WindowStart:       windowStart,
		WindowEnd:         tomorrow,
		GeneratedAt:       now,
	}

	days := make([]domain.DaySales, trendDays)
	for i := range days {
		day := trendStart.AddDate(0, 0, i)
		days[i] = domain.DaySales{Label: day.Weekday().String()[:3], Date: day.Format("2006-01-02")}
	}

	var windowTotal int64
	windowCount := 0
	quantities := make(map[string]int)
	cashiers := make(map[string]*domain.CashierTotals)

	for _, sale := range sales {
		at := sale.CreatedAt.In(loc)
		if at.Before(windowStart) || !at.Before(tomorrow) {
			continue
		}
		windowTotal += sale.NetTotal
		windowCount++

		if !at.Before(today) {
			snapshot.TodaysSalesTotal += sale.NetTotal
			snapshot.TodaysOrderCount++
		}
		if !at.Before(trendStart) {
			idx := int(startOfDay(at, loc).Sub(trendStart).Hours()+0.5) / 24
			if idx >= 0 && idx < trendDays {
				days[idx].Total += sale.NetTotal
				days[idx].Count++
			}
		}

		for _, line := range sale.Items {
			quantities[line.Name] += line.Quantity
		}

		ct, ok := cashiers[sale.CashierID]
		if !ok {
			ct = &domain.CashierTotals{CashierID: sale.CashierID}
			cashiers[sale.CashierID] = ct
		}
		if sale.CashierName != "" {
			ct.CashierName = sale.CashierName
		}
		ct.Total += sale.NetTotal
		ct.OrderCount++
	}

	snapshot.AverageTicket = average(windowTotal, windowCount)
	snapshot.Top5Products = topByQuantity(quantities, topProducts)
	snapshot.DailySalesLast7 = mondayFirst(days)

	snapshot.PerCashierTotals = make([]domain.CashierTotals, 0, len(cashiers))
	for _, ct := range cashiers {
		ct.AverageTicket = average(ct.Total, ct.OrderCount)
		snapshot.PerCashierTotals = append(snapshot.PerCashierTotals, *ct)
	}
	sort.Slice(snapshot.PerCashierTotals, func(i, j int) bool {
		a, b := snapshot.PerCashierTotals[i], snapshot.PerCashierTotals[j]
		if a.Total == b.Total {
			return a.CashierID < b.CashierID
		}
		return a.Total > b.Total
	})
	return snapshot
}

func topByQuantity(quantities map[string]int, limit int) []domain.ProductQuantity {
	out := make([]domain.ProductQuantity, 0, len(quantities))
	for name, qty := range quantities {
		out = append(out, domain.ProductQuantity{Name: name, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].Name < out[j].Name
		}
		return out[i].Quantity > out[j].Quantity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// mondayFirst reorders seven consecutive days so Monday comes first.
func mondayFirst(days []domain.DaySales) []domain.DaySales {
	out := append([]domain.DaySales(nil), days...)
	sort.SliceStable(out, func(i, j int) bool {
		return weekdayIndex(out[i].Date) < weekdayIndex(out[j].Date)
	})
	return out
}

func weekdayIndex(date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 7
	}
	return (int(t.Weekday()) + 6) % 7
}

func average(total int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(count))).Round(0).IntPart()
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
