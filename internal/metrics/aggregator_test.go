package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"fastpos/backend/internal/cache"
	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/store"
)

// Thursday evening.
var now = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

type fakeSource struct {
	sales    []domain.Sale
	pending  []domain.Order
	calls    int
	salesErr error
}

func (f *fakeSource) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	f.calls++
	if f.salesErr != nil {
		return nil, f.salesErr
	}
	out := make([]domain.Sale, 0, len(f.sales))
	for _, sale := range f.sales {
		if !sale.CreatedAt.Before(from) && sale.CreatedAt.Before(to) {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (f *fakeSource) ListOrders(_ context.Context, _ store.OrderFilter) ([]domain.Order, error) {
	return f.pending, nil
}

type mapCache struct {
	values map[cache.SnapshotKey]domain.MetricsSnapshot
	getErr error
}

func (m *mapCache) Get(_ context.Context, key cache.SnapshotKey) (*domain.MetricsSnapshot, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (m *mapCache) Set(_ context.Context, key cache.SnapshotKey, value *domain.MetricsSnapshot, _ time.Duration) error {
	if m.values == nil {
		m.values = map[cache.SnapshotKey]domain.MetricsSnapshot{}
	}
	m.values[key] = *value
	return nil
}

func sale(id, cashier string, at time.Time, net int64, lines ...domain.SaleLine) domain.Sale {
	return domain.Sale{ID: id, CashierID: cashier, CashierName: cashier, NetTotal: net, Items: lines, CreatedAt: at}
}

func line(name string, qty int) domain.SaleLine {
	return domain.SaleLine{ProductID: name, Name: name, Quantity: qty}
}

func TestComputeDailyTrendCoversSevenDaysMondayFirst(t *testing.T) {
	sales := []domain.Sale{
		sale("s1", "ana", now.Add(-time.Hour), 10000),
		sale("s2", "ana", now.AddDate(0, 0, -1), 5000),
		sale("s3", "ana", now.AddDate(0, 0, -10), 7000),
		sale("s4", "ana", now.AddDate(0, 0, 1), 9999),
	}

	snap := Compute(sales, 0, now, time.UTC, 30)

	if len(snap.DailySalesLast7) != 7 {
		t.Fatalf("expected 7 days, got %d", len(snap.DailySalesLast7))
	}
	if snap.DailySalesLast7[0].Label != "Mon" || snap.DailySalesLast7[6].Label != "Sun" {
		t.Fatalf("expected Monday-first ordering, got %+v", snap.DailySalesLast7)
	}

	var total int64
	byDate := map[string]int64{}
	for _, day := range snap.DailySalesLast7 {
		total += day.Total
		byDate[day.Date] = day.Total
	}
	if total != 15000 {
		t.Fatalf("expected only today and yesterday in trend, got total %d", total)
	}
	if byDate["2026-10-15"] != 10000 || byDate["2026-10-14"] != 5000 {
		t.Fatalf("unexpected per-day totals: %+v", byDate)
	}
}

func TestComputeTodayAverageAndCashiers(t *testing.T) {
	sales := []domain.Sale{
		sale("s1", "ana", now.Add(-2*time.Hour), 10000, line("Margarita", 2)),
		sale("s2", "ben", now.Add(-time.Hour), 20000, line("Margarita", 1), line("Lemonade", 3)),
		sale("s3", "ana", now.AddDate(0, 0, -3), 3001, line("Tiramisu", 1)),
	}

	snap := Compute(sales, 4, now, time.UTC, 30)

	if snap.TodaysSalesTotal != 30000 || snap.TodaysOrderCount != 2 {
		t.Fatalf("unexpected today totals: %d / %d", snap.TodaysSalesTotal, snap.TodaysOrderCount)
	}
	if snap.AverageTicket != 11000 {
		t.Fatalf("expected average ticket 11000, got %d", snap.AverageTicket)
	}
	if snap.PendingOrderCount != 4 {
		t.Fatalf("expected pending 4, got %d", snap.PendingOrderCount)
	}
	if len(snap.Top5Products) != 3 || snap.Top5Products[0].Quantity != 3 {
		t.Fatalf("unexpected top products: %+v", snap.Top5Products)
	}
	// Lemonade and Margarita tie at 3; name breaks the tie.
	if snap.Top5Products[0].Name != "Lemonade" || snap.Top5Products[1].Name != "Margarita" {
		t.Fatalf("unexpected tie order: %+v", snap.Top5Products)
	}

	if len(snap.PerCashierTotals) != 2 {
		t.Fatalf("expected 2 cashiers, got %+v", snap.PerCashierTotals)
	}
	if snap.PerCashierTotals[0].CashierID != "ben" || snap.PerCashierTotals[0].Total != 20000 {
		t.Fatalf("expected ben first, got %+v", snap.PerCashierTotals[0])
	}
	ana := snap.PerCashierTotals[1]
	if ana.OrderCount != 2 || ana.AverageTicket != 6501 {
		t.Fatalf("unexpected ana totals: %+v", ana)
	}
}

func TestComputeEmptyHasZeroAverage(t *testing.T) {
	snap := Compute(nil, 0, now, time.UTC, 30)
	if snap.AverageTicket != 0 || snap.TodaysSalesTotal != 0 {
		t.Fatalf("expected zeroes, got %+v", snap)
	}
	if len(snap.Top5Products) != 0 || len(snap.PerCashierTotals) != 0 {
		t.Fatalf("expected empty rollups, got %+v", snap)
	}
}

func TestComputeUsesLocalDayBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 02:00 UTC on the 16th is still the 15th locally.
	late := time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC)
	snap := Compute([]domain.Sale{sale("s1", "ana", late, 4000)}, 0, late, loc, 30)
	if snap.TodaysSalesTotal != 4000 {
		t.Fatalf("expected sale counted today, got %d", snap.TodaysSalesTotal)
	}
	found := false
	for _, day := range snap.DailySalesLast7 {
		if day.Date == "2026-10-15" && day.Total == 4000 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected local date bucket, got %+v", snap.DailySalesLast7)
	}
}

func TestSnapshotUsesCache(t *testing.T) {
	src := &fakeSource{sales: []domain.Sale{sale("s1", "ana", now.Add(-time.Hour), 1000)}}
	snapshots := &mapCache{}
	agg := NewAggregator(src, snapshots, time.Minute, time.UTC, 30, nil)

	first, err := agg.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	src.sales = append(src.sales, sale("s2", "ana", now, 5000))
	second, err := agg.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one source read, got %d", src.calls)
	}
	if _, ok := snapshots.values[cache.SnapshotKey{Day: "2026-10-15", WindowDays: 30}]; !ok {
		t.Fatalf("expected snapshot keyed by local day and window, got %v", snapshots.values)
	}
	if first.TodaysSalesTotal != second.TodaysSalesTotal {
		t.Fatalf("expected cached snapshot, got %d vs %d", first.TodaysSalesTotal, second.TodaysSalesTotal)
	}
}

func TestSnapshotFallsBackWhenCacheFails(t *testing.T) {
	src := &fakeSource{sales: []domain.Sale{sale("s1", "ana", now.Add(-time.Hour), 1000)}}
	agg := NewAggregator(src, &mapCache{getErr: errors.New("redis down")}, time.Minute, time.UTC, 30, nil)

	snap, err := agg.Snapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TodaysSalesTotal != 1000 {
		t.Fatalf("expected recomputed total, got %d", snap.TodaysSalesTotal)
	}
}

func TestSnapshotPropagatesSourceError(t *testing.T) {
	src := &fakeSource{salesErr: errors.New("db down")}
	agg := NewAggregator(src, nil, 0, nil, 0, nil)
	if _, err := agg.Snapshot(context.Background(), now); err == nil {
		t.Fatalf("expected error")
	}
}
