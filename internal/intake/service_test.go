package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/events"
	"github.com/aluware/blocklager/internal/scheduler"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu     sync.Mutex
	ingots []yard.Ingot
	orders []transport.Order
}

func (f *fakeStore) CreateIngot(_ context.Context, ing *yard.Ingot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingots = append(f.ingots, *ing)
	return nil
}

func (f *fakeStore) UpdateIngot(_ context.Context, ing *yard.Ingot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingots = append(f.ingots, *ing)
	return nil
}

func (f *fakeStore) CreateOrder(_ context.Context, o *transport.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, *o)
	return nil
}

type fakeSchedStore struct{}

func (fakeSchedStore) SaveOrder(_ context.Context, _ *transport.Order) error { return nil }
func (fakeSchedStore) ApplyCompletion(_ context.Context, _ *transport.Order, _ *yard.Ingot) error {
	return nil
}
func (fakeSchedStore) UpdateIngot(_ context.Context, _ *yard.Ingot) error { return nil }

type nopSender struct{}

func (nopSender) Send(_ context.Context, _ crane.Command) error { return nil }

type fixture struct {
	svc   *Service
	sched *scheduler.Scheduler
	index *yard.AllocationIndex
	store *fakeStore
	saw   yard.Stockyard
	dest  yard.Stockyard
	load  yard.Stockyard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	index := yard.NewAllocationIndex(3600, logger)

	saw := &yard.Stockyard{
		YardNumber: "SAW01", Type: yard.TypeSaw, Usage: yard.UsageAutomatic,
		GridX: 0, GridY: 0, MaxIngots: 4, FromStockAllowed: true,
	}
	dest := &yard.Stockyard{
		YardNumber: "L0101", Type: yard.TypeInternal, Usage: yard.UsageShort,
		GridX: 1, GridY: 1, LengthMm: 3600, MaxIngots: 4,
		ToStockAllowed: true, FromStockAllowed: true,
	}
	load := &yard.Stockyard{
		YardNumber: "VER01", Type: yard.TypeLoading, Usage: yard.UsageAutomatic,
		GridX: 5, GridY: 0, MaxIngots: 2, ToStockAllowed: true,
	}
	require.NoError(t, index.AddSlot(saw))
	require.NoError(t, index.AddSlot(dest))
	require.NoError(t, index.AddSlot(load))

	gw := crane.NewGateway(nopSender{}, 8, logger)
	sched := scheduler.New(index, gw, fakeSchedStore{}, events.NewBus(), time.Second, logger)
	store := &fakeStore{}
	svc := NewService(index, sched, store, events.NewBus(), logger)

	return &fixture{
		svc: svc, sched: sched, index: index, store: store,
		saw: *saw, dest: *dest, load: *load,
	}
}

func validRequest(ingotNo string) StorageRequest {
	return StorageRequest{
		IngotNo:     ingotNo,
		ProductNo:   "AL-5083",
		WeightKg:    8200,
		LengthMm:    3200,
		WidthMm:     1250,
		ThicknessMm: 600,
		HeadSawn:    true,
	}
}

func TestSubmitStorageRequest(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.NoError(t, err)

	require.Equal(t, transport.StatusPending, o.Status)
	require.Equal(t, transport.PrioritySaw, o.Priority)
	require.Equal(t, "SAW01", o.FromYardNo)
	require.Equal(t, "L0101", o.ToYardNo)
	require.Equal(t, 1, o.FromPilePosition)
	require.Regexp(t, `^T\d{8}-\d{5}$`, o.TransportNo)

	// Barren liegt auf dem Sägeplatz und ist registriert
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cnt)
	ing, err := f.svc.Ingot("B1001")
	require.NoError(t, err)
	require.Equal(t, "AL-5083", ing.ProductNo)

	require.Equal(t, 1, f.sched.PendingOrderCount())
	require.Equal(t, 1, f.sched.SawQueue().Len())
	require.Len(t, f.store.ingots, 1)
	require.Len(t, f.store.orders, 1)
}

func TestSubmitStorageRequestValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		mut  func(*StorageRequest)
	}{
		{"missing ingot number", func(r *StorageRequest) { r.IngotNo = "" }},
		{"missing product number", func(r *StorageRequest) { r.ProductNo = "" }},
		{"zero length", func(r *StorageRequest) { r.LengthMm = 0 }},
		{"negative width", func(r *StorageRequest) { r.WidthMm = -1 }},
		{"zero weight", func(r *StorageRequest) { r.WeightKg = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("B1001")
			tc.mut(&req)

			_, err := f.svc.SubmitStorageRequest(context.Background(), req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	require.Zero(t, f.sched.PendingOrderCount())
}

func TestSubmitStorageRequestDuplicate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.NoError(t, err)

	_, err = f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.ErrorIs(t, err, ErrDuplicateIngot)
	require.Equal(t, 1, f.sched.PendingOrderCount())
}

func TestSubmitStorageRequestRestrictedProduct(t *testing.T) {
	f := newFixture(t)

	f.svc.SetProductRestriction("AL-5083", true)
	require.True(t, f.svc.IsRestricted("AL-5083"))

	_, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.ErrorIs(t, err, ErrProductRestricted)

	f.svc.SetProductRestriction("AL-5083", false)
	_, err = f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.NoError(t, err)
}

func TestSubmitStorageRequestNoFreeSlotHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	// Einzigen Lagerplatz füllen
	for i := 0; i < f.dest.MaxIngots; i++ {
		filler := &yard.Ingot{IngotNo: fmt.Sprintf("X%d", i), LengthMm: 3000}
		_, err := f.index.Push(f.dest.ID, filler)
		require.NoError(t, err)
	}

	_, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.ErrorIs(t, err, yard.ErrAllocationExhausted)

	// Abgelehnte Anfrage hinterlässt nichts
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	_, err = f.svc.Ingot("B1001")
	require.ErrorIs(t, err, ErrIngotNotFound)
	require.Zero(t, f.sched.PendingOrderCount())
	require.Empty(t, f.store.orders)
}

func TestConcurrentSubmissionsQueueUp(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
	require.NoError(t, err)
	b, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1002"))
	require.NoError(t, err)

	require.Equal(t, 2, f.sched.PendingOrderCount())
	require.NotEqual(t, a.TransportNo, b.TransportNo)

	// Beide Barren gestapelt auf dem Sägeplatz
	require.Equal(t, 1, a.FromPilePosition)
	require.Equal(t, 2, b.FromPilePosition)
}

func TestConcurrentDuplicateSubmissionsAcceptOne(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)

		start := make(chan struct{})
		errs := make(chan error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func() {
				defer wg.Done()
				<-start
				_, err := f.svc.SubmitStorageRequest(context.Background(), validRequest("B1001"))
				errs <- err
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		var accepted int
		for err := range errs {
			if err == nil {
				accepted++
				continue
			}
			require.ErrorIs(t, err, ErrDuplicateIngot)
		}
		// Genau eine Anlieferung gewinnt, die zweite wird abgewiesen
		require.Equal(t, 1, accepted)

		cnt, err := f.index.Count(f.saw.ID)
		require.NoError(t, err)
		require.Equal(t, 1, cnt)
		require.Equal(t, 1, f.sched.PendingOrderCount())
		require.Equal(t, 1, f.sched.SawQueue().Len())
	}
}

func TestStorageRequestsCountPendingReservations(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= f.dest.MaxIngots; i++ {
		_, err := f.svc.SubmitStorageRequest(context.Background(), validRequest(fmt.Sprintf("B100%d", i)))
		require.NoError(t, err)
	}

	// Das Ziel ist physisch leer, aber durch offene Aufträge belegt
	cnt, err := f.index.Count(f.dest.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.Equal(t, f.dest.MaxIngots, f.index.Reserved(f.dest.ID))

	_, err = f.svc.SubmitStorageRequest(context.Background(), validRequest("B1009"))
	require.ErrorIs(t, err, yard.ErrAllocationExhausted)
}

func TestHandleCalloff(t *testing.T) {
	f := newFixture(t)

	ing := &yard.Ingot{IngotNo: "B1001", ProductNo: "AL-5083", LengthMm: 3000}
	_, err := f.index.Push(f.dest.ID, ing)
	require.NoError(t, err)
	f.svc.RegisterIngot(ing)

	o, err := f.svc.HandleCalloff(context.Background(), "B1001")
	require.NoError(t, err)
	require.Equal(t, transport.PriorityRelocation, o.Priority)
	require.Equal(t, "L0101", o.FromYardNo)
	require.Equal(t, "VER01", o.ToYardNo)
}

func TestHandleCalloffUnknownIngot(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleCalloff(context.Background(), "B9999")
	require.ErrorIs(t, err, ErrIngotNotFound)
}

func TestHandleCalloffBuriedIngot(t *testing.T) {
	f := newFixture(t)

	buried := &yard.Ingot{IngotNo: "B1001", LengthMm: 3000}
	top := &yard.Ingot{IngotNo: "B1002", LengthMm: 3000}
	_, err := f.index.Push(f.dest.ID, buried)
	require.NoError(t, err)
	_, err = f.index.Push(f.dest.ID, top)
	require.NoError(t, err)
	f.svc.RegisterIngot(buried)
	f.svc.RegisterIngot(top)

	_, err = f.svc.HandleCalloff(context.Background(), "B1001")
	require.ErrorIs(t, err, ErrIngotNotReachable)

	// Der oberste Barren ist abrufbar
	_, err = f.svc.HandleCalloff(context.Background(), "B1002")
	require.NoError(t, err)
}

func TestSubmitRelocation(t *testing.T) {
	f := newFixture(t)

	second := &yard.Stockyard{
		YardNumber: "L0201", Type: yard.TypeInternal, Usage: yard.UsageShort,
		GridX: 2, GridY: 1, LengthMm: 3600, MaxIngots: 4,
		ToStockAllowed: true, FromStockAllowed: true,
	}
	require.NoError(t, f.index.AddSlot(second))

	ing := &yard.Ingot{IngotNo: "B1001", LengthMm: 3000}
	_, err := f.index.Push(f.dest.ID, ing)
	require.NoError(t, err)
	f.svc.RegisterIngot(ing)

	o, err := f.svc.SubmitRelocation(context.Background(), "B1001", "L0201")
	require.NoError(t, err)
	require.Equal(t, "L0101", o.FromYardNo)
	require.Equal(t, "L0201", o.ToYardNo)
	require.Equal(t, transport.PriorityRelocation, o.Priority)
}

func TestUpdateIngotFlags(t *testing.T) {
	f := newFixture(t)

	ing := &yard.Ingot{IngotNo: "B1001", LengthMm: 3000}
	f.svc.RegisterIngot(ing)

	scrap := true
	got, err := f.svc.UpdateIngotFlags(context.Background(), "B1001", IngotUpdate{Scrap: &scrap})
	require.NoError(t, err)
	require.True(t, got.Scrap)
	// Nicht gesetzte Felder bleiben unberührt
	require.False(t, got.Revised)

	stored, err := f.svc.Ingot("B1001")
	require.NoError(t, err)
	require.True(t, stored.Scrap)

	_, err = f.svc.UpdateIngotFlags(context.Background(), "B9999", IngotUpdate{Scrap: &scrap})
	require.ErrorIs(t, err, ErrIngotNotFound)
}

func TestSubmitRelocationRejectsBadDestination(t *testing.T) {
	f := newFixture(t)

	ing := &yard.Ingot{IngotNo: "B1001", LengthMm: 3000}
	_, err := f.index.Push(f.dest.ID, ing)
	require.NoError(t, err)
	f.svc.RegisterIngot(ing)

	_, err = f.svc.SubmitRelocation(context.Background(), "B1001", "NOPE")
	require.ErrorIs(t, err, yard.ErrNotFound)

	// Sägeplatz erlaubt keine Einlagerung
	_, err = f.svc.SubmitRelocation(context.Background(), "B1001", "SAW01")
	require.ErrorIs(t, err, yard.ErrNotEligible)
}

func TestSubmitRelocationRejectsFullyReservedDestination(t *testing.T) {
	f := newFixture(t)

	second := &yard.Stockyard{
		YardNumber: "L0201", Type: yard.TypeInternal, Usage: yard.UsageShort,
		GridX: 2, GridY: 1, LengthMm: 3600, MaxIngots: 1,
		ToStockAllowed: true, FromStockAllowed: true,
	}
	require.NoError(t, f.index.AddSlot(second))

	ing := &yard.Ingot{IngotNo: "B1001", LengthMm: 3000}
	_, err := f.index.Push(f.dest.ID, ing)
	require.NoError(t, err)
	f.svc.RegisterIngot(ing)

	// Ein offener Auftrag hat den letzten Platz schon belegt
	require.NoError(t, f.index.Reserve(second.ID))

	_, err = f.svc.SubmitRelocation(context.Background(), "B1001", "L0201")
	require.ErrorIs(t, err, yard.ErrPileFull)
}
