package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aluware/blocklager/internal/config"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorage struct {
	mu    sync.Mutex
	open  []*transport.Order
	saved []transport.Order
}

func (f *fakeStorage) LoadStockyards(_ context.Context) ([]*yard.Stockyard, error) { return nil, nil }
func (f *fakeStorage) SaveStockyard(_ context.Context, _ *yard.Stockyard) error    { return nil }
func (f *fakeStorage) ApplyMerge(_ context.Context, _ *yard.Stockyard, _ uuid.UUID) error {
	return nil
}
func (f *fakeStorage) ApplySplit(_ context.Context, _, _ *yard.Stockyard) error { return nil }
func (f *fakeStorage) LoadIngots(_ context.Context) ([]*yard.Ingot, error)      { return nil, nil }

func (f *fakeStorage) LoadOpenOrders(_ context.Context) ([]*transport.Order, error) {
	return f.open, nil
}

func (f *fakeStorage) SaveOrder(_ context.Context, o *transport.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *o)
	return nil
}

func (f *fakeStorage) ApplyCompletion(_ context.Context, _ *transport.Order, _ *yard.Ingot) error {
	return nil
}
func (f *fakeStorage) UpdateIngot(_ context.Context, _ *yard.Ingot) error { return nil }
func (f *fakeStorage) CreateIngot(_ context.Context, _ *yard.Ingot) error { return nil }
func (f *fakeStorage) CreateOrder(_ context.Context, _ *transport.Order) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Crane: config.CraneConfig{FeedbackTimeout: time.Second, FeedbackBuffer: 8},
		Yard:  config.YardConfig{ShortMaxLengthMm: 3600},
	}
}

func newTestManager(t *testing.T, store *fakeStorage) *LifecycleManager {
	t.Helper()
	lm := NewLifecycleManager(store, testConfig(), zap.NewNop())

	dest := &yard.Stockyard{
		YardNumber: "L0101", Type: yard.TypeInternal, Usage: yard.UsageShort,
		GridX: 1, GridY: 1, LengthMm: 3600, MaxIngots: 4,
		ToStockAllowed: true, FromStockAllowed: true,
	}
	require.NoError(t, lm.index.AddSlot(dest))
	return lm
}

func TestRestoreOrdersReenqueuesPendingWithReservation(t *testing.T) {
	store := &fakeStorage{}
	lm := newTestManager(t, store)
	dest, err := lm.index.GetByNumber("L0101")
	require.NoError(t, err)

	pending := transport.NewOrder("T-1", uuid.New(), "B1001", transport.PrioritySaw)
	pending.ToYardID = dest.ID
	pending.ToYardNo = dest.YardNumber
	store.open = []*transport.Order{pending}

	require.NoError(t, lm.restoreOrders())

	require.Equal(t, 1, lm.scheduler.PendingOrderCount())
	// Das Ziel ist wieder für den offenen Auftrag belegt
	require.Equal(t, 1, lm.index.Reserved(dest.ID))

	blocked, _ := lm.scheduler.IsBlocked()
	require.False(t, blocked)
}

func TestRestoreOrdersBlocksSchedulerAfterInFlightOrder(t *testing.T) {
	store := &fakeStorage{}
	lm := newTestManager(t, store)
	dest, err := lm.index.GetByNumber("L0101")
	require.NoError(t, err)

	inFlight := transport.NewOrder("T-2", uuid.New(), "B1002", transport.PrioritySaw)
	inFlight.ToYardID = dest.ID
	inFlight.ToYardNo = dest.YardNumber
	inFlight.Status = transport.StatusPickedUp
	store.open = []*transport.Order{inFlight}

	require.NoError(t, lm.restoreOrders())

	require.Equal(t, transport.StatusFailed, inFlight.Status)
	require.Contains(t, inFlight.ErrorMessage, "interrupted by system restart")
	require.Len(t, store.saved, 1)

	// Der Kran hält womöglich noch den Barren, erst der Bediener gibt frei
	blocked, reason := lm.scheduler.IsBlocked()
	require.True(t, blocked)
	require.Contains(t, reason, "crane load condition unknown")
	require.Zero(t, lm.scheduler.PendingOrderCount())
}
