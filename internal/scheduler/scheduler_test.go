package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/events"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu          sync.Mutex
	saved       []transport.Order
	completions []transport.Order
	ingotWrites []yard.Ingot
}

func (f *fakeStore) SaveOrder(_ context.Context, o *transport.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *o)
	return nil
}

func (f *fakeStore) ApplyCompletion(_ context.Context, o *transport.Order, _ *yard.Ingot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, *o)
	return nil
}

func (f *fakeStore) UpdateIngot(_ context.Context, ing *yard.Ingot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingotWrites = append(f.ingotWrites, *ing)
	return nil
}

func (f *fakeStore) ingotWriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingotWrites)
}

func (f *fakeStore) completionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

func (f *fakeStore) hasStatus(st transport.Status) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.saved {
		if o.Status == st {
			return true
		}
	}
	return false
}

type nopSender struct{}

func (nopSender) Send(_ context.Context, _ crane.Command) error { return nil }

type fixture struct {
	sched *Scheduler
	index *yard.AllocationIndex
	gw    *crane.Gateway
	store *fakeStore
	saw   yard.Stockyard
	dest  yard.Stockyard
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
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
	require.NoError(t, index.AddSlot(saw))
	require.NoError(t, index.AddSlot(dest))

	gw := crane.NewGateway(nopSender{}, 8, logger)
	store := &fakeStore{}
	sched := New(index, gw, store, events.NewBus(), timeout, logger)
	sched.Start()

	return &fixture{
		sched: sched, index: index, gw: gw, store: store,
		saw: *saw, dest: *dest,
	}
}

// stageOrder puts an ingot on the saw slot and builds its storage
// order, the way the intake service does.
func (f *fixture) stageOrder(t *testing.T, ingotNo string) (*transport.Order, *yard.Ingot) {
	t.Helper()

	ing := &yard.Ingot{ID: uuid.New(), IngotNo: ingotNo, LengthMm: 3000}
	_, err := f.index.Push(f.saw.ID, ing)
	require.NoError(t, err)
	require.NoError(t, f.index.Reserve(f.dest.ID))

	o := transport.NewOrder("T-"+ingotNo, ing.ID, ingotNo, transport.PrioritySaw)
	o.FromYardID = f.saw.ID
	o.FromYardNo = f.saw.YardNumber
	o.ToYardID = f.dest.ID
	o.ToYardNo = f.dest.YardNumber
	f.sched.SawQueue().Enqueue(ing)
	return o, ing
}

// runOrder drives process on its own goroutine and returns a channel
// that closes when the order is terminal.
func (f *fixture) runOrder(o *transport.Order) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.process(context.Background(), o)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("order did not reach a terminal state")
	}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t, time.Second)
	o, ing := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackPickConfirmed, OrderID: o.ID})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackDropConfirmed, OrderID: o.ID})
	waitDone(t, done)

	require.Equal(t, transport.StatusCompleted, o.Status)
	require.False(t, o.IngotInGripper)
	require.Equal(t, 1, o.ToPilePosition)

	// Barren liegt jetzt physisch und im Modell auf dem Ziel
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	cnt, err = f.index.Count(f.dest.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cnt)
	require.NotNil(t, ing.StockyardID)
	require.Equal(t, f.dest.ID, *ing.StockyardID)

	require.Equal(t, 1, f.store.completionCount())
	require.Zero(t, f.sched.SawQueue().Len())
	// Reservierung ist mit dem Abladen verbraucht
	require.Zero(t, f.index.Reserved(f.dest.ID))

	blocked, _ := f.sched.IsBlocked()
	require.False(t, blocked)
}

func TestProcessFaultAfterPickBlocksScheduler(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackPickConfirmed, OrderID: o.ID})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackFault, FaultCode: "E042"})
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)
	require.True(t, o.IngotInGripper)

	blocked, reason := f.sched.IsBlocked()
	require.True(t, blocked)
	require.Contains(t, reason, o.TransportNo)

	// Blockiert wird nichts mehr disponiert
	next, _ := f.stageOrder(t, "B1002")
	f.sched.Enqueue(next)
	require.Nil(t, f.sched.nextEligible())

	f.sched.ClearBlocked()
	got := f.sched.nextEligible()
	require.NotNil(t, got)
	require.Equal(t, next.ID, got.ID)
}

func TestProcessFaultBeforePickDoesNotBlock(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackFault, FaultCode: "E001"})
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)
	require.False(t, o.IngotInGripper)

	blocked, _ := f.sched.IsBlocked()
	require.False(t, blocked)
}

func TestProcessFeedbackTimeout(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)
	require.Contains(t, o.ErrorMessage, "no crane feedback")
	require.Zero(t, f.index.Reserved(f.dest.ID))

	// Ohne Barren im Greifer keine Blockade
	blocked, _ := f.sched.IsBlocked()
	require.False(t, blocked)
}

func TestProcessInterlockPauseAndResume(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackPickConfirmed, OrderID: o.ID})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackInterlockOpened})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackInterlockCleared})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackDropConfirmed, OrderID: o.ID})
	waitDone(t, done)

	require.Equal(t, transport.StatusCompleted, o.Status)
}

func TestProcessDropWithoutPickFails(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackDropConfirmed, OrderID: o.ID})
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)

	// Stapel wurde nicht angefasst
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cnt)

	blocked, _ := f.sched.IsBlocked()
	require.True(t, blocked)
}

func TestProcessRejectsBuriedIngot(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")
	// Ein zweiter Barren legt sich oben drauf
	f.stageOrder(t, "B1002")

	done := f.runOrder(o)
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)
	require.Contains(t, o.ErrorMessage, "not on top")
}

func TestEmergencyStopFailsInFlightOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	done := f.runOrder(o)
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackPickConfirmed, OrderID: o.ID})
	// Warten bis der Pick verarbeitet ist
	require.Eventually(t, func() bool {
		return f.store.hasStatus(transport.StatusPickedUp)
	}, time.Second, 5*time.Millisecond)

	f.sched.EmergencyStop()
	waitDone(t, done)

	require.Equal(t, transport.StatusFailed, o.Status)
	require.Contains(t, o.ErrorMessage, "emergency stop")

	blocked, _ := f.sched.IsBlocked()
	require.True(t, blocked)
}

func TestNextEligibleGating(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")
	f.sched.Enqueue(o)

	f.sched.Stop()
	require.Nil(t, f.sched.nextEligible())

	f.sched.Start()
	f.gw.SetMode(crane.ModeManual)
	require.Nil(t, f.sched.nextEligible())

	f.gw.SetMode(crane.ModeAutomatic)
	got := f.sched.nextEligible()
	require.NotNil(t, got)
	require.Equal(t, o.ID, got.ID)
}

func TestSawLaneOutranksRelocation(t *testing.T) {
	f := newFixture(t, time.Second)

	reloc := transport.NewOrder("T-R1", uuid.New(), "B2001", transport.PriorityRelocation)
	sawA, _ := f.stageOrder(t, "B1001")
	sawB, _ := f.stageOrder(t, "B1002")

	f.sched.Enqueue(reloc)
	f.sched.Enqueue(sawA)
	f.sched.Enqueue(sawB)
	require.Equal(t, 3, f.sched.PendingOrderCount())

	snap := f.sched.QueueSnapshot()
	require.Equal(t, sawA.ID, snap[0].ID)
	require.Equal(t, sawB.ID, snap[1].ID)
	require.Equal(t, reloc.ID, snap[2].ID)

	require.Equal(t, sawA.ID, f.sched.queue.popNext().ID)
	require.Equal(t, sawB.ID, f.sched.queue.popNext().ID)
	require.Equal(t, reloc.ID, f.sched.queue.popNext().ID)
	require.Nil(t, f.sched.queue.popNext())
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")
	f.sched.Enqueue(o)

	require.NoError(t, f.sched.Cancel(context.Background(), o.ID))
	require.Equal(t, transport.StatusCancelled, o.Status)
	require.Zero(t, f.sched.PendingOrderCount())
	require.Zero(t, f.sched.SawQueue().Len())
	require.Zero(t, f.index.Reserved(f.dest.ID))

	require.ErrorIs(t, f.sched.Cancel(context.Background(), o.ID), ErrNotPending)
}

func TestClearSawQueue(t *testing.T) {
	f := newFixture(t, time.Second)
	a, _ := f.stageOrder(t, "B1001")
	b, _ := f.stageOrder(t, "B1002")
	reloc := transport.NewOrder("T-R1", uuid.New(), "B2001", transport.PriorityRelocation)

	f.sched.Enqueue(a)
	f.sched.Enqueue(b)
	f.sched.Enqueue(reloc)

	removed := f.sched.ClearSawQueue(context.Background())
	require.Equal(t, 2, removed)
	require.Equal(t, transport.StatusCancelled, a.Status)
	require.Equal(t, transport.StatusCancelled, b.Status)
	require.Zero(t, f.sched.SawQueue().Len())

	// Sägeplatz ist geräumt, die Umlagerung bleibt in der Queue
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.Equal(t, 1, f.sched.PendingOrderCount())
	require.Zero(t, f.index.Reserved(f.dest.ID))

	// Geräumte Positionen sind auch persistiert, ohne Platzbindung
	require.Equal(t, 2, f.store.ingotWriteCount())
	for _, ing := range f.store.ingotWrites {
		require.Nil(t, ing.StockyardID)
	}
}

func TestClearSawQueueLeavesForeignTopAlone(t *testing.T) {
	f := newFixture(t, time.Second)
	a, _ := f.stageOrder(t, "B1001")
	f.sched.Enqueue(a)

	// Ein fremder Block liegt inzwischen obenauf
	stray := &yard.Ingot{ID: uuid.New(), IngotNo: "B9999", LengthMm: 3000}
	_, err := f.index.Push(f.saw.ID, stray)
	require.NoError(t, err)

	removed := f.sched.ClearSawQueue(context.Background())
	require.Equal(t, 1, removed)
	require.Equal(t, transport.StatusCancelled, a.Status)

	// Der Stapel bleibt unangetastet, nichts wird blind abgetragen
	cnt, err := f.index.Count(f.saw.ID)
	require.NoError(t, err)
	require.Equal(t, 2, cnt)
	require.Zero(t, f.store.ingotWriteCount())
}

func TestBlockStopsDispatchUntilCleared(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")
	f.sched.Enqueue(o)

	f.sched.Block("crane load condition unknown")

	blocked, reason := f.sched.IsBlocked()
	require.True(t, blocked)
	require.Contains(t, reason, "load condition")
	require.Nil(t, f.sched.nextEligible())

	f.sched.ClearBlocked()
	got := f.sched.nextEligible()
	require.NotNil(t, got)
	require.Equal(t, o.ID, got.ID)
}

func TestRunLoopProcessesQueuedOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	o, _ := f.stageOrder(t, "B1001")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		f.sched.Run(ctx)
	}()

	f.sched.Enqueue(o)
	require.Eventually(t, func() bool {
		_, active := f.sched.CurrentOrder()
		return active
	}, time.Second, 5*time.Millisecond)

	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackPickConfirmed, OrderID: o.ID})
	f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackDropConfirmed, OrderID: o.ID})

	require.Eventually(t, func() bool {
		return f.store.completionCount() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}

func TestRunLoopDrainsFeedbackWhileIdle(t *testing.T) {
	f := newFixture(t, time.Second)
	f.sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.sched.Run(ctx)

	// Telegramme einer manuellen Kransitzung dürfen den Puffer nicht
	// verstopfen: OnFeedback blockiert bei vollem Puffer, der Loop
	// muss also auch ohne aktiven Auftrag abräumen
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < 20; i++ {
			f.gw.OnFeedback(crane.Feedback{Kind: crane.FeedbackInterlockOpened})
		}
	}()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("idle dispatch loop did not drain crane feedback")
	}
}
