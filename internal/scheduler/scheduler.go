package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sync"

	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/events"
	"github.com/aluware/blocklager/internal/metrics"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotPending is returned when cancelling an order that already
	// left the queue. In-flight orders can only be stopped by the
	// emergency-stop path.
	ErrNotPending = errors.New("order is not pending")

	// ErrConcurrencyViolation means a second order was about to go in
	// flight. This must never happen; it indicates a programming error.
	ErrConcurrencyViolation = errors.New("concurrency violation: an order is already in flight")
)

// Store persists order status changes. ApplyCompletion must write the
// order status and the ingot's new location in one transaction.
type Store interface {
	SaveOrder(ctx context.Context, o *transport.Order) error
	ApplyCompletion(ctx context.Context, o *transport.Order, ing *yard.Ingot) error
	UpdateIngot(ctx context.Context, ing *yard.Ingot) error
}

// Scheduler is the auto-processing dispatch loop. One goroutine owns
// the crane: it pops the next eligible order, emits the crane commands
// and reduces feedback into state machine events until the order is
// terminal, then moves on. Shared state is limited to the queue, the
// current-order slot and the enabled/blocked flags; everything else is
// touched only from the loop.
type Scheduler struct {
	index   *yard.AllocationIndex
	gateway *crane.Gateway
	store   Store
	bus     *events.Bus
	logger  *zap.Logger

	queue *orderQueue
	saw   *SawQueue

	feedbackTimeout time.Duration

	mu            sync.RWMutex
	enabled       bool
	blocked       bool
	blockedReason string
	current       *transport.Order

	// estop interrupts the in-flight order from outside the loop
	estop chan struct{}
}

func New(
	index *yard.AllocationIndex,
	gateway *crane.Gateway,
	store Store,
	bus *events.Bus,
	feedbackTimeout time.Duration,
	logger *zap.Logger,
) *Scheduler {
	if feedbackTimeout <= 0 {
		feedbackTimeout = 60 * time.Second
	}
	return &Scheduler{
		index:           index,
		gateway:         gateway,
		store:           store,
		bus:             bus,
		logger:          logger,
		queue:           newOrderQueue(),
		saw:             NewSawQueue(),
		feedbackTimeout: feedbackTimeout,
		estop:           make(chan struct{}, 1),
	}
}

// SawQueue exposes the saw-side staging queue.
func (s *Scheduler) SawQueue() *SawQueue {
	return s.saw
}

// Enqueue appends a PENDING order to its priority lane and wakes the
// dispatch loop. The append is the only serialization point for
// concurrent intake.
func (s *Scheduler) Enqueue(o *transport.Order) {
	s.queue.enqueue(o)
	s.logger.Info("Transport order enqueued",
		zap.String("transport_no", o.TransportNo),
		zap.String("lane", laneNames[o.Priority]),
		zap.Int("pending", s.queue.pendingCount()))
}

// Start enables auto-processing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()

	s.publishSchedulerState()
	s.wake()
	s.logger.Info("Auto-processing enabled")
}

// Stop disables auto-processing. An in-flight order is allowed to
// finish; no new order is dispatched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()

	s.publishSchedulerState()
	s.logger.Info("Auto-processing disabled")
}

// IsEnabled reports the auto-processing flag.
func (s *Scheduler) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// IsProcessing reports whether an order is currently in flight.
func (s *Scheduler) IsProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.Status.InFlight()
}

// CurrentOrder returns a copy of the in-flight order, if any.
func (s *Scheduler) CurrentOrder() (transport.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return transport.Order{}, false
	}
	return *s.current, true
}

// PendingOrderCount returns the backlog size.
func (s *Scheduler) PendingOrderCount() int {
	return s.queue.pendingCount()
}

// QueueSnapshot returns copies of all pending orders in dispatch order.
func (s *Scheduler) QueueSnapshot() []transport.Order {
	return s.queue.snapshot()
}

// IsBlocked reports the blocked recovery state.
func (s *Scheduler) IsBlocked() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked, s.blockedReason
}

// Block puts the scheduler into the blocked recovery state from
// outside the dispatch loop, e.g. when restart recovery finds an order
// that was in flight and the crane's load condition is unknown.
func (s *Scheduler) Block(reason string) {
	s.block(reason)
	s.logger.Warn("Scheduler blocked", zap.String("reason", reason))
}

// ClearBlocked leaves the blocked state. Explicit operator action: the
// ingot in the gripper must have been recovered physically first.
func (s *Scheduler) ClearBlocked() {
	s.mu.Lock()
	s.blocked = false
	s.blockedReason = ""
	s.mu.Unlock()

	metrics.SchedulerBlocked.Set(0)
	s.publishSchedulerState()
	s.wake()
	s.logger.Info("Scheduler blocked state cleared by operator")
}

// Cancel removes a PENDING order from the queue. Orders already in
// flight cannot be cancelled here.
func (s *Scheduler) Cancel(ctx context.Context, id uuid.UUID) error {
	o, ok := s.queue.remove(id)
	if !ok {
		return ErrNotPending
	}

	m := transport.NewStateMachine(o)
	if _, err := m.Fire(transport.EventCancel); err != nil {
		return err
	}
	s.index.Release(o.ToYardID)
	s.saw.Remove(o.IngotNo)
	if err := s.store.SaveOrder(ctx, o); err != nil {
		s.logger.Error("Failed to persist cancelled order", zap.Error(err))
	}
	s.publishOrderState(o)
	metrics.OrdersProcessedTotal.WithLabelValues(string(o.Status)).Inc()

	s.logger.Info("Transport order cancelled",
		zap.String("transport_no", o.TransportNo))
	return nil
}

// ClearSawQueue evacuates the saw-side staging: all pending saw-lane
// orders are cancelled, their staged ingots are taken back off the saw
// slot. Returns the number of removed orders.
func (s *Scheduler) ClearSawQueue(ctx context.Context) int {
	removed := s.queue.clearLane(transport.PrioritySaw)

	// Rückwärts: der zuletzt aufgelegte Block liegt oben auf dem Stapel
	for i := len(removed) - 1; i >= 0; i-- {
		o := removed[i]
		m := transport.NewStateMachine(o)
		if _, err := m.Fire(transport.EventCancel); err != nil {
			continue
		}
		s.index.Release(o.ToYardID)
		// Nur den eigenen Block abtragen, niemals einen fremden
		top, err := s.index.PeekTop(o.FromYardID)
		if err != nil || top.IngotNo != o.IngotNo {
			s.logger.Warn("Staged ingot not on top of saw slot, pile left untouched",
				zap.String("ingot_no", o.IngotNo), zap.Error(err))
		} else if ing, err := s.index.PopTop(o.FromYardID); err == nil {
			// Abgeräumte Position auch in der Datenbank löschen, sonst
			// steht der Block nach einem Neustart wieder auf der Säge
			if err := s.store.UpdateIngot(ctx, ing); err != nil {
				s.logger.Error("Failed to persist cleared ingot location",
					zap.String("ingot_no", ing.IngotNo), zap.Error(err))
			}
		}
		if err := s.store.SaveOrder(ctx, o); err != nil {
			s.logger.Error("Failed to persist cancelled order", zap.Error(err))
		}
		s.publishOrderState(o)
		metrics.OrdersProcessedTotal.WithLabelValues(string(o.Status)).Inc()
	}
	s.saw.Clear()

	s.logger.Info("Saw queue cleared", zap.Int("removed", len(removed)))
	return len(removed)
}

// EmergencyStop aborts the in-flight order: the order is forced to
// FAILED and the scheduler enters the blocked state, because after an
// abort the crane's load condition is unknown.
func (s *Scheduler) EmergencyStop() {
	select {
	case s.estop <- struct{}{}:
	default:
	}
	s.logger.Warn("Emergency stop requested")
}

// Run is the dispatch loop. It must run on exactly one goroutine.
// While idle it still drains crane feedback so manual-mode telegrams
// are recorded and interlock state stays current.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Dispatch loop started")

	for {
		if o := s.nextEligible(); o != nil {
			s.process(ctx, o)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch loop stopped")
			return
		case fb := <-s.gateway.Feedback():
			s.recordIdleFeedback(fb)
		case <-s.queue.wake:
		case <-s.estop:
			// Kein Auftrag in Arbeit, nichts abzubrechen
		}
	}
}

// nextEligible pops the next order when dispatching is allowed.
func (s *Scheduler) nextEligible() *transport.Order {
	s.mu.RLock()
	ok := s.enabled && !s.blocked && s.current == nil
	s.mu.RUnlock()

	if !ok || s.gateway.Mode() != crane.ModeAutomatic {
		return nil
	}
	return s.queue.popNext()
}

// process drives one order from dispatch to a terminal state.
func (s *Scheduler) process(ctx context.Context, o *transport.Order) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		// Darf nie passieren: genau eine Goroutine besitzt den Kran
		s.logger.DPanic("Refusing dispatch", zap.Error(ErrConcurrencyViolation),
			zap.String("transport_no", o.TransportNo))
		return
	}
	s.current = o
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	m := transport.NewStateMachine(o)

	// Quelle prüfen: der Kran erreicht nur den obersten Barren
	top, err := s.index.PeekTop(o.FromYardID)
	if err != nil || top.IngotNo != o.IngotNo {
		s.failOrder(ctx, m, fmt.Sprintf("ingot %s is not on top of %s", o.IngotNo, o.FromYardNo), false)
		return
	}

	if _, err := m.Fire(transport.EventDispatch); err != nil {
		s.logger.Error("Cannot dispatch order", zap.Error(err))
		return
	}
	s.persistAndPublish(ctx, o)

	started := time.Now()
	if _, err := s.gateway.Dispatch(ctx, o, crane.RotationFor(top)); err != nil {
		s.failOrder(ctx, m, fmt.Sprintf("crane dispatch failed: %v", err), false)
		return
	}

	s.logger.Info("Transport order in progress",
		zap.String("transport_no", o.TransportNo),
		zap.String("from", o.FromYardNo),
		zap.String("to", o.ToYardNo))

	s.await(ctx, m, top)

	metrics.OrdersProcessedTotal.WithLabelValues(string(o.Status)).Inc()
	metrics.OrderDuration.Observe(time.Since(started).Seconds())
}

// await consumes feedback until the order is terminal. A feedback
// timeout fails the order; the timeout clock is suspended while the
// order is PAUSED on a safety interlock.
func (s *Scheduler) await(ctx context.Context, m *transport.StateMachine, ing *yard.Ingot) {
	o := m.Order()
	timer := time.NewTimer(s.feedbackTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown: Auftrag bleibt in seinem letzten Zustand und
			// wird nach Neustart vom Operator aufgelöst
			return

		case <-s.estop:
			s.failOrder(ctx, m, "emergency stop", true)
			return

		case <-timer.C:
			m.Fail(fmt.Sprintf("no crane feedback within %s", s.feedbackTimeout))
			s.persistAndPublish(ctx, o)
			if o.IngotInGripper {
				s.block(fmt.Sprintf("order %s timed out with ingot in gripper", o.TransportNo))
			}
			s.logger.Error("Transport order timed out",
				zap.String("transport_no", o.TransportNo))
			return

		case fb := <-s.gateway.Feedback():
			metrics.CraneFeedbackTotal.WithLabelValues(string(fb.Kind)).Inc()
			s.bus.Publish(events.Event{
				Type:    events.CraneFeedbackAck,
				OrderID: o.ID,
				IngotNo: o.IngotNo,
				Data:    map[string]any{"kind": string(fb.Kind), "fault_code": fb.FaultCode},
			})

			switch fb.Kind {
			case crane.FeedbackInterlockOpened:
				if _, err := m.Fire(transport.EventInterlockOpened); err == nil {
					s.persistAndPublish(ctx, o)
					if !timer.Stop() {
						<-timer.C
					}
					s.logger.Warn("Order paused on safety interlock",
						zap.String("transport_no", o.TransportNo))
				}

			case crane.FeedbackInterlockCleared:
				if _, err := m.Fire(transport.EventInterlockCleared); err == nil {
					s.persistAndPublish(ctx, o)
					timer.Reset(s.feedbackTimeout)
					s.logger.Info("Order resumed after interlock",
						zap.String("transport_no", o.TransportNo))
				}

			case crane.FeedbackPickConfirmed:
				if fb.OrderID != o.ID {
					s.logger.Warn("Pick confirmation for unknown order",
						zap.String("order_id", fb.OrderID.String()))
					continue
				}
				if _, err := m.Fire(transport.EventPickConfirmed); err != nil {
					s.logger.Error("Unexpected pick confirmation", zap.Error(err))
					continue
				}
				s.persistAndPublish(ctx, o)
				s.bus.Publish(events.Event{
					Type:    events.IngotPickedUp,
					OrderID: o.ID,
					IngotNo: o.IngotNo,
					Data:    map[string]any{"from_yard_no": o.FromYardNo},
				})
				timer.Reset(s.feedbackTimeout)

			case crane.FeedbackDropConfirmed:
				if fb.OrderID != o.ID {
					s.logger.Warn("Drop confirmation for unknown order",
						zap.String("order_id", fb.OrderID.String()))
					continue
				}
				s.complete(ctx, m, ing)
				return

			case crane.FeedbackFault:
				reason := fmt.Sprintf("crane fault: %s", fb.FaultCode)
				blocked := o.IngotInGripper || o.Status == transport.StatusPaused
				s.failOrder(ctx, m, reason, blocked)
				return
			}
		}
	}
}

// complete applies the physical move to the pile model and persists
// order status and ingot location atomically.
func (s *Scheduler) complete(ctx context.Context, m *transport.StateMachine, ing *yard.Ingot) {
	o := m.Order()

	if !m.Can(transport.EventDropConfirmed) {
		// Protokollverletzung: Drop ohne bestätigten Pick
		s.failOrder(ctx, m, fmt.Sprintf("drop confirmed in status %s", o.Status), true)
		return
	}

	popped, err := s.index.PopTop(o.FromYardID)
	if err != nil || popped.IngotNo != o.IngotNo {
		s.failOrder(ctx, m, "pile record mismatch at completion", true)
		return
	}
	pos, err := s.index.Push(o.ToYardID, popped)
	if err != nil {
		// Ziel wurde während des Transports unbrauchbar
		s.failOrder(ctx, m, fmt.Sprintf("destination %s unavailable: %v", o.ToYardNo, err), true)
		return
	}
	o.ToPilePosition = pos
	s.index.Release(o.ToYardID)

	if _, err := m.Fire(transport.EventDropConfirmed); err != nil {
		s.logger.Error("Unexpected drop confirmation", zap.Error(err))
		return
	}

	if err := s.store.ApplyCompletion(ctx, o, popped); err != nil {
		s.logger.Error("Failed to persist order completion",
			zap.String("transport_no", o.TransportNo), zap.Error(err))
	}
	s.saw.Remove(o.IngotNo)
	s.publishOrderState(o)

	toYard, _ := s.index.Get(o.ToYardID)
	s.bus.Publish(events.Event{
		Type:    events.IngotMoved,
		OrderID: o.ID,
		IngotNo: o.IngotNo,
		Data: map[string]any{
			"from_yard_no":  o.FromYardNo,
			"to_yard_no":    o.ToYardNo,
			"pile_position": pos,
		},
	})
	if toYard.Type == yard.TypeLoading || toYard.Type == yard.TypeExit {
		s.bus.Publish(events.Event{
			Type:    events.ShipmentCompleted,
			OrderID: o.ID,
			IngotNo: o.IngotNo,
			Data:    map[string]any{"yard_no": o.ToYardNo},
		})
	}

	s.logger.Info("Transport order completed",
		zap.String("transport_no", o.TransportNo),
		zap.String("to", o.ToYardNo),
		zap.Int("pile_position", pos))
}

// failOrder moves the order to FAILED and optionally enters the
// blocked state. The ingot's recorded location stays at its last
// confirmed slot; the gripper flag tells the operator where it
// physically is.
func (s *Scheduler) failOrder(ctx context.Context, m *transport.StateMachine, reason string, block bool) {
	m.Fail(reason)
	o := m.Order()
	s.index.Release(o.ToYardID)
	s.persistAndPublish(ctx, o)

	if block || o.IngotInGripper {
		s.block(fmt.Sprintf("order %s failed: %s", o.TransportNo, reason))
	}

	s.logger.Error("Transport order failed",
		zap.String("transport_no", o.TransportNo),
		zap.String("reason", reason),
		zap.Bool("ingot_in_gripper", o.IngotInGripper))
}

// block stops all further dispatching until the operator clears the
// condition; the crane is an exclusive resource and its load state is
// ambiguous.
func (s *Scheduler) block(reason string) {
	s.mu.Lock()
	s.blocked = true
	s.blockedReason = reason
	s.mu.Unlock()

	metrics.SchedulerBlocked.Set(1)
	s.publishSchedulerState()
}

// recordIdleFeedback handles telegrams arriving without an in-flight
// order, e.g. during a manual crane session.
func (s *Scheduler) recordIdleFeedback(fb crane.Feedback) {
	metrics.CraneFeedbackTotal.WithLabelValues(string(fb.Kind)).Inc()
	s.bus.Publish(events.Event{
		Type: events.CraneFeedbackAck,
		Data: map[string]any{"kind": string(fb.Kind), "fault_code": fb.FaultCode},
	})
	s.logger.Debug("Crane feedback outside active order",
		zap.String("kind", string(fb.Kind)))
}

func (s *Scheduler) persistAndPublish(ctx context.Context, o *transport.Order) {
	if err := s.store.SaveOrder(ctx, o); err != nil {
		s.logger.Error("Failed to persist order status",
			zap.String("transport_no", o.TransportNo), zap.Error(err))
	}
	s.publishOrderState(o)
}

func (s *Scheduler) publishOrderState(o *transport.Order) {
	s.bus.Publish(events.Event{
		Type:    events.OrderStateChanged,
		OrderID: o.ID,
		IngotNo: o.IngotNo,
		Data: map[string]any{
			"transport_no": o.TransportNo,
			"status":       string(o.Status),
			"error":        o.ErrorMessage,
		},
	})
}

func (s *Scheduler) publishSchedulerState() {
	s.mu.RLock()
	enabled, blocked, reason := s.enabled, s.blocked, s.blockedReason
	s.mu.RUnlock()

	s.bus.Publish(events.Event{
		Type: events.SchedulerChanged,
		Data: map[string]any{
			"enabled":        enabled,
			"blocked":        blocked,
			"blocked_reason": reason,
		},
	})
}

func (s *Scheduler) wake() {
	select {
	case s.queue.wake <- struct{}{}:
	default:
	}
}
