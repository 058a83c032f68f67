package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluware/blocklager/internal/events"
	"github.com/aluware/blocklager/internal/scheduler"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrValidation marks a rejected request with bad field values.
	ErrValidation = errors.New("invalid storage request")

	// ErrDuplicateIngot means the ingot number is already known.
	ErrDuplicateIngot = errors.New("ingot number already registered")

	// ErrProductRestricted means the product is on the restriction list.
	ErrProductRestricted = errors.New("product is restricted")

	// ErrIngotNotFound means no ingot with that number is registered.
	ErrIngotNotFound = errors.New("ingot not found")

	// ErrIngotNotReachable means the ingot is buried under other ingots
	// or not resting on a slot; the crane can only take the top of a
	// pile.
	ErrIngotNotReachable = errors.New("ingot is not on top of its pile")
)

// Store persists newly created ingots and orders.
type Store interface {
	CreateIngot(ctx context.Context, ing *yard.Ingot) error
	UpdateIngot(ctx context.Context, ing *yard.Ingot) error
	CreateOrder(ctx context.Context, o *transport.Order) error
}

// StorageRequest is the normalized intake contract for a saw-origin
// pickup order.
type StorageRequest struct {
	IngotNo     string `json:"ingot_no" binding:"required"`
	ProductNo   string `json:"product_no" binding:"required"`
	WeightKg    int    `json:"weight_kg"`
	LengthMm    int    `json:"length_mm"`
	WidthMm     int    `json:"width_mm"`
	ThicknessMm int    `json:"thickness_mm"`
	HeadSawn    bool   `json:"head_sawn"`
	FootSawn    bool   `json:"foot_sawn"`
}

// Service turns normalized inbound requests (saw pickups, calloffs,
// operator relocations) into transport orders. It owns the ingot
// registry and the product restriction list; it knows nothing about
// wire encodings.
type Service struct {
	index  *yard.AllocationIndex
	sched  *scheduler.Scheduler
	store  Store
	bus    *events.Bus
	logger *zap.Logger

	mu           sync.Mutex
	ingots       map[string]*yard.Ingot
	restrictions map[string]bool
	transportSeq int
}

func NewService(
	index *yard.AllocationIndex,
	sched *scheduler.Scheduler,
	store Store,
	bus *events.Bus,
	logger *zap.Logger,
) *Service {
	return &Service{
		index:        index,
		sched:        sched,
		store:        store,
		bus:          bus,
		logger:       logger,
		ingots:       make(map[string]*yard.Ingot),
		restrictions: make(map[string]bool),
	}
}

func (s *Service) validate(req StorageRequest) error {
	switch {
	case req.IngotNo == "":
		return fmt.Errorf("%w: ingot_no is required", ErrValidation)
	case req.ProductNo == "":
		return fmt.Errorf("%w: product_no is required", ErrValidation)
	case req.LengthMm <= 0 || req.WidthMm <= 0 || req.ThicknessMm <= 0:
		return fmt.Errorf("%w: dimensions must be positive", ErrValidation)
	case req.WeightKg <= 0:
		return fmt.Errorf("%w: weight must be positive", ErrValidation)
	}
	return nil
}

func (s *Service) nextTransportNo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportSeq++
	return fmt.Sprintf("T%s-%05d", time.Now().Format("20060102"), s.transportSeq)
}

// SubmitStorageRequest registers a freshly sawn ingot, allocates a
// destination slot and enqueues the storage move on the saw priority
// lane. Rejections (validation, restriction, AllocationExhausted) leave
// no side effects.
func (s *Service) SubmitStorageRequest(ctx context.Context, req StorageRequest) (*transport.Order, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	ing := &yard.Ingot{
		ID:          uuid.New(),
		IngotNo:     req.IngotNo,
		ProductNo:   req.ProductNo,
		WeightKg:    req.WeightKg,
		LengthMm:    req.LengthMm,
		WidthMm:     req.WidthMm,
		ThicknessMm: req.ThicknessMm,
		HeadSawn:    req.HeadSawn,
		FootSawn:    req.FootSawn,
		CreatedAt:   time.Now(),
	}

	// Duplikatprüfung und Registrierung in einem kritischen Abschnitt,
	// sonst akzeptieren zwei parallele Anlieferungen dieselbe Nummer
	s.mu.Lock()
	if _, dup := s.ingots[req.IngotNo]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIngot, req.IngotNo)
	}
	if s.restrictions[req.ProductNo] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProductRestricted, req.ProductNo)
	}
	s.ingots[req.IngotNo] = ing
	s.mu.Unlock()

	unregister := func() {
		s.mu.Lock()
		delete(s.ingots, req.IngotNo)
		s.mu.Unlock()
	}

	sawSlot, err := s.index.FirstOfType(yard.TypeSaw)
	if err != nil {
		unregister()
		return nil, fmt.Errorf("no saw-side transfer slot configured: %w", err)
	}

	// Ziel zuerst bestimmen: bei AllocationExhausted bleibt alles unverändert
	dest, err := s.index.AllocateDestination(ing)
	if err != nil {
		unregister()
		return nil, err
	}

	fromPos, err := s.index.Push(sawSlot.ID, ing)
	if err != nil {
		s.index.Release(dest.ID)
		unregister()
		return nil, fmt.Errorf("saw-side slot %s: %w", sawSlot.YardNumber, err)
	}

	o := transport.NewOrder(s.nextTransportNo(), ing.ID, ing.IngotNo, transport.PrioritySaw)
	o.FromYardID = sawSlot.ID
	o.FromYardNo = sawSlot.YardNumber
	o.FromPilePosition = fromPos
	o.ToYardID = dest.ID
	o.ToYardNo = dest.YardNumber

	if err := s.store.CreateIngot(ctx, ing); err != nil {
		s.logger.Error("Failed to persist ingot", zap.Error(err))
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		s.logger.Error("Failed to persist order", zap.Error(err))
	}

	s.sched.SawQueue().Enqueue(ing)
	s.sched.Enqueue(o)

	s.bus.Publish(events.Event{
		Type:    events.OrderStateChanged,
		OrderID: o.ID,
		IngotNo: ing.IngotNo,
		Data: map[string]any{
			"transport_no": o.TransportNo,
			"status":       string(o.Status),
		},
	})

	s.logger.Info("Storage request accepted",
		zap.String("ingot_no", ing.IngotNo),
		zap.String("product_no", ing.ProductNo),
		zap.String("from", o.FromYardNo),
		zap.String("to", o.ToYardNo))

	return o, nil
}

// HandlePickupOrder is the event-bus consumer contract for saw-origin
// pickup orders; it maps 1:1 onto SubmitStorageRequest.
func (s *Service) HandlePickupOrder(ctx context.Context, req StorageRequest) (*transport.Order, error) {
	return s.SubmitStorageRequest(ctx, req)
}

// HandleCalloff serves a delivery demand: the ingot is moved to a
// loading slot. The ingot must be on top of its pile; digging out
// buried stock is an operator workflow, not an automatic one.
func (s *Service) HandleCalloff(ctx context.Context, ingotNo string) (*transport.Order, error) {
	ing, fromYard, err := s.reachableIngot(ingotNo)
	if err != nil {
		return nil, err
	}

	dest, err := s.index.AllocateDestination(ing, yard.TypeLoading)
	if err != nil {
		return nil, err
	}
	return s.enqueueRelocation(ctx, ing, fromYard, dest)
}

// SubmitRelocation moves an ingot to an explicitly chosen slot.
// Diagnostic/operator path.
func (s *Service) SubmitRelocation(ctx context.Context, ingotNo, toYardNo string) (*transport.Order, error) {
	ing, fromYard, err := s.reachableIngot(ingotNo)
	if err != nil {
		return nil, err
	}

	dest, err := s.index.GetByNumber(toYardNo)
	if err != nil {
		return nil, err
	}
	if !dest.ToStockAllowed {
		return nil, fmt.Errorf("%w: %s does not allow stocking", yard.ErrNotEligible, toYardNo)
	}
	// Reservieren statt zählen, damit parallele Aufträge das Ziel nicht überbuchen
	if err := s.index.Reserve(dest.ID); err != nil {
		return nil, err
	}
	return s.enqueueRelocation(ctx, ing, fromYard, dest)
}

// reachableIngot resolves an ingot that the crane can actually pick.
func (s *Service) reachableIngot(ingotNo string) (*yard.Ingot, yard.Stockyard, error) {
	s.mu.Lock()
	ing, ok := s.ingots[ingotNo]
	s.mu.Unlock()

	if !ok {
		return nil, yard.Stockyard{}, fmt.Errorf("%w: %s", ErrIngotNotFound, ingotNo)
	}
	if ing.StockyardID == nil {
		return nil, yard.Stockyard{}, fmt.Errorf("%w: %s is not on a slot", ErrIngotNotReachable, ingotNo)
	}
	fromYard, err := s.index.Get(*ing.StockyardID)
	if err != nil {
		return nil, yard.Stockyard{}, err
	}
	if !fromYard.FromStockAllowed {
		return nil, yard.Stockyard{}, fmt.Errorf("%w: %s does not allow retrieval", yard.ErrNotEligible, fromYard.YardNumber)
	}
	top, err := s.index.PeekTop(fromYard.ID)
	if err != nil || top.IngotNo != ingotNo {
		return nil, yard.Stockyard{}, fmt.Errorf("%w: %s", ErrIngotNotReachable, ingotNo)
	}
	return ing, fromYard, nil
}

func (s *Service) enqueueRelocation(ctx context.Context, ing *yard.Ingot, from, to yard.Stockyard) (*transport.Order, error) {
	o := transport.NewOrder(s.nextTransportNo(), ing.ID, ing.IngotNo, transport.PriorityRelocation)
	o.FromYardID = from.ID
	o.FromYardNo = from.YardNumber
	o.FromPilePosition = ing.PilePosition
	o.ToYardID = to.ID
	o.ToYardNo = to.YardNumber

	if err := s.store.CreateOrder(ctx, o); err != nil {
		s.logger.Error("Failed to persist order", zap.Error(err))
	}
	s.sched.Enqueue(o)

	s.logger.Info("Relocation order accepted",
		zap.String("ingot_no", ing.IngotNo),
		zap.String("from", o.FromYardNo),
		zap.String("to", o.ToYardNo))

	return o, nil
}

// SetProductRestriction toggles the restriction flag for a product.
// Restricted products are refused at intake.
func (s *Service) SetProductRestriction(productNo string, restricted bool) {
	s.mu.Lock()
	if restricted {
		s.restrictions[productNo] = true
	} else {
		delete(s.restrictions, productNo)
	}
	s.mu.Unlock()

	s.logger.Info("Product restriction changed",
		zap.String("product_no", productNo),
		zap.Bool("restricted", restricted))
}

// IsRestricted reports the restriction flag for a product.
func (s *Service) IsRestricted(productNo string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restrictions[productNo]
}

// Ingot returns a copy of a registered ingot.
func (s *Service) Ingot(ingotNo string) (yard.Ingot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ing, ok := s.ingots[ingotNo]
	if !ok {
		return yard.Ingot{}, fmt.Errorf("%w: %s", ErrIngotNotFound, ingotNo)
	}
	return *ing, nil
}

// IngotUpdate carries the operator-mutable flags of an ingot. Nil
// fields are left untouched.
type IngotUpdate struct {
	Scrap   *bool `json:"scrap"`
	Revised *bool `json:"revised"`
	Rotated *bool `json:"rotated"`
}

// UpdateIngotFlags patches the flags of a registered ingot and
// publishes the modification.
func (s *Service) UpdateIngotFlags(ctx context.Context, ingotNo string, upd IngotUpdate) (yard.Ingot, error) {
	s.mu.Lock()
	ing, ok := s.ingots[ingotNo]
	if !ok {
		s.mu.Unlock()
		return yard.Ingot{}, fmt.Errorf("%w: %s", ErrIngotNotFound, ingotNo)
	}
	if upd.Scrap != nil {
		ing.Scrap = *upd.Scrap
	}
	if upd.Revised != nil {
		ing.Revised = *upd.Revised
	}
	if upd.Rotated != nil {
		ing.Rotated = *upd.Rotated
	}
	cp := *ing
	s.mu.Unlock()

	if err := s.store.UpdateIngot(ctx, &cp); err != nil {
		s.logger.Error("Failed to persist ingot update", zap.Error(err))
	}

	s.bus.Publish(events.Event{
		Type:    events.IngotModified,
		IngotNo: ingotNo,
		Data: map[string]any{
			"scrap":   cp.Scrap,
			"revised": cp.Revised,
			"rotated": cp.Rotated,
		},
	})

	s.logger.Info("Ingot flags updated",
		zap.String("ingot_no", ingotNo),
		zap.Bool("scrap", cp.Scrap),
		zap.Bool("revised", cp.Revised),
		zap.Bool("rotated", cp.Rotated))

	return cp, nil
}

// RegisterIngot seeds the registry, e.g. when restoring state from
// persistence at startup.
func (s *Service) RegisterIngot(ing *yard.Ingot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingots[ing.IngotNo] = ing
}
