package yard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type gridCell struct {
	X int
	Y int
}

// AllocationIndex owns the stockyard catalog and the per-slot piles.
// All mutation goes through the index under one lock so that catalog,
// grid occupancy and pile contents can never drift apart. Reporting
// callers get copies, never internal pointers to slot records.
type AllocationIndex struct {
	mu sync.RWMutex

	slots    map[uuid.UUID]*Stockyard
	byNumber map[string]uuid.UUID
	byGrid   map[gridCell]uuid.UUID
	piles    map[uuid.UUID]*Pile

	// Kapazität, die laufende Transportaufträge schon belegt haben
	reserved map[uuid.UUID]int

	// Längen-Grenze für kurze Lagerplätze
	shortMaxLengthMm int

	logger *zap.Logger
}

// NewAllocationIndex creates an empty index. Ingots with a length up to
// shortMaxLengthMm are allocated to short slots, longer ones need a
// long slot.
func NewAllocationIndex(shortMaxLengthMm int, logger *zap.Logger) *AllocationIndex {
	return &AllocationIndex{
		slots:            make(map[uuid.UUID]*Stockyard),
		byNumber:         make(map[string]uuid.UUID),
		byGrid:           make(map[gridCell]uuid.UUID),
		piles:            make(map[uuid.UUID]*Pile),
		reserved:         make(map[uuid.UUID]int),
		shortMaxLengthMm: shortMaxLengthMm,
		logger:           logger,
	}
}

// AddSlot inserts a stockyard into the catalog.
func (x *AllocationIndex) AddSlot(s *Stockyard) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, taken := x.byNumber[s.YardNumber]; taken {
		return fmt.Errorf("%w: %s", ErrYardNumberTaken, s.YardNumber)
	}
	cell := gridCell{s.GridX, s.GridY}
	if _, taken := x.byGrid[cell]; taken {
		return fmt.Errorf("grid cell (%d,%d) already occupied", s.GridX, s.GridY)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	cp := *s
	x.slots[cp.ID] = &cp
	x.byNumber[cp.YardNumber] = cp.ID
	x.byGrid[cell] = cp.ID
	x.piles[cp.ID] = &Pile{}
	return nil
}

// Get returns a copy of the slot record.
func (x *AllocationIndex) Get(id uuid.UUID) (Stockyard, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s, ok := x.slots[id]
	if !ok {
		return Stockyard{}, ErrNotFound
	}
	return *s, nil
}

// GetByNumber returns a copy of the slot with the given yard number.
func (x *AllocationIndex) GetByNumber(yardNumber string) (Stockyard, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	id, ok := x.byNumber[yardNumber]
	if !ok {
		return Stockyard{}, ErrNotFound
	}
	return *x.slots[id], nil
}

// List returns all slots ordered by grid coordinate.
func (x *AllocationIndex) List() []Stockyard {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Stockyard, 0, len(x.slots))
	for _, s := range x.slots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GridX != out[j].GridX {
			return out[i].GridX < out[j].GridX
		}
		return out[i].GridY < out[j].GridY
	})
	return out
}

// FirstOfType returns the grid-lowest slot of the given type. Used to
// resolve the saw-side transfer slot.
func (x *AllocationIndex) FirstOfType(t YardType) (Stockyard, error) {
	for _, s := range x.List() {
		if s.Type == t {
			return s, nil
		}
	}
	return Stockyard{}, ErrNotFound
}

// requiredUsage maps an ingot length onto the slot geometry it needs.
func (x *AllocationIndex) requiredUsage(ing *Ingot) YardUsage {
	if ing.LengthMm <= x.shortMaxLengthMm {
		return UsageShort
	}
	return UsageLong
}

// FindDestination selects the best stockyard for an ingot. Eligible
// slots must allow stocking, match the required geometry (automatic
// slots take any length) and have free pile capacity net of
// reservations held by pending orders. Ranking: exact geometry match
// before automatic, then lowest occupancy ratio, then lowest grid
// coordinate. The ordering is fully deterministic.
func (x *AllocationIndex) FindDestination(ing *Ingot, typeFilter ...YardType) (Stockyard, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.findDestination(ing, typeFilter...)
}

// AllocateDestination picks the best slot and reserves one unit of its
// capacity in the same critical section, so concurrent requests cannot
// converge on the last free position of a slot. The caller owns the
// reservation until Release.
func (x *AllocationIndex) AllocateDestination(ing *Ingot, typeFilter ...YardType) (Stockyard, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, err := x.findDestination(ing, typeFilter...)
	if err != nil {
		return Stockyard{}, err
	}
	x.reserved[s.ID]++
	return s, nil
}

// findDestination ranks the candidates. Caller must hold the lock.
func (x *AllocationIndex) findDestination(ing *Ingot, typeFilter ...YardType) (Stockyard, error) {
	if len(typeFilter) == 0 {
		typeFilter = []YardType{TypeInternal, TypeExternal}
	}
	wanted := x.requiredUsage(ing)

	type candidate struct {
		slot  *Stockyard
		count int
		exact bool
	}
	cands := make([]candidate, 0)

	for _, s := range x.slots {
		if !s.ToStockAllowed {
			continue
		}
		if !containsType(typeFilter, s.Type) {
			continue
		}
		exact := s.Usage == wanted
		if !exact && s.Usage != UsageAutomatic {
			continue
		}
		cnt := x.piles[s.ID].Count() + x.reserved[s.ID]
		if cnt >= s.MaxIngots {
			continue
		}
		cands = append(cands, candidate{slot: s, count: cnt, exact: exact})
	}

	if len(cands) == 0 {
		return Stockyard{}, ErrAllocationExhausted
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.exact != b.exact {
			return a.exact
		}
		// Belegungsgrad vergleichen ohne Float: a.count/a.max < b.count/b.max
		ra := a.count * b.slot.MaxIngots
		rb := b.count * a.slot.MaxIngots
		if ra != rb {
			return ra < rb
		}
		if a.slot.GridX != b.slot.GridX {
			return a.slot.GridX < b.slot.GridX
		}
		return a.slot.GridY < b.slot.GridY
	})

	return *cands[0].slot, nil
}

func containsType(filter []YardType, t YardType) bool {
	for _, f := range filter {
		if f == t {
			return true
		}
	}
	return false
}

// Reserve commits one unit of pile capacity on an explicitly chosen
// slot to a pending order. ErrPileFull when pile plus reservations are
// already at capacity.
func (x *AllocationIndex) Reserve(id uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.slots[id]
	if !ok {
		return ErrNotFound
	}
	if x.piles[id].Count()+x.reserved[id] >= s.MaxIngots {
		return fmt.Errorf("destination %s: %w", s.YardNumber, ErrPileFull)
	}
	x.reserved[id]++
	return nil
}

// Release gives a destination reservation back when its order reaches
// a terminal state. Releasing an unknown slot is a no-op so terminal
// paths never have to special-case a merged-away destination.
func (x *AllocationIndex) Release(id uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.reserved[id] > 1 {
		x.reserved[id]--
	} else {
		delete(x.reserved, id)
	}
}

// Reserved reports capacity committed to pending orders on the slot.
func (x *AllocationIndex) Reserved(id uuid.UUID) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.reserved[id]
}

// FindAdjacentEmpty returns the empty short neighbors of a slot at grid
// distance 1 on the x axis, the merge axis of the hall.
func (x *AllocationIndex) FindAdjacentEmpty(id uuid.UUID) ([]Stockyard, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s, ok := x.slots[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]Stockyard, 0, 2)
	for _, dx := range []int{-1, 1} {
		nid, ok := x.byGrid[gridCell{s.GridX + dx, s.GridY}]
		if !ok {
			continue
		}
		n := x.slots[nid]
		if n.Usage == UsageShort && x.piles[nid].Count() == 0 {
			out = append(out, *n)
		}
	}
	return out, nil
}

// Merge combines two adjacent empty short slots into one long slot at
// the lower grid coordinate. The capacity of the merged slot is the sum
// of both, the other slot record is removed. Either both records are
// replaced by the merged one or nothing changes.
func (x *AllocationIndex) Merge(aID, bID uuid.UUID) (Stockyard, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	a, ok := x.slots[aID]
	if !ok {
		return Stockyard{}, ErrNotFound
	}
	b, ok := x.slots[bID]
	if !ok {
		return Stockyard{}, ErrNotFound
	}

	// Alle Vorbedingungen prüfen, bevor irgendetwas mutiert wird
	if a.Usage != UsageShort || b.Usage != UsageShort {
		return Stockyard{}, fmt.Errorf("%w: both slots must be short", ErrNotEligible)
	}
	if x.piles[aID].Count() != 0 || x.piles[bID].Count() != 0 {
		return Stockyard{}, fmt.Errorf("%w: both slots must be empty", ErrNotEligible)
	}
	if x.reserved[aID] != 0 || x.reserved[bID] != 0 {
		return Stockyard{}, fmt.Errorf("%w: slot has an inbound transport", ErrNotEligible)
	}
	if a.GridY != b.GridY || abs(a.GridX-b.GridX) != 1 {
		return Stockyard{}, fmt.Errorf("%w: slots must be grid-adjacent", ErrNotEligible)
	}

	lower, upper := a, b
	if b.GridX < a.GridX {
		lower, upper = b, a
	}

	num := x.freeYardNumber(fmt.Sprintf("L%02d%02d", lower.GridX, lower.GridY))

	delete(x.byNumber, lower.YardNumber)
	delete(x.byNumber, upper.YardNumber)
	delete(x.byGrid, gridCell{upper.GridX, upper.GridY})
	delete(x.slots, upper.ID)
	delete(x.piles, upper.ID)
	delete(x.reserved, upper.ID)

	lower.Usage = UsageLong
	lower.YardNumber = num
	lower.LengthMm += upper.LengthMm
	lower.MaxIngots += upper.MaxIngots
	lower.UpdatedAt = time.Now()
	x.byNumber[num] = lower.ID

	x.logger.Info("Stockyards merged",
		zap.String("yard_number", lower.YardNumber),
		zap.Int("grid_x", lower.GridX),
		zap.Int("grid_y", lower.GridY),
		zap.Int("max_ingots", lower.MaxIngots))

	return *lower, nil
}

// CanSplit reports whether a slot may be split right now, without
// mutating anything. Exposed separately for the operator surface.
func (x *AllocationIndex) CanSplit(id uuid.UUID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, err := x.splitTarget(id)
	return err == nil
}

// splitTarget validates split preconditions and returns the free grid
// cell the second short slot would occupy. Caller must hold the lock.
func (x *AllocationIndex) splitTarget(id uuid.UUID) (gridCell, error) {
	s, ok := x.slots[id]
	if !ok {
		return gridCell{}, ErrNotFound
	}
	if s.Usage != UsageLong {
		return gridCell{}, fmt.Errorf("%w: slot is not long", ErrNotEligible)
	}
	if x.piles[id].Count() != 0 {
		return gridCell{}, fmt.Errorf("%w: slot is occupied", ErrNotEligible)
	}
	if x.reserved[id] != 0 {
		return gridCell{}, fmt.Errorf("%w: slot has an inbound transport", ErrNotEligible)
	}
	for _, dx := range []int{1, -1} {
		cell := gridCell{s.GridX + dx, s.GridY}
		if _, taken := x.byGrid[cell]; !taken {
			return cell, nil
		}
	}
	return gridCell{}, fmt.Errorf("%w: no free adjacent grid cell", ErrNotEligible)
}

// Split divides an empty long slot into two short slots: the original
// record shrinks in place, the second half is created on the free
// adjacent cell. Capacity and length are conserved across the pair.
func (x *AllocationIndex) Split(id uuid.UUID) ([]Stockyard, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cell, err := x.splitTarget(id)
	if err != nil {
		return nil, err
	}
	s := x.slots[id]

	halfCap := s.MaxIngots / 2
	halfLen := s.LengthMm / 2

	second := &Stockyard{
		ID:               uuid.New(),
		YardNumber:       x.freeYardNumber(fmt.Sprintf("S%02d%02d", cell.X, cell.Y)),
		Type:             s.Type,
		Usage:            UsageShort,
		GridX:            cell.X,
		GridY:            cell.Y,
		PosXMm:           s.PosXMm,
		PosYMm:           s.PosYMm,
		PosZMm:           s.PosZMm,
		LengthMm:         halfLen,
		WidthMm:          s.WidthMm,
		HeightMm:         s.HeightMm,
		MaxIngots:        halfCap,
		ToStockAllowed:   s.ToStockAllowed,
		FromStockAllowed: s.FromStockAllowed,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}

	delete(x.byNumber, s.YardNumber)
	s.Usage = UsageShort
	s.YardNumber = x.freeYardNumber(fmt.Sprintf("S%02d%02d", s.GridX, s.GridY))
	// Kapazität bleibt über beide Hälften erhalten
	s.MaxIngots -= halfCap
	s.LengthMm -= halfLen
	s.UpdatedAt = time.Now()
	x.byNumber[s.YardNumber] = s.ID

	x.slots[second.ID] = second
	x.byNumber[second.YardNumber] = second.ID
	x.byGrid[cell] = second.ID
	x.piles[second.ID] = &Pile{}

	x.logger.Info("Stockyard split",
		zap.String("first", s.YardNumber),
		zap.String("second", second.YardNumber))

	return []Stockyard{*s, *second}, nil
}

// freeYardNumber derives a deterministic yard number from the grid
// position that cannot collide with a configured number. Caller must
// hold the lock.
func (x *AllocationIndex) freeYardNumber(base string) string {
	num := base
	for i := 2; ; i++ {
		if _, taken := x.byNumber[num]; !taken {
			return num
		}
		num = fmt.Sprintf("%s.%d", base, i)
	}
}

// Push places an ingot on the slot's pile and binds the ingot's
// location to the slot.
func (x *AllocationIndex) Push(id uuid.UUID, ing *Ingot) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	s, ok := x.slots[id]
	if !ok {
		return 0, ErrNotFound
	}
	pos, err := x.piles[id].Push(ing, s.MaxIngots)
	if err != nil {
		return 0, err
	}
	slotID := s.ID
	ing.StockyardID = &slotID
	return pos, nil
}

// PopTop removes the topmost ingot from the slot's pile and clears the
// ingot's location.
func (x *AllocationIndex) PopTop(id uuid.UUID) (*Ingot, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.slots[id]; !ok {
		return nil, ErrNotFound
	}
	ing, err := x.piles[id].PopTop()
	if err != nil {
		return nil, err
	}
	ing.StockyardID = nil
	return ing, nil
}

// PeekTop returns the topmost ingot of a slot without removing it.
func (x *AllocationIndex) PeekTop(id uuid.UUID) (*Ingot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if _, ok := x.slots[id]; !ok {
		return nil, ErrNotFound
	}
	return x.piles[id].PeekTop()
}

// Count returns the number of ingots on a slot.
func (x *AllocationIndex) Count(id uuid.UUID) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if _, ok := x.slots[id]; !ok {
		return 0, ErrNotFound
	}
	return x.piles[id].Count(), nil
}

// PileContents returns the pile of a slot from bottom to top as copies.
func (x *AllocationIndex) PileContents(id uuid.UUID) ([]Ingot, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	p, ok := x.piles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Ingot, 0, p.Count())
	for _, ing := range p.Ingots() {
		out = append(out, *ing)
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
