package yard

// Pile is the ordered stack of ingots resting on one stockyard.
// Position 1 is the bottom; the highest position is the only ingot the
// crane can physically reach. Positions are always the contiguous range
// 1..Count(): Push assigns Count()+1 and PopTop removes the maximum, so
// no gaps can form.
//
// A Pile is not safe for concurrent use; the AllocationIndex guards it.
type Pile struct {
	ingots []*Ingot
}

// Push places an ingot on top of the pile and returns its new pile
// position. Fails with ErrPileFull when the slot already holds
// maxIngots; the pile is not mutated in that case.
func (p *Pile) Push(ing *Ingot, maxIngots int) (int, error) {
	if len(p.ingots) >= maxIngots {
		return 0, ErrPileFull
	}
	p.ingots = append(p.ingots, ing)
	pos := len(p.ingots)
	ing.PilePosition = pos
	return pos, nil
}

// PopTop removes and returns the topmost ingot. Only the top ingot is
// ever poppable: the crane cannot reach under a stack.
func (p *Pile) PopTop() (*Ingot, error) {
	if len(p.ingots) == 0 {
		return nil, ErrPileEmpty
	}
	top := p.ingots[len(p.ingots)-1]
	p.ingots = p.ingots[:len(p.ingots)-1]
	top.PilePosition = 0
	return top, nil
}

// PeekTop returns the topmost ingot without removing it.
func (p *Pile) PeekTop() (*Ingot, error) {
	if len(p.ingots) == 0 {
		return nil, ErrPileEmpty
	}
	return p.ingots[len(p.ingots)-1], nil
}

// Count returns the number of ingots on the pile.
func (p *Pile) Count() int {
	return len(p.ingots)
}

// Ingots returns a copy of the pile from bottom to top.
func (p *Pile) Ingots() []*Ingot {
	out := make([]*Ingot, len(p.ingots))
	copy(out, p.ingots)
	return out
}
