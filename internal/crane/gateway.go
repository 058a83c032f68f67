package crane

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"go.uber.org/zap"
)

// CommandSender pushes a command telegram towards the physical crane.
// The PLC driver behind it is not part of this system.
type CommandSender interface {
	Send(ctx context.Context, cmd Command) error
}

// Gateway translates dispatch decisions into command telegrams and
// funnels crane feedback into one bounded channel that the dispatch
// loop consumes exclusively. Feedback is never reduced from the caller's
// goroutine, so order state is mutated from a single place only.
type Gateway struct {
	sender CommandSender
	logger *zap.Logger

	mu   sync.RWMutex
	mode CraneMode

	feedback chan Feedback
}

// NewGateway creates a gateway in automatic mode.
func NewGateway(sender CommandSender, feedbackBuf int, logger *zap.Logger) *Gateway {
	if feedbackBuf <= 0 {
		feedbackBuf = 64
	}
	return &Gateway{
		sender:   sender,
		logger:   logger,
		mode:     ModeAutomatic,
		feedback: make(chan Feedback, feedbackBuf),
	}
}

// Mode returns the current crane mode.
func (g *Gateway) Mode() CraneMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// SetMode switches the crane session mode. Manual mode is a capability
// switch: feedback is still recorded but the scheduler stops
// dispatching.
func (g *Gateway) SetMode(m CraneMode) {
	g.mu.Lock()
	prev := g.mode
	g.mode = m
	g.mu.Unlock()

	if prev != m {
		g.logger.Info("Crane mode changed",
			zap.String("mode", string(m)),
			zap.String("previous", string(prev)))
	}
}

// Dispatch emits the command sequence for one transport order: pick at
// the source, optionally rotate, move, drop at the destination.
func (g *Gateway) Dispatch(ctx context.Context, o *transport.Order, rotate Rotation) ([]Command, error) {
	if !rotate.Valid() {
		return nil, fmt.Errorf("invalid rotation: %d", rotate)
	}
	mode := g.Mode()

	route := fmt.Sprintf("%s->%s", o.FromYardNo, o.ToYardNo)
	cmds := []Command{
		{CmdType: CmdPick, Mode: mode, Route: o.FromYardNo, IngotNo: o.IngotNo},
	}
	if rotate != Rotate0 {
		cmds = append(cmds, Command{CmdType: CmdRotate, Mode: mode, Rotate: rotate, IngotNo: o.IngotNo})
	}
	cmds = append(cmds,
		Command{CmdType: CmdMove, Mode: mode, Route: route, IngotNo: o.IngotNo},
		Command{CmdType: CmdDrop, Mode: mode, Route: o.ToYardNo, IngotNo: o.IngotNo},
	)

	for _, cmd := range cmds {
		if err := g.sender.Send(ctx, cmd); err != nil {
			return nil, fmt.Errorf("failed to send %s command: %w", cmd.CmdType, err)
		}
	}

	g.logger.Info("Transport order dispatched to crane",
		zap.String("transport_no", o.TransportNo),
		zap.String("route", route),
		zap.Int("commands", len(cmds)))

	return cmds, nil
}

// Park sends the crane to its park position. Diagnostic path, not tied
// to an order.
func (g *Gateway) Park(ctx context.Context) error {
	return g.sender.Send(ctx, Command{CmdType: CmdPark, Mode: g.Mode()})
}

// OnFeedback records a feedback telegram. The send blocks when the
// buffer is full so ordering is preserved; the dispatch loop drains the
// channel even while idle.
func (g *Gateway) OnFeedback(fb Feedback) {
	if fb.At.IsZero() {
		fb.At = time.Now()
	}
	g.feedback <- fb
}

// Feedback is the channel the dispatch loop consumes.
func (g *Gateway) Feedback() <-chan Feedback {
	return g.feedback
}

// RotationFor derives the gripper rotation for an ingot: rotated stock
// is turned back by 180 degrees on the way to its destination.
func RotationFor(ing *yard.Ingot) Rotation {
	if ing != nil && ing.Rotated {
		return Rotate180
	}
	return Rotate0
}

// LogSender is a CommandSender for operation without an attached PLC:
// every telegram is logged and acknowledged. Used in commissioning and
// dry runs.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, cmd Command) error {
	s.Logger.Info("Crane command",
		zap.String("cmd", cmd.CmdType.WireCode()),
		zap.String("mode", cmd.Mode.WireCode()),
		zap.String("route", cmd.Route),
		zap.Int("rotate", int(cmd.Rotate)),
		zap.String("ingot_no", cmd.IngotNo))
	return nil
}
