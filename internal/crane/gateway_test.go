package crane

import (
	"context"
	"errors"
	"testing"

	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSender struct {
	sent []Command
	fail bool
}

func (s *captureSender) Send(_ context.Context, cmd Command) error {
	if s.fail {
		return errors.New("plc unreachable")
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func testOrder() *transport.Order {
	o := transport.NewOrder("T20250101-00001", uuid.New(), "B1001", transport.PrioritySaw)
	o.FromYardNo = "SAW01"
	o.ToYardNo = "L0101"
	return o
}

func TestDispatchSequence(t *testing.T) {
	sender := &captureSender{}
	g := NewGateway(sender, 4, zap.NewNop())

	cmds, err := g.Dispatch(context.Background(), testOrder(), Rotate0)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	require.Equal(t, CmdPick, sender.sent[0].CmdType)
	require.Equal(t, "SAW01", sender.sent[0].Route)
	require.Equal(t, CmdMove, sender.sent[1].CmdType)
	require.Equal(t, "SAW01->L0101", sender.sent[1].Route)
	require.Equal(t, CmdDrop, sender.sent[2].CmdType)
	require.Equal(t, "L0101", sender.sent[2].Route)

	for _, cmd := range sender.sent {
		require.Equal(t, "B1001", cmd.IngotNo)
		require.Equal(t, ModeAutomatic, cmd.Mode)
	}
}

func TestDispatchWithRotation(t *testing.T) {
	sender := &captureSender{}
	g := NewGateway(sender, 4, zap.NewNop())

	cmds, err := g.Dispatch(context.Background(), testOrder(), Rotate180)
	require.NoError(t, err)
	require.Len(t, cmds, 4)
	require.Equal(t, CmdRotate, sender.sent[1].CmdType)
	require.Equal(t, Rotate180, sender.sent[1].Rotate)
}

func TestDispatchRejectsInvalidRotation(t *testing.T) {
	sender := &captureSender{}
	g := NewGateway(sender, 4, zap.NewNop())

	_, err := g.Dispatch(context.Background(), testOrder(), Rotation(45))
	require.Error(t, err)
	require.Empty(t, sender.sent)
}

func TestDispatchPropagatesSendError(t *testing.T) {
	sender := &captureSender{fail: true}
	g := NewGateway(sender, 4, zap.NewNop())

	_, err := g.Dispatch(context.Background(), testOrder(), Rotate0)
	require.Error(t, err)
}

func TestFeedbackChannelOrdering(t *testing.T) {
	g := NewGateway(&captureSender{}, 4, zap.NewNop())

	g.OnFeedback(Feedback{Kind: FeedbackPickConfirmed})
	g.OnFeedback(Feedback{Kind: FeedbackDropConfirmed})

	fb := <-g.Feedback()
	require.Equal(t, FeedbackPickConfirmed, fb.Kind)
	require.False(t, fb.At.IsZero())

	fb = <-g.Feedback()
	require.Equal(t, FeedbackDropConfirmed, fb.Kind)
}

func TestModeSwitch(t *testing.T) {
	g := NewGateway(&captureSender{}, 4, zap.NewNop())
	require.Equal(t, ModeAutomatic, g.Mode())

	g.SetMode(ModeManual)
	require.Equal(t, ModeManual, g.Mode())
}

func TestRotationFor(t *testing.T) {
	require.Equal(t, Rotate0, RotationFor(nil))
	require.Equal(t, Rotate0, RotationFor(&yard.Ingot{}))
	require.Equal(t, Rotate180, RotationFor(&yard.Ingot{Rotated: true}))
}

func TestCommandWireCodes(t *testing.T) {
	cases := map[CommandType]string{
		CmdMove:   "M",
		CmdPick:   "P",
		CmdDrop:   "D",
		CmdRotate: "R",
		CmdPark:   "K",
	}
	for cmd, code := range cases {
		require.Equal(t, code, cmd.WireCode())
		parsed, err := ParseCommandType(code)
		require.NoError(t, err)
		require.Equal(t, cmd, parsed)
	}

	_, err := ParseCommandType("Z")
	require.Error(t, err)
}

func TestModeWireCodes(t *testing.T) {
	cases := map[CraneMode]string{
		ModeAutomatic:     "A",
		ModeManual:        "M",
		ModeSemiAutomatic: "S",
	}
	for mode, code := range cases {
		require.Equal(t, code, mode.WireCode())
		parsed, err := ParseCraneMode(code)
		require.NoError(t, err)
		require.Equal(t, mode, parsed)
	}

	_, err := ParseCraneMode("X")
	require.Error(t, err)
}
