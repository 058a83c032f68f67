package yard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPilePushAssignsPositions(t *testing.T) {
	p := &Pile{}

	a := &Ingot{IngotNo: "B1001"}
	b := &Ingot{IngotNo: "B1002"}

	pos, err := p.Push(a, 3)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, 1, a.PilePosition)

	pos, err = p.Push(b, 3)
	require.NoError(t, err)
	require.Equal(t, 2, pos)
	require.Equal(t, 2, b.PilePosition)
	require.Equal(t, 2, p.Count())
}

func TestPilePushFull(t *testing.T) {
	p := &Pile{}

	_, err := p.Push(&Ingot{IngotNo: "B1001"}, 1)
	require.NoError(t, err)

	_, err = p.Push(&Ingot{IngotNo: "B1002"}, 1)
	require.ErrorIs(t, err, ErrPileFull)
	require.Equal(t, 1, p.Count())
}

func TestPilePopTopIsLIFO(t *testing.T) {
	p := &Pile{}

	for _, no := range []string{"B1", "B2", "B3"} {
		_, err := p.Push(&Ingot{IngotNo: no}, 5)
		require.NoError(t, err)
	}

	top, err := p.PopTop()
	require.NoError(t, err)
	require.Equal(t, "B3", top.IngotNo)

	top, err = p.PeekTop()
	require.NoError(t, err)
	require.Equal(t, "B2", top.IngotNo)
	require.Equal(t, 2, p.Count())
}

func TestPilePopEmpty(t *testing.T) {
	p := &Pile{}

	_, err := p.PopTop()
	require.ErrorIs(t, err, ErrPileEmpty)

	_, err = p.PeekTop()
	require.ErrorIs(t, err, ErrPileEmpty)
}
