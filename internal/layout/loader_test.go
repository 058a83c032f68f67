package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aluware/blocklager/internal/yard"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validLayout = `{
  "name": "test-layout",
  "yards": [
    {
      "yard_number": "SAW01",
      "type": "saw",
      "usage": "automatic",
      "grid_x": 0,
      "grid_y": 0,
      "max_ingots": 4,
      "from_stock_allowed": true
    },
    {
      "yard_number": "L0101",
      "type": "internal",
      "usage": "short",
      "grid_x": 1,
      "grid_y": 1,
      "length_mm": 3600,
      "max_ingots": 6,
      "to_stock_allowed": true,
      "from_stock_allowed": true
    }
  ]
}`

func newLoader(t *testing.T, searchPaths ...string) *Loader {
	t.Helper()
	l, err := NewLoader(searchPaths, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestParseValidLayout(t *testing.T) {
	l := newLoader(t)

	def, err := l.Parse([]byte(validLayout), "test")
	require.NoError(t, err)
	require.Equal(t, "test-layout", def.Name)
	require.Len(t, def.Yards, 2)
	require.Equal(t, "SAW01", def.Yards[0].YardNumber)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	l := newLoader(t)

	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{{`},
		{"missing name", `{"yards": [{"yard_number": "A", "type": "internal", "usage": "short", "grid_x": 0, "grid_y": 0, "max_ingots": 1}]}`},
		{"empty yards", `{"name": "x", "yards": []}`},
		{"unknown type", `{"name": "x", "yards": [{"yard_number": "A", "type": "basement", "usage": "short", "grid_x": 0, "grid_y": 0, "max_ingots": 1}]}`},
		{"zero capacity", `{"name": "x", "yards": [{"yard_number": "A", "type": "internal", "usage": "short", "grid_x": 0, "grid_y": 0, "max_ingots": 0}]}`},
		{"unknown field", `{"name": "x", "extra": true, "yards": [{"yard_number": "A", "type": "internal", "usage": "short", "grid_x": 0, "grid_y": 0, "max_ingots": 1}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Parse([]byte(tc.doc), tc.name)
			require.Error(t, err)
		})
	}
}

func TestLoadFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test-layout.json"), []byte(validLayout), 0o644))

	l := newLoader(t, "/does/not/exist", dir)

	def, err := l.Load("test-layout")
	require.NoError(t, err)
	require.Equal(t, "test-layout", def.Name)

	_, err = l.Load("missing-layout")
	require.Error(t, err)
}

func TestApplyPopulatesIndex(t *testing.T) {
	l := newLoader(t)
	def, err := l.Parse([]byte(validLayout), "test")
	require.NoError(t, err)

	index := yard.NewAllocationIndex(3600, zap.NewNop())
	require.NoError(t, l.Apply(def, index))
	require.Len(t, index.List(), 2)

	slot, err := index.GetByNumber("L0101")
	require.NoError(t, err)
	require.Equal(t, yard.TypeInternal, slot.Type)
	require.Equal(t, yard.UsageShort, slot.Usage)
	require.Equal(t, 6, slot.MaxIngots)

	// Doppelte Platznummern brechen den Import ab
	require.Error(t, l.Apply(def, index))
}

func TestExportRoundTrip(t *testing.T) {
	l := newLoader(t)
	def, err := l.Parse([]byte(validLayout), "test")
	require.NoError(t, err)

	index := yard.NewAllocationIndex(3600, zap.NewNop())
	require.NoError(t, l.Apply(def, index))

	data, err := ExportYAML("test-layout", index)
	require.NoError(t, err)
	require.Contains(t, string(data), "SAW01")
	require.Contains(t, string(data), "yard_number: L0101")
}
