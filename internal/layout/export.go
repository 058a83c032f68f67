package layout

import (
	"github.com/aluware/blocklager/internal/yard"
	"gopkg.in/yaml.v3"
)

// ExportYAML renders the current catalog as a human-readable layout
// document. Operators diff this against the configured layout after
// merges and splits.
func ExportYAML(name string, index *yard.AllocationIndex) ([]byte, error) {
	def := Definition{Name: name}

	for _, s := range index.List() {
		def.Yards = append(def.Yards, YardDef{
			YardNumber:       s.YardNumber,
			Type:             string(s.Type),
			Usage:            string(s.Usage),
			GridX:            s.GridX,
			GridY:            s.GridY,
			PosXMm:           s.PosXMm,
			PosYMm:           s.PosYMm,
			PosZMm:           s.PosZMm,
			LengthMm:         s.LengthMm,
			WidthMm:          s.WidthMm,
			HeightMm:         s.HeightMm,
			MaxIngots:        s.MaxIngots,
			ToStockAllowed:   s.ToStockAllowed,
			FromStockAllowed: s.FromStockAllowed,
		})
	}

	return yaml.Marshal(&def)
}
