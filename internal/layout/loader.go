package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aluware/blocklager/internal/yard"
	"go.uber.org/zap"
)

// YardDef is one stockyard entry in a layout file.
type YardDef struct {
	YardNumber       string `json:"yard_number" yaml:"yard_number"`
	Type             string `json:"type" yaml:"type"`
	Usage            string `json:"usage" yaml:"usage"`
	GridX            int    `json:"grid_x" yaml:"grid_x"`
	GridY            int    `json:"grid_y" yaml:"grid_y"`
	PosXMm           int    `json:"pos_x_mm" yaml:"pos_x_mm"`
	PosYMm           int    `json:"pos_y_mm" yaml:"pos_y_mm"`
	PosZMm           int    `json:"pos_z_mm" yaml:"pos_z_mm"`
	LengthMm         int    `json:"length_mm" yaml:"length_mm"`
	WidthMm          int    `json:"width_mm" yaml:"width_mm"`
	HeightMm         int    `json:"height_mm" yaml:"height_mm"`
	MaxIngots        int    `json:"max_ingots" yaml:"max_ingots"`
	ToStockAllowed   bool   `json:"to_stock_allowed" yaml:"to_stock_allowed"`
	FromStockAllowed bool   `json:"from_stock_allowed" yaml:"from_stock_allowed"`
}

// Definition is one complete yard layout document.
type Definition struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Yards       []YardDef `json:"yards" yaml:"yards"`
}

// Loader finds, validates and parses yard layout files.
type Loader struct {
	validator   *Validator
	searchPaths []string
	logger      *zap.Logger
}

func NewLoader(searchPaths []string, logger *zap.Logger) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
		logger:      logger,
	}, nil
}

// Load reads a layout by name from the search paths.
func (l *Loader) Load(name string) (*Definition, error) {
	var data []byte
	var err error
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".json")
		data, err = os.ReadFile(fullPath)
		if err == nil {
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("layout not found: %s (searched in: %v)", name, l.searchPaths)
	}

	return l.Parse(data, foundPath)
}

// Parse validates and unmarshals one layout document.
func (l *Loader) Parse(data []byte, source string) (*Definition, error) {
	if err := l.validator.ValidateLayout(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", source, err)
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
	}

	return &def, nil
}

// Apply inserts all yards of a layout into the allocation index.
func (l *Loader) Apply(def *Definition, index *yard.AllocationIndex) error {
	for _, yd := range def.Yards {
		s := &yard.Stockyard{
			YardNumber:       yd.YardNumber,
			Type:             yard.YardType(yd.Type),
			Usage:            yard.YardUsage(yd.Usage),
			GridX:            yd.GridX,
			GridY:            yd.GridY,
			PosXMm:           yd.PosXMm,
			PosYMm:           yd.PosYMm,
			PosZMm:           yd.PosZMm,
			LengthMm:         yd.LengthMm,
			WidthMm:          yd.WidthMm,
			HeightMm:         yd.HeightMm,
			MaxIngots:        yd.MaxIngots,
			ToStockAllowed:   yd.ToStockAllowed,
			FromStockAllowed: yd.FromStockAllowed,
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
		if err := index.AddSlot(s); err != nil {
			return fmt.Errorf("yard %s: %w", yd.YardNumber, err)
		}
	}

	l.logger.Info("Yard layout applied",
		zap.String("layout", def.Name),
		zap.Int("yards", len(def.Yards)))

	return nil
}
