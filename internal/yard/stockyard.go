package yard

import (
	"time"

	"github.com/google/uuid"
)

// YardType classifies what a stockyard is physically used for.
type YardType string

const (
	TypeInternal YardType = "internal"
	TypeExternal YardType = "external"
	TypeSaw      YardType = "saw"
	TypeSwapout  YardType = "swapout"
	TypeLoading  YardType = "loading"
	TypeExit     YardType = "exit"
)

// YardUsage describes the allocation class of a stockyard.
// Short and long refer to the slot geometry: a long slot covers the
// footprint of two adjacent short slots.
type YardUsage string

const (
	UsageShort     YardUsage = "short"
	UsageLong      YardUsage = "long"
	UsageAutomatic YardUsage = "automatic"
	UsageReserved  YardUsage = "reserved"
)

// Stockyard is one physical storage slot in the hall grid.
type Stockyard struct {
	ID         uuid.UUID `json:"id"`
	YardNumber string    `json:"yard_number"`
	Type       YardType  `json:"type"`
	Usage      YardUsage `json:"usage"`

	// Grid-Koordinaten in der Halle
	GridX int `json:"grid_x"`
	GridY int `json:"grid_y"`

	// Physische Position in mm (Kran-Koordinatensystem)
	PosXMm int `json:"pos_x_mm"`
	PosYMm int `json:"pos_y_mm"`
	PosZMm int `json:"pos_z_mm"`

	LengthMm int `json:"length_mm"`
	WidthMm  int `json:"width_mm"`
	HeightMm int `json:"height_mm"`

	MaxIngots        int  `json:"max_ingots"`
	ToStockAllowed   bool `json:"to_stock_allowed"`
	FromStockAllowed bool `json:"from_stock_allowed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ingot is one unit of sawn material. StockyardID is nil while the
// ingot is not resting on any slot (in the crane gripper or at the saw
// roller table).
type Ingot struct {
	ID        uuid.UUID `json:"id"`
	IngotNo   string    `json:"ingot_no"`
	ProductNo string    `json:"product_no"`

	LengthMm    int `json:"length_mm"`
	WidthMm     int `json:"width_mm"`
	ThicknessMm int `json:"thickness_mm"`
	WeightKg    int `json:"weight_kg"`

	HeadSawn bool `json:"head_sawn"`
	FootSawn bool `json:"foot_sawn"`
	Scrap    bool `json:"scrap"`
	Revised  bool `json:"revised"`
	Rotated  bool `json:"rotated"`

	StockyardID  *uuid.UUID `json:"stockyard_id,omitempty"`
	PilePosition int        `json:"pile_position,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
