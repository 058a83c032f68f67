package crane

import "fmt"

// CommandType is the instruction vocabulary of the crane PLC.
type CommandType string

const (
	CmdMove   CommandType = "move"
	CmdPick   CommandType = "pick"
	CmdDrop   CommandType = "drop"
	CmdRotate CommandType = "rotate"
	CmdPark   CommandType = "park"
)

// CraneMode selects who is in control of the crane.
type CraneMode string

const (
	ModeAutomatic     CraneMode = "automatic"
	ModeManual        CraneMode = "manual"
	ModeSemiAutomatic CraneMode = "semi_automatic"
)

// Rotation is the gripper rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Einzeichen-Codes auf dem PLC-Telegramm
var cmdWireCodes = map[CommandType]string{
	CmdMove:   "M",
	CmdPick:   "P",
	CmdDrop:   "D",
	CmdRotate: "R",
	CmdPark:   "K",
}

var cmdByWireCode = func() map[string]CommandType {
	m := make(map[string]CommandType, len(cmdWireCodes))
	for c, w := range cmdWireCodes {
		m[w] = c
	}
	return m
}()

var modeWireCodes = map[CraneMode]string{
	ModeAutomatic:     "A",
	ModeManual:        "M",
	ModeSemiAutomatic: "S",
}

var modeByWireCode = func() map[string]CraneMode {
	m := make(map[string]CraneMode, len(modeWireCodes))
	for c, w := range modeWireCodes {
		m[w] = c
	}
	return m
}()

// WireCode returns the single-character telegram code.
func (c CommandType) WireCode() string {
	return cmdWireCodes[c]
}

// ParseCommandType resolves a telegram code into a command type.
func ParseCommandType(code string) (CommandType, error) {
	c, ok := cmdByWireCode[code]
	if !ok {
		return "", fmt.Errorf("unknown command wire code: %q", code)
	}
	return c, nil
}

// WireCode returns the single-character telegram code.
func (m CraneMode) WireCode() string {
	return modeWireCodes[m]
}

// ParseCraneMode resolves a telegram code into a crane mode.
func ParseCraneMode(code string) (CraneMode, error) {
	m, ok := modeByWireCode[code]
	if !ok {
		return "", fmt.Errorf("unknown crane mode wire code: %q", code)
	}
	return m, nil
}

// Valid reports whether the rotation is one of the four gripper stops.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Command is one instruction unit for the crane. Route names the yard
// numbers the crane travels between; the PLC resolves them to mm
// coordinates from its own table.
type Command struct {
	CmdType CommandType `json:"cmd_type"`
	Mode    CraneMode   `json:"mode"`
	Route   string      `json:"route"`
	Rotate  Rotation    `json:"rotate"`
	IngotNo string      `json:"ingot_no,omitempty"`
}
