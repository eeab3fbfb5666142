package layout

// Mode is the layout mode of the active keyboard.
type Mode string

const (
	ModeNormal    Mode = ""
	ModeAlternate Mode = "Alternate"
	ModeSymbol    Mode = "Symbol"
)

func (m Mode) String() string {
	if m == ModeNormal {
		return "normal"
	}
	return string(m)
}

// Layout overrides passed to the panel when a mode is applied.
const (
	OverrideNone      = ""
	OverrideAlternate = "alternateLayout"
	OverrideSymbol    = "symbolLayout"
)

// Override returns the layout override the panel renders for m.
func (m Mode) Override() string {
	switch m {
	case ModeAlternate:
		return OverrideAlternate
	case ModeSymbol:
		return OverrideSymbol
	default:
		return OverrideNone
	}
}

// Selection is the active keyboard and its mode. Symbol is a refinement of
// alternate: IsAlternate holds in both modes, IsSymbol only in symbol mode.
type Selection struct {
	Keyboard string
	Mode     Mode
}

func (s Selection) IsAlternate() bool {
	return s.Mode == ModeAlternate || s.Mode == ModeSymbol
}

func (s Selection) IsSymbol() bool {
	return s.Mode == ModeSymbol
}

// CaseState tracks transient and locked upper case.
type CaseState struct {
	UpperCase       bool
	UpperCaseLocked bool
}

// Lock enters locked upper case, forcing UpperCase on. It reports whether
// UpperCase changed.
func (c *CaseState) Lock() bool {
	c.UpperCaseLocked = true
	if c.UpperCase {
		return false
	}
	c.UpperCase = true
	return true
}

// Toggle flips transient upper case and drops any lock.
func (c *CaseState) Toggle() {
	c.UpperCaseLocked = false
	c.UpperCase = !c.UpperCase
}

// Reset returns to unlocked lower case, as every keyboard switch does.
func (c *CaseState) Reset() {
	c.UpperCase = false
	c.UpperCaseLocked = false
}

// ConsumeTransient drops transient upper case after a character was typed.
// It reports whether the case changed.
func (c *CaseState) ConsumeTransient() bool {
	if !c.UpperCase || c.UpperCaseLocked {
		return false
	}
	c.UpperCase = false
	return true
}
