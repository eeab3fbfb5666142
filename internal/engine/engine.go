// Package engine hosts input method engines: the registry that loads them
// once, the glue channel they talk back through, and the loaders that build
// them.
package engine

// Engine is an input method engine. All methods run on the event thread.
type Engine interface {
	// Init hands the engine its glue channel. A non-nil error marks the
	// registration failed.
	Init(glue *Glue) error
	// Click delivers a key code.
	Click(code int)
	// Select delivers a chosen candidate.
	Select(text, data string)
}

// Shower is implemented by engines that react to a new input field type.
type Shower interface {
	Show(inputType string)
}

// Uninitializer is implemented by engines holding resources released at
// teardown.
type Uninitializer interface {
	Uninit()
}
