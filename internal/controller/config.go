package controller

import (
	"time"

	"github.com/bnema/softkeys/internal/engine"
)

// Config holds the controller timings and startup state.
type Config struct {
	MenuShowDelay        time.Duration
	MenuHideDelay        time.Duration
	DeleteRepeatDelay    time.Duration
	DeleteRepeatInterval time.Duration
	CapsDoubleTap        time.Duration
	SpaceDoubleTap       time.Duration

	// Keyboard is the keyboard selected at startup; empty or unknown means
	// the first known keyboard.
	Keyboard  string
	InputType string

	Engines engine.Options
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		MenuShowDelay:        700 * time.Millisecond,
		MenuHideDelay:        500 * time.Millisecond,
		DeleteRepeatDelay:    700 * time.Millisecond,
		DeleteRepeatInterval: 100 * time.Millisecond,
		CapsDoubleTap:        450 * time.Millisecond,
		SpaceDoubleTap:       700 * time.Millisecond,
		InputType:            "text",
		Engines:              engine.DefaultOptions(),
	}
}
