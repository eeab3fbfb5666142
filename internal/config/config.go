// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/softkeys/internal/controller"
	"github.com/bnema/softkeys/internal/engine"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Timing    TimingConfig    `mapstructure:"timing"`
	Keyboards KeyboardsConfig `mapstructure:"keyboards"`
	Engines   EnginesConfig   `mapstructure:"engines"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	SSH       SSHConfig       `mapstructure:"ssh"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TimingConfig holds the gesture timings in milliseconds
type TimingConfig struct {
	MenuShowMs          int `mapstructure:"menu_show_ms"`
	MenuHideMs          int `mapstructure:"menu_hide_ms"`
	DeleteRepeatDelayMs int `mapstructure:"delete_repeat_delay_ms"`
	DeleteRepeatRateMs  int `mapstructure:"delete_repeat_rate_ms"`
	CapsDoubleTapMs     int `mapstructure:"caps_double_tap_ms"`
	SpaceDoubleTapMs    int `mapstructure:"space_double_tap_ms"`
}

// KeyboardsConfig selects the catalog and the keyboards in it
type KeyboardsConfig struct {
	CatalogPath string   `mapstructure:"catalog_path"` // Empty means the built-in catalog
	Enabled     []string `mapstructure:"enabled"`      // Switching order; empty keeps the catalog's
	Default     string   `mapstructure:"default"`
	InputType   string   `mapstructure:"input_type"`
	Watch       bool     `mapstructure:"watch"` // Reload the catalog file when it changes
}

// EnginesConfig contains IME engine settings
type EnginesConfig struct {
	ScriptDir       string `mapstructure:"script_dir"`
	MaxLoadAttempts int    `mapstructure:"max_load_attempts"`
	MaxPendingKeys  int    `mapstructure:"max_pending_keys"`
	LoadTimeoutMs   int    `mapstructure:"load_timeout_ms"`
}

// SinkConfig selects where typed keys go
type SinkConfig struct {
	Backend    string `mapstructure:"backend"` // log or uinput
	DevicePath string `mapstructure:"device_path"`
	DeviceName string `mapstructure:"device_name"`
}

// BridgeConfig contains the browser bridge settings
type BridgeConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	Path          string `mapstructure:"path"`
}

// SSHConfig contains the SSH keyboard server settings
type SSHConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Port               int      `mapstructure:"port"`
	BindAddress        string   `mapstructure:"bind_address"`
	HostKeyPath        string   `mapstructure:"host_key_path"`
	AuthorizedKeysPath string   `mapstructure:"authorized_keys_path"`
	Whitelist          []string `mapstructure:"whitelist"`      // List of allowed SSH key fingerprints
	WhitelistOnly      bool     `mapstructure:"whitelist_only"` // Only allow whitelisted keys
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
	LogFile  string `mapstructure:"log_file"`  // Log destination while the terminal keyboard is on screen
}

const (
	SinkLog    = "log"
	SinkUInput = "uinput"
)

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Timing: TimingConfig{
			MenuShowMs:          700,
			MenuHideMs:          500,
			DeleteRepeatDelayMs: 700,
			DeleteRepeatRateMs:  100,
			CapsDoubleTapMs:     450,
			SpaceDoubleTapMs:    700,
		},
		Keyboards: KeyboardsConfig{
			CatalogPath: "",
			Enabled:     []string{},
			Default:     "",
			InputType:   "text",
			Watch:       true,
		},
		Engines: EnginesConfig{
			ScriptDir:       "engines",
			MaxLoadAttempts: 3,
			MaxPendingKeys:  64,
			LoadTimeoutMs:   10000,
		},
		Sink: SinkConfig{
			Backend:    SinkLog,
			DevicePath: "/dev/uinput",
			DeviceName: "Softkeys Virtual Keyboard",
		},
		Bridge: BridgeConfig{
			ListenAddress: "127.0.0.1:8790",
			Path:          "/ws",
		},
		SSH: SSHConfig{
			Enabled:            false,
			Port:               52526,
			BindAddress:        "0.0.0.0",
			HostKeyPath:        "/etc/softkeys/host_key",
			AuthorizedKeysPath: "/etc/softkeys/authorized_keys",
			Whitelist:          []string{},
			WhitelistOnly:      true,
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
			LogFile:  "",
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("softkeys")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/softkeys")

		// If running with sudo, try the real user's config
		if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
			viper.AddConfigPath(fmt.Sprintf("/home/%s/.config/softkeys", sudoUser))
		} else if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "softkeys"))
		}

		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		// A missing file, searched for or named with --config, means defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// settings flattens a config into viper keys so partial files merge field
// by field
func settings(c Config) map[string]interface{} {
	return map[string]interface{}{
		"timing.menu_show_ms":           c.Timing.MenuShowMs,
		"timing.menu_hide_ms":           c.Timing.MenuHideMs,
		"timing.delete_repeat_delay_ms": c.Timing.DeleteRepeatDelayMs,
		"timing.delete_repeat_rate_ms":  c.Timing.DeleteRepeatRateMs,
		"timing.caps_double_tap_ms":     c.Timing.CapsDoubleTapMs,
		"timing.space_double_tap_ms":    c.Timing.SpaceDoubleTapMs,

		"keyboards.catalog_path": c.Keyboards.CatalogPath,
		"keyboards.enabled":      c.Keyboards.Enabled,
		"keyboards.default":      c.Keyboards.Default,
		"keyboards.input_type":   c.Keyboards.InputType,
		"keyboards.watch":        c.Keyboards.Watch,

		"engines.script_dir":        c.Engines.ScriptDir,
		"engines.max_load_attempts": c.Engines.MaxLoadAttempts,
		"engines.max_pending_keys":  c.Engines.MaxPendingKeys,
		"engines.load_timeout_ms":   c.Engines.LoadTimeoutMs,

		"sink.backend":     c.Sink.Backend,
		"sink.device_path": c.Sink.DevicePath,
		"sink.device_name": c.Sink.DeviceName,

		"bridge.listen_address": c.Bridge.ListenAddress,
		"bridge.path":           c.Bridge.Path,

		"ssh.enabled":              c.SSH.Enabled,
		"ssh.port":                 c.SSH.Port,
		"ssh.bind_address":         c.SSH.BindAddress,
		"ssh.host_key_path":        c.SSH.HostKeyPath,
		"ssh.authorized_keys_path": c.SSH.AuthorizedKeysPath,
		"ssh.whitelist":            c.SSH.Whitelist,
		"ssh.whitelist_only":       c.SSH.WhitelistOnly,

		"logging.log_level": c.Logging.LogLevel,
		"logging.log_file":  c.Logging.LogFile,
	}
}

func setDefaults() {
	for key, value := range settings(DefaultConfig) {
		viper.SetDefault(key, value)
	}
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Update replaces the whole configuration and saves it
func Update(c Config) error {
	for key, value := range settings(c) {
		viper.Set(key, value)
	}
	cfg = &c
	return Save()
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if os.Getuid() == 0 || os.Getenv("SUDO_USER") != "" {
		return "/etc/softkeys/softkeys.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/softkeys/softkeys.toml"
	}

	return filepath.Join(home, ".config", "softkeys", "softkeys.toml")
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ControllerConfig converts the file settings into controller settings
func (c *Config) ControllerConfig() controller.Config {
	return controller.Config{
		MenuShowDelay:        ms(c.Timing.MenuShowMs),
		MenuHideDelay:        ms(c.Timing.MenuHideMs),
		DeleteRepeatDelay:    ms(c.Timing.DeleteRepeatDelayMs),
		DeleteRepeatInterval: ms(c.Timing.DeleteRepeatRateMs),
		CapsDoubleTap:        ms(c.Timing.CapsDoubleTapMs),
		SpaceDoubleTap:       ms(c.Timing.SpaceDoubleTapMs),
		Keyboard:             c.Keyboards.Default,
		InputType:            c.Keyboards.InputType,
		Engines: engine.Options{
			MaxAttempts: c.Engines.MaxLoadAttempts,
			MaxPending:  c.Engines.MaxPendingKeys,
			LoadTimeout: ms(c.Engines.LoadTimeoutMs),
		},
	}
}

// AddSSHKeyToWhitelist adds an SSH key fingerprint to the whitelist
func AddSSHKeyToWhitelist(fingerprint string) error {
	cfg := Get()

	for _, fp := range cfg.SSH.Whitelist {
		if fp == fingerprint {
			return fmt.Errorf("key already whitelisted")
		}
	}

	cfg.SSH.Whitelist = append(cfg.SSH.Whitelist, fingerprint)
	viper.Set("ssh.whitelist", cfg.SSH.Whitelist)
	return Save()
}

// RemoveSSHKeyFromWhitelist removes an SSH key fingerprint from the whitelist
func RemoveSSHKeyFromWhitelist(fingerprint string) error {
	cfg := Get()

	for i, fp := range cfg.SSH.Whitelist {
		if fp == fingerprint {
			cfg.SSH.Whitelist = append(cfg.SSH.Whitelist[:i], cfg.SSH.Whitelist[i+1:]...)
			viper.Set("ssh.whitelist", cfg.SSH.Whitelist)
			return Save()
		}
	}

	return fmt.Errorf("key not found in whitelist")
}

// IsSSHKeyWhitelisted checks if an SSH key fingerprint is whitelisted
func IsSSHKeyWhitelisted(fingerprint string) bool {
	for _, fp := range Get().SSH.Whitelist {
		if fp == fingerprint {
			return true
		}
	}
	return false
}
