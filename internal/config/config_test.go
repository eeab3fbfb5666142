package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func useConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "softkeys.toml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	viper.Reset()
	SetConfigPath(path)
	t.Cleanup(func() {
		SetConfigPath("")
		Set(nil)
		viper.Reset()
	})
	return path
}

func TestInit(t *testing.T) {
	t.Run("partial file merges with defaults", func(t *testing.T) {
		useConfigFile(t, `[timing]
menu_show_ms = 900

[keyboards]
enabled = ["fr", "en"]
default = "fr"

[sink]
backend = "uinput"`)

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		c := Get()
		if c.Timing.MenuShowMs != 900 {
			t.Errorf("Expected menu_show_ms 900, got %d", c.Timing.MenuShowMs)
		}
		if c.Timing.MenuHideMs != 500 {
			t.Errorf("Expected default menu_hide_ms 500, got %d", c.Timing.MenuHideMs)
		}
		if strings.Join(c.Keyboards.Enabled, ",") != "fr,en" {
			t.Errorf("Unexpected enabled keyboards: %v", c.Keyboards.Enabled)
		}
		if c.Sink.Backend != SinkUInput {
			t.Errorf("Expected uinput sink, got %s", c.Sink.Backend)
		}
		if c.Engines.MaxLoadAttempts != 3 {
			t.Errorf("Expected default max_load_attempts 3, got %d", c.Engines.MaxLoadAttempts)
		}
		if c.Bridge.Path != "/ws" {
			t.Errorf("Expected default bridge path /ws, got %s", c.Bridge.Path)
		}
	})

	t.Run("named file that does not exist yet uses defaults", func(t *testing.T) {
		path := useConfigFile(t, "")

		if err := Init(); err != nil {
			t.Fatalf("Init() failed for missing %s: %v", path, err)
		}
		if Get().Timing.MenuShowMs != 700 {
			t.Errorf("Expected default menu_show_ms 700, got %d", Get().Timing.MenuShowMs)
		}
		if GetConfigPath() != path {
			t.Errorf("Expected config path %s, got %s", path, GetConfigPath())
		}
	})

	t.Run("invalid TOML is an error", func(t *testing.T) {
		useConfigFile(t, `[timing
menu_show_ms = 900`)

		if err := Init(); err == nil {
			t.Error("Expected an error for invalid TOML")
		}
	})
}

func TestGetWithoutInit(t *testing.T) {
	Set(nil)
	if Get() != &DefaultConfig {
		t.Error("Get() should return the defaults before Init()")
	}
}

func TestControllerConfig(t *testing.T) {
	c := DefaultConfig
	c.Keyboards.Default = "fr"
	cc := c.ControllerConfig()

	if cc.MenuShowDelay != 700*time.Millisecond || cc.MenuHideDelay != 500*time.Millisecond {
		t.Errorf("Unexpected menu delays: %v %v", cc.MenuShowDelay, cc.MenuHideDelay)
	}
	if cc.DeleteRepeatDelay != 700*time.Millisecond || cc.DeleteRepeatInterval != 100*time.Millisecond {
		t.Errorf("Unexpected delete repeat: %v %v", cc.DeleteRepeatDelay, cc.DeleteRepeatInterval)
	}
	if cc.CapsDoubleTap != 450*time.Millisecond || cc.SpaceDoubleTap != 700*time.Millisecond {
		t.Errorf("Unexpected tap windows: %v %v", cc.CapsDoubleTap, cc.SpaceDoubleTap)
	}
	if cc.Keyboard != "fr" || cc.InputType != "text" {
		t.Errorf("Unexpected startup state: %q %q", cc.Keyboard, cc.InputType)
	}
	if cc.Engines.MaxAttempts != 3 || cc.Engines.MaxPending != 64 || cc.Engines.LoadTimeout != 10*time.Second {
		t.Errorf("Unexpected engine options: %+v", cc.Engines)
	}
}

func TestUpdateSaves(t *testing.T) {
	path := useConfigFile(t, "")

	c := DefaultConfig
	c.Keyboards.Default = "compose"
	c.SSH.Whitelist = []string{"SHA256:abc"}
	if err := Update(c); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config was not written: %v", err)
	}
	if !strings.Contains(string(data), "compose") {
		t.Errorf("saved config misses the default keyboard:\n%s", data)
	}

	viper.Reset()
	if err := Init(); err != nil {
		t.Fatalf("Init() after save failed: %v", err)
	}
	if Get().Keyboards.Default != "compose" {
		t.Errorf("Expected compose after reload, got %q", Get().Keyboards.Default)
	}
	if !IsSSHKeyWhitelisted("SHA256:abc") {
		t.Error("whitelist did not survive the reload")
	}
}

func TestWhitelist(t *testing.T) {
	useConfigFile(t, "")
	c := DefaultConfig
	c.SSH.Whitelist = nil
	Set(&c)

	if err := AddSSHKeyToWhitelist("SHA256:one"); err != nil {
		t.Fatalf("AddSSHKeyToWhitelist() failed: %v", err)
	}
	if err := AddSSHKeyToWhitelist("SHA256:one"); err == nil {
		t.Error("Expected duplicate key to be rejected")
	}
	if !IsSSHKeyWhitelisted("SHA256:one") {
		t.Error("key should be whitelisted")
	}
	if err := RemoveSSHKeyFromWhitelist("SHA256:one"); err != nil {
		t.Fatalf("RemoveSSHKeyFromWhitelist() failed: %v", err)
	}
	if err := RemoveSSHKeyFromWhitelist("SHA256:one"); err == nil {
		t.Error("Expected removing a missing key to fail")
	}
	if IsSSHKeyWhitelisted("SHA256:one") {
		t.Error("key should no longer be whitelisted")
	}
}

func TestConfigPathResolution(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		SetConfigPath("/tmp/custom.toml")
		defer SetConfigPath("")
		viper.Reset()

		if got := GetConfigPath(); got != "/tmp/custom.toml" {
			t.Errorf("Expected override path, got %s", got)
		}
	})

	t.Run("normal user", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("running as root")
		}
		originalHome := os.Getenv("HOME")
		originalSudo, hadSudo := os.LookupEnv("SUDO_USER")
		os.Setenv("HOME", "/home/testuser")
		os.Unsetenv("SUDO_USER")
		defer func() {
			os.Setenv("HOME", originalHome)
			if hadSudo {
				os.Setenv("SUDO_USER", originalSudo)
			}
		}()
		viper.Reset()

		if got := GetConfigPath(); got != "/home/testuser/.config/softkeys/softkeys.toml" {
			t.Errorf("Unexpected path %s", got)
		}
	})

	t.Run("running with sudo", func(t *testing.T) {
		originalSudo, hadSudo := os.LookupEnv("SUDO_USER")
		os.Setenv("SUDO_USER", "testuser")
		defer func() {
			if hadSudo {
				os.Setenv("SUDO_USER", originalSudo)
			} else {
				os.Unsetenv("SUDO_USER")
			}
		}()
		viper.Reset()

		if got := GetConfigPath(); got != "/etc/softkeys/softkeys.toml" {
			t.Errorf("Unexpected path %s", got)
		}
	})
}
