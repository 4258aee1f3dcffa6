package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lohmuller/even-g1-go-sdk/pkg/protocol"
)

// EngineConfig holds the tunable, deployment-specific knobs for a
// protocol.Engine and its bench USB bridge. Loaded the same way the
// teacher's DeviceConfig is: a .env file in the project root, then
// environment variables override.
type EngineConfig struct {
	DefaultDeadlineMS int
	USBVendorID       uint16
	USBProductID      uint16
}

var (
	engineConfig *EngineConfig
	configLoaded bool
)

// LoadEngineConfig loads and memoizes the engine configuration.
func LoadEngineConfig() (*EngineConfig, error) {
	if engineConfig != nil && configLoaded {
		return engineConfig, nil
	}

	cfg := &EngineConfig{DefaultDeadlineMS: 1000, USBVendorID: 0x2EB7, USBProductID: 0x0001}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv("GLASSES_DEFAULT_DEADLINE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultDeadlineMS = n
		}
	}
	if v := os.Getenv("GLASSES_USB_VENDOR_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.USBVendorID = uint16(n)
		}
	}
	if v := os.Getenv("GLASSES_USB_PRODUCT_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 16); err == nil {
			cfg.USBProductID = uint16(n)
		}
	}

	engineConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *EngineConfig) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "GLASSES_DEFAULT_DEADLINE_MS":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.DefaultDeadlineMS = n
			}
		case "GLASSES_USB_VENDOR_ID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.USBVendorID = uint16(n)
			}
		case "GLASSES_USB_PRODUCT_ID":
			if n, err := strconv.ParseUint(value, 0, 16); err == nil {
				cfg.USBProductID = uint16(n)
			}
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// EngineOptions translates the loaded configuration into
// protocol.Options for NewEngine.
func (c *EngineConfig) EngineOptions() protocol.Options {
	opts := protocol.DefaultOptions()
	opts.DefaultDeadline = time.Duration(c.DefaultDeadlineMS) * time.Millisecond
	return opts
}
