package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/ulfmagnetics/trix-server/pkg/globals"
)

// Settings holds all server configuration, persisted as TOML
type Settings struct {
	DeviceID   string `toml:"device_id"`
	ListenAddr string `toml:"listen_addr"`
	APIKey     string `toml:"api_key"`
	LogLevel   string `toml:"log_level"`

	Panel PanelSettings `toml:"panel"`

	CrashLogPath     string `toml:"crash_log_path"`
	CrashCounterPath string `toml:"crash_counter_path"`

	FailureThreshold int `toml:"failure_threshold"`
	FetchTimeoutSecs int `toml:"fetch_timeout_secs"`
}

// PanelSettings describes the attached matrix panel
type PanelSettings struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	SPI    string `toml:"spi"`    // SPI port name, e.g. "SPI0.0"
	DCPin  string `toml:"dc_pin"` // Data/Command GPIO
	RSTPin string `toml:"rst_pin"`
	Fake   bool   `toml:"fake"` // in-memory panel for headless operation
}

type Config struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

var instance *Config
var once sync.Once

// Init initializes the config system and creates settings.toml if it doesn't exist
func Init() error {
	return InitPath(globals.SettingsPath)
}

// InitPath is Init with an explicit settings file location
func InitPath(path string) error {
	var err error
	once.Do(func() {
		instance, err = Open(path)
	})
	return err
}

// Open loads (or creates) a settings file without touching the singleton
func Open(path string) (*Config, error) {
	c := &Config{path: path}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not initialized - call Init() first")
	}
	return instance
}

// Defaults returns the built-in settings used when no file exists
func Defaults() Settings {
	return Settings{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		Panel:            PanelSettings{Width: 64, Height: 32, SPI: "SPI0.0", DCPin: "GPIO25", RSTPin: "GPIO24"},
		CrashLogPath:     globals.CrashLogPath,
		CrashCounterPath: globals.CrashCounterPath,
		FailureThreshold: 3,
		FetchTimeoutSecs: 15,
	}
}

func (c *Config) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return c.createInitialSettings()
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	c.settings = Defaults()
	if err := toml.Unmarshal(data, &c.settings); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}

	// Older settings files predate the device ID
	if c.settings.DeviceID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate device ID: %w", err)
		}
		c.settings.DeviceID = id.String()
		return c.save()
	}

	return nil
}

func (c *Config) createInitialSettings() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate device ID: %w", err)
	}

	c.settings = Defaults()
	c.settings.DeviceID = id.String()

	return c.save()
}

func (c *Config) save() error {
	data, err := toml.Marshal(c.settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}

// Settings returns a copy of the current settings
func (c *Config) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Update applies fn to the settings and persists the result
func (c *Config) Update(fn func(*Settings)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(&c.settings)
	return c.save()
}
