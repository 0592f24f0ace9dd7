// Package config handles TOML configuration loading with sensible defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Build modes select which mode-specific arguments a process receives.
const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

// Config is the top-level configuration for procwarden.
type Config struct {
	Supervisor SupervisorConfig `toml:"supervisor"`
	Processes  []ProcessConfig  `toml:"process"`
	Log        LogConfig        `toml:"log"`
	DB         DBConfig         `toml:"db"`
	UI         UIConfig         `toml:"ui"`
}

// SupervisorConfig controls where binaries live and how logs are batched.
type SupervisorConfig struct {
	Mode          string   `toml:"mode"`
	BaseDir       string   `toml:"base_dir"`
	WorkDir       string   `toml:"work_dir"`
	FlushInterval Duration `toml:"flush_interval"`
}

// ProcessConfig describes one supervised daemon.
type ProcessConfig struct {
	Name     string   `toml:"name"`
	Args     []string `toml:"args"`
	DevArgs  []string `toml:"dev_args"`
	ProdArgs []string `toml:"prod_args"`
}

// LogConfig controls console logging and the diagnostic log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DBConfig controls the diagnostic history database.
type DBConfig struct {
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"`
}

// UIConfig controls the presentation-layer endpoint.
type UIConfig struct {
	Listen string `toml:"listen"`
}

// Duration wraps time.Duration for TOML string parsing (e.g. "2s", "720h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults, including the lnd/btcd
// process table of the desktop wallet.
func Default() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			Mode:          ModeProd,
			FlushInterval: Duration{2 * time.Second},
		},
		Processes: []ProcessConfig{
			{
				Name: "lnd",
				Args: []string{
					"--bitcoin.active",
					"--bitcoin.rpchost=localhost",
					"--bitcoin.rpcuser=kek",
					"--bitcoin.rpcpass=kek",
					"--debuglevel=debug",
					"--debughtlc",
				},
				DevArgs:  []string{"--bitcoin.simnet"},
				ProdArgs: []string{"--bitcoin.testnet"},
			},
			{
				Name: "btcd",
				Args: []string{
					"--rpcuser=kek",
					"--rpcpass=kek",
					"--txindex",
				},
				DevArgs:  []string{"--simnet", "--miningaddr=4NyWssGkW6Nbwj3nXrJU54U2ijHgWaKZ1N19w"},
				ProdArgs: []string{"--testnet"},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
		DB: DBConfig{
			Retention: Duration{30 * 24 * time.Hour},
		},
		UI: UIConfig{
			Listen: "127.0.0.1:4152",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "procwarden", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// A file that declares its own process table replaces the defaults
	// rather than merging into them.
	defaults := cfg.Processes
	cfg.Processes = nil
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if !md.IsDefined("process") {
		cfg.Processes = defaults
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports configuration errors that would make supervision
// impossible.
func (c *Config) Validate() error {
	switch c.Supervisor.Mode {
	case ModeDev, ModeProd:
	default:
		return fmt.Errorf("supervisor.mode must be %q or %q, got %q", ModeDev, ModeProd, c.Supervisor.Mode)
	}
	if c.Supervisor.FlushInterval.Duration <= 0 {
		return fmt.Errorf("supervisor.flush_interval must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Processes))
	for i, p := range c.Processes {
		if p.Name == "" {
			return fmt.Errorf("process[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("process %q declared twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// LogLevel returns the console level named by log.level ("debug", "info",
// "warn" or "error", optionally with an offset such as "info+2"). Empty means
// info.
func (c *Config) LogLevel() (slog.Level, error) {
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// BaseDir returns the directory holding one subdirectory of binaries per
// platform. Defaults to "bin" next to the running executable.
func (c *Config) BaseDir() string {
	if c.Supervisor.BaseDir != "" {
		return c.Supervisor.BaseDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "bin"
	}
	return filepath.Join(filepath.Dir(exe), "bin")
}

// WorkDir returns the working directory for launched children.
func (c *Config) WorkDir() string {
	if c.Supervisor.WorkDir != "" {
		return c.Supervisor.WorkDir
	}
	return c.BaseDir()
}

// LogFile returns the path of the diagnostic log file.
func (c *Config) LogFile(dataDir string) string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(dataDir, "procwarden.log")
}

// DBPath returns the path of the diagnostic history database.
func (c *Config) DBPath(dataDir string) string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	return filepath.Join(dataDir, "diagnostics.db")
}
