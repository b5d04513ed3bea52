// Package config loads application configuration from TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is configuration file looked up from working directory when no path is given.
const DefaultPath = "canxl.toml"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Decoder    DecoderConfig    `toml:"decoder"`
	Calculator CalculatorConfig `toml:"calculator"`
	Serial     SerialConfig     `toml:"serial"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
	// FragmentBaseURL is base URL footer and menu fragments are fetched from. Empty means fragments are read from
	// embedded static files.
	FragmentBaseURL string   `toml:"fragment_base_url"`
	ReadTimeout     Duration `toml:"read_timeout"`
}

type DecoderConfig struct {
	ClockMHz             float64 `toml:"clock_mhz"`
	DecodeReservedFields bool    `toml:"decode_reserved_fields"`
	DecodeLookups        bool    `toml:"decode_lookups"`
	Verbose              bool    `toml:"verbose"`
	// RegmapOverlays are HCL files with additional or replaced register definitions
	RegmapOverlays []string `toml:"regmap_overlays"`
}

// CalculatorConfig holds default bit-timing calculator parameters. Bitrates are in kbit/s, sample points in percent.
type CalculatorConfig struct {
	ClockMHz   float64 `toml:"clock_mhz"`
	BitrateArb float64 `toml:"bitrate_arb"`
	SPArb      float64 `toml:"sp_arb"`
	BitrateFD  float64 `toml:"bitrate_fd"`
	SPFD       float64 `toml:"sp_fd"`
	BitrateXL  float64 `toml:"bitrate_xl"`
	SPXL       float64 `toml:"sp_xl"`
}

type SerialConfig struct {
	Device string `toml:"device"`
	Baud   int    `toml:"baud"`
	// ReadTimeout ends serial dump reading when no data arrives for given duration
	ReadTimeout Duration `toml:"read_timeout"`
}

// Duration is time.Duration written in TOML as string (`5s`, `250ms`).
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns configuration used when no configuration file exists.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Listen:      ":8080",
			ReadTimeout: Duration{10 * time.Second},
		},
		Decoder: DecoderConfig{DecodeLookups: true},
		Calculator: CalculatorConfig{
			ClockMHz:   80,
			BitrateArb: 500,
			SPArb:      80,
			BitrateFD:  2000,
			SPFD:       80,
			BitrateXL:  10000,
			SPXL:       75,
		},
		Serial: SerialConfig{
			Baud:        115200,
			ReadTimeout: Duration{2 * time.Second},
		},
	}
}

// Load reads configuration file over defaults. Missing file at DefaultPath is not an error, explicitly given path
// must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: %s: unknown key %v", ErrInvalidConfig, path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration values.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen can not be empty", ErrInvalidConfig)
	}
	if c.Server.ReadTimeout.Duration < 0 {
		return fmt.Errorf("%w: server.read_timeout can not be negative", ErrInvalidConfig)
	}
	if c.Decoder.ClockMHz < 0 {
		return fmt.Errorf("%w: decoder.clock_mhz can not be negative", ErrInvalidConfig)
	}
	if c.Calculator.ClockMHz <= 0 {
		return fmt.Errorf("%w: calculator.clock_mhz must be positive", ErrInvalidConfig)
	}
	for name, sp := range map[string]float64{"sp_arb": c.Calculator.SPArb, "sp_fd": c.Calculator.SPFD, "sp_xl": c.Calculator.SPXL} {
		if sp <= 0 || sp >= 100 {
			return fmt.Errorf("%w: calculator.%v must be between 0 and 100", ErrInvalidConfig, name)
		}
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
	}
	// serial dump reading ends only on read timeout
	if c.Serial.ReadTimeout.Duration <= 0 {
		return fmt.Errorf("%w: serial.read_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
