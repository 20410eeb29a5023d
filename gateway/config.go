package gateway

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// SerialOptions mirrors the original's serialport settings struct.
// FlowControl is read from the config but not applied when the port is
// opened: SerialSource sets only baud rate, data bits, parity and stop
// bits.
type SerialOptions struct {
	BaudRate    int    `toml:"baud_rate"`
	DataBits    int    `toml:"data_bits"`    // one of 5,6,7,8
	StopBits    int    `toml:"stop_bits"`    // one of 1,2
	Parity      string `toml:"parity"`       // none|odd|even
	FlowControl string `toml:"flow_control"` // none|software|hardware
}

// SourceConfig is the tagged-union "source" table.
type SourceConfig struct {
	Type    string `toml:"type"` // serial|file|websocket
	Path    string `toml:"path"`
	Version int    `toml:"version"`

	BaudRate    int    `toml:"baud_rate"`
	DataBits    int    `toml:"data_bits"`
	StopBits    int    `toml:"stop_bits"`
	Parity      string `toml:"parity"`
	FlowControl string `toml:"flow_control"`

	Repeat bool   `toml:"repeat"`
	URL    string `toml:"url"`
}

// Serial builds the SerialOptions a serial source needs from this
// config's flat, TOML-decoded baud/data/stop/parity fields.
func (s SourceConfig) Serial() SerialOptions {
	return SerialOptions{
		BaudRate:    s.BaudRate,
		DataBits:    s.DataBits,
		StopBits:    s.StopBits,
		Parity:      s.Parity,
		FlowControl: s.FlowControl,
	}
}

// DestinationConfig is one entry of the "destination" array.
type DestinationConfig struct {
	Type string `toml:"type"` // http|file|stdout|websocket

	Endpoint         string   `toml:"endpoint"`
	HTTPProxy        string   `toml:"http_proxy"`
	HTTPSProxy       string   `toml:"https_proxy"`
	IdentityCert     string   `toml:"identity_cert"`
	IdentityCertPass string   `toml:"identity_cert_pass"`
	RootCerts        []string `toml:"root_certs"`
	TimeoutMs        int64    `toml:"timeout_ms"`
	RetryAttempts    uint64   `toml:"retry_attempts"`
	QueueRateMs      uint64   `toml:"queue_rate_ms"`

	Path   string `toml:"path"`
	Append bool   `toml:"append"`
}

// Timeout returns the configured HTTP timeout, defaulting to 30s.
func (d DestinationConfig) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// AppConfig is the gateway's full config.toml shape.
type AppConfig struct {
	Log         string              `toml:"log"`
	Source      SourceConfig        `toml:"source"`
	Destination []DestinationConfig `toml:"destination"`
}

// DefaultConfig mirrors base_station's default_config(): a serial
// source at COM1/921600-8-N-1 v1, logging at "warn", writing to stdout.
func DefaultConfig() AppConfig {
	return AppConfig{
		Log: "warn",
		Source: SourceConfig{
			Type:        "serial",
			Path:        "COM1",
			Version:     1,
			BaudRate:    921600,
			DataBits:    8,
			StopBits:    1,
			Parity:      "none",
			FlowControl: "none",
		},
		Destination: []DestinationConfig{{Type: "stdout"}},
	}
}

// LoadConfig reads path as TOML; if the file is absent, it writes
// DefaultConfig there and returns it ("if absent, write
// defaults and continue"). The BASE_STATION_LOG environment variable
// overrides the configured log filter.
func LoadConfig(path string) (AppConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := WriteConfig(path, cfg); err != nil {
			return AppConfig{}, err
		}
		return applyEnvOverrides(cfg), nil
	}

	var cfg AppConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("gateway: decode config: %w", err)
	}
	if cfg.Log == "" {
		cfg.Log = "warn"
	}
	for i := range cfg.Destination {
		if cfg.Destination[i].Type == "http" {
			if cfg.Destination[i].RetryAttempts == 0 {
				cfg.Destination[i].RetryAttempts = 1
			}
			if cfg.Destination[i].QueueRateMs == 0 {
				cfg.Destination[i].QueueRateMs = 100
			}
		}
	}
	return applyEnvOverrides(cfg), nil
}

func applyEnvOverrides(cfg AppConfig) AppConfig {
	if v := os.Getenv("BASE_STATION_LOG"); v != "" {
		cfg.Log = v
	}
	return cfg
}

// WriteConfig pretty-prints cfg as TOML to path; LoadConfig uses it to
// write the defaults when the file is absent. The gateway binary's
// -config flag names the file to load; it has no flag that prints the
// default configuration.
func WriteConfig(path string, cfg AppConfig) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
