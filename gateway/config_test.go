package gateway

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigWritesDefaultsWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Source.Type != "serial" || cfg.Source.BaudRate != 921600 {
		t.Fatalf("got %+v, want DefaultConfig()'s serial/921600", cfg.Source)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config.toml to be written: %v", err)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Source.Path = "/dev/ttyUSB0"
	cfg.Source.BaudRate = 115200
	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Source.Path != "/dev/ttyUSB0" || got.Source.BaudRate != 115200 {
		t.Fatalf("got %+v, want path=/dev/ttyUSB0 baud=115200", got.Source)
	}
}

func TestSourceConfigSerialDerivesFromFlatFields(t *testing.T) {
	sc := SourceConfig{
		BaudRate:    57600,
		DataBits:    7,
		StopBits:    2,
		Parity:      "even",
		FlowControl: "hardware",
	}
	opts := sc.Serial()
	want := SerialOptions{BaudRate: 57600, DataBits: 7, StopBits: 2, Parity: "even", FlowControl: "hardware"}
	if opts != want {
		t.Fatalf("Serial() = %+v, want %+v", opts, want)
	}
}
