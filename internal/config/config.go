// Package config loads the single session configuration file into
// typed per-worker sections, grounded on the teacher's own
// viper.UnmarshalKey usage (rpc_server.go's RunRPCServer reads
// "simpulse", "triangle", "lancero", "status", "writing" keys off a
// shared viper instance already pointed at a config file). Here one
// Load call does the SetConfigFile/ReadInConfig step once, then each
// worker resolves its own opaque section with UnmarshalKey.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SessionConfig is the top-level document: fixed fields every session
// needs, plus one opaque section per worker kind the workers
// themselves decode.
type SessionConfig struct {
	SessionName   string        `mapstructure:"session_name"`
	OutputRoot    string        `mapstructure:"output_root"`
	RPCAddr       string        `mapstructure:"rpc_addr"`
	WebsocketAddr string        `mapstructure:"websocket_addr"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	LogLevel      string        `mapstructure:"log_level"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	TickPeriod    time.Duration `mapstructure:"tick_period"`
	PhaseLeadTime time.Duration `mapstructure:"phase_lead_time"`
	Compression   CompressionConfig `mapstructure:"compression"`
	Attributes    []AttributeConfig `mapstructure:"attributes"`
	LiveEndpoint  string            `mapstructure:"live_endpoint"`
	Triggers      []TriggerConfig   `mapstructure:"triggers"`
}

// CallbackConfig names one (target worker, RPC key) pair a fired
// trigger entry is delivered to.
type CallbackConfig struct {
	Target string `mapstructure:"target"`
	Key    string `mapstructure:"key"`
}

// TriggerConfig declares one edge/level trigger over a named
// attribute, evaluated at the tail of Worker's tick loop.
type TriggerConfig struct {
	Name      string           `mapstructure:"name"`
	Worker    string           `mapstructure:"worker"`
	Attribute string           `mapstructure:"attribute"`
	Condition string           `mapstructure:"condition"` // "level_high", "rising_edge", "falling_edge"
	Callbacks []CallbackConfig `mapstructure:"callbacks"`
}

// CompressionConfig mirrors recorder.Config's shape for config-file
// decoding without internal/config importing internal/recorder.
type CompressionConfig struct {
	Mode    string `mapstructure:"mode"` // "none", "gzip", "lzf"
	Level   int    `mapstructure:"level"`
	Shuffle bool   `mapstructure:"shuffle"`
}

// AttributeConfig names one attribute the recorder should capture and
// the worker kind expected to produce it, mirroring recorder.AttributeSpec
// without an import cycle (the top-level attributes list in the session file).
type AttributeConfig struct {
	Name   string `mapstructure:"name"`
	Worker string `mapstructure:"worker"`
}

// defaults applied before decode, matching fields a session file may
// reasonably omit.
func defaults() SessionConfig {
	return SessionConfig{
		SessionName:   "session",
		RPCAddr:       ":5500",
		WebsocketAddr: ":5501",
		MetricsAddr:   ":5502",
		LogLevel:      "info",
		ShutdownGrace: 5 * time.Second,
		TickPeriod:    10 * time.Millisecond,
		PhaseLeadTime: 100 * time.Millisecond,
	}
}

// Load reads path (any format viper supports by extension: yaml, toml,
// json) into v and returns the decoded SessionConfig. A load failure
// here is the exit-code-1 fatal path of spec.md §7 — the caller should
// treat a non-nil error as unrecoverable.
func Load(path string) (SessionConfig, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return SessionConfig{}, nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return SessionConfig{}, nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	if cfg.SessionName == "" {
		return SessionConfig{}, nil, fmt.Errorf("config: session_name is required")
	}
	if cfg.OutputRoot == "" {
		return SessionConfig{}, nil, fmt.Errorf("config: output_root is required")
	}
	return cfg, v, nil
}

// WorkerSection decodes the opaque per-worker config block named
// section (e.g. "camera", "display") into dst, matching the teacher's
// viper.UnmarshalKey("simpulse", &spc) pattern. Returns nil with dst
// untouched if the section is absent, since not every worker kind
// needs configuration.
func WorkerSection(v *viper.Viper, section string, dst any) error {
	if !v.IsSet(section) {
		return nil
	}
	if err := v.UnmarshalKey(section, dst); err != nil {
		return fmt.Errorf("config: decode section %q: %w", section, err)
	}
	return nil
}
