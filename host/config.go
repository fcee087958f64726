package host

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the connection parameters a Client loads from disk. It
// configures the host, never the engine: engine.Connection is always
// built from plain Go values, not from this struct directly.
type Config struct {
	Broker struct {
		URL             string `yaml:"url"`
		ClientID        string `yaml:"client_id"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		KeepAliveSecs   int    `yaml:"keepalive_secs"`
		ProtocolVersion int    `yaml:"protocol_version"`
		CleanStart      *bool  `yaml:"clean_start"`
	} `yaml:"broker"`

	Session struct {
		OfflinePublish    bool   `yaml:"offline_publish"`
		TopicAliasMaximum uint16 `yaml:"topic_alias_maximum"`
		ReceiveMaximum    uint16 `yaml:"receive_maximum"`
		MaxPacketSize     uint32 `yaml:"max_packet_size"`
		StoreDir          string `yaml:"store_dir"`
	} `yaml:"session"`

	Reconnect struct {
		Enabled       *bool `yaml:"enabled"`
		InitialMs     int   `yaml:"initial_ms"`
		MaxMs         int   `yaml:"max_ms"`
		ConnectTimeMs int   `yaml:"connect_timeout_ms"`
	} `yaml:"reconnect"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host: read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("host: parse config: %w", err)
	}
	if c.Broker.KeepAliveSecs == 0 {
		c.Broker.KeepAliveSecs = 60
	}
	if c.Reconnect.InitialMs == 0 {
		c.Reconnect.InitialMs = 1000
	}
	if c.Reconnect.MaxMs == 0 {
		c.Reconnect.MaxMs = 30000
	}
	return &c, nil
}

// cleanStart reports the configured clean-start flag, defaulting to true
// when unset (matching the teacher's own CleanSession default).
func (c *Config) cleanStart() bool {
	if c.Broker.CleanStart == nil {
		return true
	}
	return *c.Broker.CleanStart
}

func (c *Config) reconnectEnabled() bool {
	if c.Reconnect.Enabled == nil {
		return true
	}
	return *c.Reconnect.Enabled
}
