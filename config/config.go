package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	RelayModeFanout = "fanout"
	RelayModePair   = "pair"
)

type Config struct {
	Server    `yaml:"server"`
	Devices   []string `yaml:"devices"`
	Relay     `yaml:"relay"`
	WebSocket `yaml:"websocket"`
}

type Server struct {
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	PlaceholderPath string `yaml:"placeholder_path"`
}

type Relay struct {
	Mode string `yaml:"mode"`
}

type WebSocket struct {
	MaxMessageSize      int64 `yaml:"max_message_size"`
	WriteTimeoutSeconds int   `yaml:"write_timeout_seconds"`
	PongTimeoutSeconds  int   `yaml:"pong_timeout_seconds"`
}

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedRoutes are first path segments already served by the HTTP API.
var reservedRoutes = map[string]bool{
	"debug":            true,
	"health":           true,
	"stats":            true,
	"get_latest_frame": true,
	"upload_frame":     true,
	"clear_frames":     true,
}

func Default() Config {
	return Config{
		Server: Server{
			Port:           "8000",
			LogLevel:       "info",
			MaxUploadBytes: 10 << 20,
		},
		Devices: []string{"device1", "device2"},
		Relay:   Relay{Mode: RelayModeFanout},
		WebSocket: WebSocket{
			MaxMessageSize:      1 << 20,
			WriteTimeoutSeconds: 10,
			PongTimeoutSeconds:  60,
		},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Port = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("PLACEHOLDER_PATH"); ok {
		c.PlaceholderPath = v
	}
	if v, ok := lookup("DEVICES"); ok && v != "" {
		c.Devices = splitList(v)
	}
	if v, ok := lookup("RELAY_MODE"); ok && v != "" {
		c.Relay.Mode = v
	}
	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := lookup("WS_MAX_MESSAGE_SIZE"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("WS_MAX_MESSAGE_SIZE: %w", err)
		}
		c.WebSocket.MaxMessageSize = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if len(c.Devices) < 2 {
		return errors.New("config: at least two devices are required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for _, id := range c.Devices {
		if id == "" {
			return errors.New("config: empty device id")
		}
		if !deviceIDPattern.MatchString(id) {
			return fmt.Errorf("config: device id %q may only contain letters, digits, '_' and '-'", id)
		}
		if reservedRoutes[id] {
			return fmt.Errorf("config: device id %q collides with a built-in route", id)
		}
		if seen[id] {
			return fmt.Errorf("config: duplicate device id %q", id)
		}
		seen[id] = true
	}
	// each device also owns /<id>ws
	for _, id := range c.Devices {
		if seen[id+"ws"] {
			return fmt.Errorf("config: device id %q collides with the socket route of %q", id+"ws", id)
		}
	}
	switch c.Relay.Mode {
	case RelayModeFanout, RelayModePair:
	default:
		return fmt.Errorf("config: unknown relay mode %q", c.Relay.Mode)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: max_upload_bytes must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("config: websocket max_message_size must be positive")
	}
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return errors.New("config: websocket write_timeout_seconds must be positive")
	}
	if c.WebSocket.PongTimeoutSeconds <= 0 {
		return errors.New("config: websocket pong_timeout_seconds must be positive")
	}
	return nil
}
