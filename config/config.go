package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"shadowrelay/streamcipher"
)

// Config covers both deployment modes (spec §1): a server listens for
// encrypted connections and dials the plaintext destination named in
// each header; a tunnel listens for plaintext connections and encrypts
// them toward a fixed remote server. Which fields apply depends on Mode.
type Config struct {
	Mode ModeConfig `yaml:"mode"`

	Crypto  CryptoConfig  `yaml:"crypto"`
	Network NetworkConfig `yaml:"network"`
	ACL     ACLConfig     `yaml:"acl"`
	Manager ManagerConfig `yaml:"manager"`
	Logs    LogsConfig    `yaml:"logs"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ModeConfig selects server vs tunnel; exactly one binary reads each.
type ModeConfig struct {
	// Tunnel, when true, runs the fixed-destination tunnel state machine
	// instead of the address-header-parsing server one.
	Tunnel bool `yaml:"tunnel"`
}

type CryptoConfig struct {
	Password string `yaml:"password"`
	Cipher   string `yaml:"cipher"`
	// OneTimeAuth enables header + chunk HMAC-SHA1 authentication
	// (spec §4.C).
	OneTimeAuth bool `yaml:"one_time_auth"`
}

type NetworkConfig struct {
	// ListenAddr is where this process accepts connections: encrypted
	// client connections for a server, plaintext local connections for
	// a tunnel.
	ListenAddr string `yaml:"listen_addr"`
	// RemoteAddr is the tunnel's fixed upstream Shadowsocks server;
	// unused in server mode.
	RemoteAddr string `yaml:"remote_addr"`
	// TunnelDest is the tunnel's fixed destination header, e.g.
	// "8.8.8.8:53" — what every tunneled connection is addressed to.
	TunnelDest string `yaml:"tunnel_dest"`
	// IdleTimeout closes a spliced connection after this much
	// inactivity on the client side (spec §4.D).
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type ACLConfig struct {
	Path string `yaml:"path"`
}

type ManagerConfig struct {
	// Addr is the UDP manager-channel address for traffic reporting
	// (spec §6); empty disables reporting.
	Addr string `yaml:"addr"`
}

type LogsConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type LimitsConfig struct {
	// NoFile is the requested RLIMIT_NOFILE soft limit (spec §5).
	NoFile uint64 `yaml:"nofile"`
}

// Load reads and parses a YAML config file, pre-populating the same
// operational defaults the reference deployment ships with before the
// file's own values override them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Crypto: CryptoConfig{
			Cipher: "aes-256-cfb",
		},
		Network: NetworkConfig{
			ListenAddr:  ":8388",
			IdleTimeout: 300 * time.Second,
		},
		Logs: LogsConfig{
			Path:          "/var/log/shadowrelay",
			RetentionDays: 14,
		},
		Limits: LimitsConfig{
			NoFile: 51200,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Crypto.Password == "" {
		return fmt.Errorf("config: crypto.password is required")
	}
	if _, ok := streamcipher.Lookup(c.Crypto.Cipher); !ok {
		return fmt.Errorf("config: unknown cipher %q, supported: %v", c.Crypto.Cipher, streamcipher.Names())
	}
	if c.Network.ListenAddr == "" {
		return fmt.Errorf("config: network.listen_addr is required")
	}
	if c.Mode.Tunnel {
		if c.Network.RemoteAddr == "" {
			return fmt.Errorf("config: network.remote_addr is required in tunnel mode")
		}
		if c.Network.TunnelDest == "" {
			return fmt.Errorf("config: network.tunnel_dest is required in tunnel mode")
		}
	}
	return nil
}
