// Package config handles configuration loading, validation, and persistence
// for the Shardgate login server.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir   = "config"
	DefaultConfigFile  = "config.json"
	DefaultLoginPort   = 2593
	DefaultAPIPort     = 5000
	DefaultSessionKey  = 0x432F3FF0
	DefaultShardName   = "My Shard"
	DefaultReadBuffer  = 4096
	DefaultMaxPending  = 64 * 1024
	DefaultLoopbackIP  = "127.0.0.1"
	DefaultDatabaseDir = "data"
)

// Config is the root configuration structure for Shardgate.
type Config struct {
	mu   sync.RWMutex
	path string

	ShardData       ShardData       `json:"shard_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ShardData contains the login listener and the advertised shard.
type ShardData struct {
	// Listener
	ListenAddress string `json:"listen_address"`
	ListenPort    int    `json:"listen_port"`

	// Advertised shard (server list entry)
	ShardName    string `json:"shard_name"`
	ShardIndex   int    `json:"shard_index"`
	ShardAddress string `json:"shard_address"`
	PercentFull  int    `json:"percent_full"`
	Timezone     int    `json:"timezone"`

	// Redirect target (game server)
	RedirectAddress string `json:"redirect_address"`
	RedirectPort    int    `json:"redirect_port"`
	SessionKey      uint32 `json:"session_key"`

	// Post-login responses
	FeatureFlags       uint16       `json:"feature_flags"`
	CharacterListFlags uint32       `json:"character_list_flags"`
	Characters         []string     `json:"characters"`
	Cities             []CityConfig `json:"cities"`

	// Connection limits
	ReadBufferSize  int `json:"read_buffer_size"`
	MaxPendingBytes int `json:"max_pending_bytes"`
	MaxConnections  int `json:"max_connections"`
	IdleTimeoutSec  int `json:"idle_timeout_sec"`
}

// CityConfig is one starting location in the character list.
type CityConfig struct {
	Name     string `json:"name"`
	Building string `json:"building"`
}

// ApplicationData contains everything around the login listener.
type ApplicationData struct {
	Timers       TimerConfig        `json:"timers"`
	AuditCleaner AuditCleanerConfig `json:"audit_cleaner"`
	Storage      StorageConfig      `json:"storage"`
	Compression  CompressionConfig  `json:"compression"`
	API          APIConfig          `json:"api"`
	MQTT         MQTTConfig         `json:"mqtt"`
	Security     SecurityConfig     `json:"security"`
	Logging      LoggingConfig      `json:"logging"`
}

// TimerConfig holds background task intervals.
type TimerConfig struct {
	HeartbeatInterval int `json:"heartbeat_interval_sec"`
	StatsLogInterval  int `json:"stats_log_interval_sec"`
	IdleCheckInterval int `json:"idle_check_interval_sec"`
}

// AuditCleanerConfig holds login audit retention settings.
type AuditCleanerConfig struct {
	Enabled       bool   `json:"enabled"`
	CleanupTime   string `json:"cleanup_time"`
	RetentionDays int    `json:"retention_days"`
}

// StorageConfig holds the SQLite audit store settings.
type StorageConfig struct {
	Enabled      bool   `json:"enabled"`
	DatabasePath string `json:"database_path"`
}

// CompressionConfig holds Huffman payload cache settings.
type CompressionConfig struct {
	CacheEnabled bool `json:"cache_enabled"`
	CacheSize    int  `json:"cache_size"`
}

// APIConfig holds the operator REST API settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Token   string `json:"token"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
	Topic     string `json:"topic"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ShardData: ShardData{
			ListenAddress:   DefaultLoopbackIP,
			ListenPort:      DefaultLoginPort,
			ShardName:       DefaultShardName,
			ShardAddress:    DefaultLoopbackIP,
			RedirectAddress: DefaultLoopbackIP,
			RedirectPort:    DefaultLoginPort,
			SessionKey:      DefaultSessionKey,
			Characters:      []string{},
			Cities:          []CityConfig{},
			ReadBufferSize:  DefaultReadBuffer,
			MaxPendingBytes: DefaultMaxPending,
		},
		ApplicationData: ApplicationData{
			Timers: TimerConfig{
				HeartbeatInterval: 60,
				StatsLogInterval:  3600,
				IdleCheckInterval: 30,
			},
			AuditCleaner: AuditCleanerConfig{
				Enabled:       true,
				CleanupTime:   "04:00",
				RetentionDays: 30,
			},
			Storage: StorageConfig{
				Enabled:      true,
				DatabasePath: filepath.Join(DefaultDatabaseDir, "shardgate.db"),
			},
			Compression: CompressionConfig{
				CacheEnabled: true,
				CacheSize:    64,
			},
			API: APIConfig{
				Enabled: true,
				Host:    DefaultLoopbackIP,
				Port:    DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Port:  1883,
				Topic: "shardgate",
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
				AuthDisabled: true,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json always carries the full set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetShardData returns a copy of the shard configuration.
func (c *Config) GetShardData() ShardData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := c.ShardData
	d.Characters = append([]string(nil), d.Characters...)
	d.Cities = append([]CityConfig(nil), d.Cities...)
	return d
}

// SetShardData updates the shard configuration.
func (c *Config) SetShardData(data ShardData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShardData = data
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateShardField updates a single shard_data field by its JSON key.
// Unknown keys are rejected.
func (c *Config) UpdateShardField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated, err := updateField(c.ShardData, key, value)
	if err != nil {
		return err
	}
	c.ShardData = updated
	return nil
}

// UpdateAppField updates a single top-level application_data field.
func (c *Config) UpdateAppField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated, err := updateField(c.ApplicationData, key, value)
	if err != nil {
		return err
	}
	c.ApplicationData = updated
	return nil
}

func updateField[T any](current T, key string, value interface{}) (T, error) {
	data, err := json.Marshal(current)
	if err != nil {
		return current, fmt.Errorf("failed to marshal config section: %w", err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return current, fmt.Errorf("failed to decode config section: %w", err)
	}
	if _, ok := m[key]; !ok {
		return current, fmt.Errorf("unknown config key %q", key)
	}
	m[key] = value

	updated, err := json.Marshal(m)
	if err != nil {
		return current, fmt.Errorf("failed to update field %s: %w", key, err)
	}
	var out T
	if err := json.Unmarshal(updated, &out); err != nil {
		return current, fmt.Errorf("failed to update field %s: %w", key, err)
	}
	return out, nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets the file path used by Save.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// ListenAddr returns the login listener address as host:port.
func (d ShardData) ListenAddr() string {
	return net.JoinHostPort(d.ListenAddress, fmt.Sprint(d.ListenPort))
}

// ShardIP returns the advertised shard address, or nil when unparsable.
func (d ShardData) ShardIP() net.IP {
	return net.ParseIP(d.ShardAddress).To4()
}

// RedirectIP returns the game server address, or nil when unparsable.
func (d ShardData) RedirectIP() net.IP {
	return net.ParseIP(d.RedirectAddress).To4()
}

// ListenAddr returns the API listener address as host:port.
func (a APIConfig) ListenAddr() string {
	return net.JoinHostPort(a.Host, fmt.Sprint(a.Port))
}
