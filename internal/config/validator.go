package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	shard := cfg.GetShardData()
	app := cfg.GetApplicationData()
	validateShardData(&shard, result)
	validateApplicationData(&app, result)

	return result
}

// Field widths of the login packets. Kept here so config does not import
// the protocol package.
const (
	shardNameWidth  = 32
	credentialWidth = 30
	cityWidth       = 31
	maxSlots        = 7
)

func validateShardData(data *ShardData, result *ValidationResult) {
	validateIPv4(data.ListenAddress, "shard_data.listen_address", result)
	validatePort(data.ListenPort, "shard_data.listen_port", result)

	if strings.TrimSpace(data.ShardName) == "" {
		result.AddError("shard_data.shard_name", "shard name is required")
	} else if len(data.ShardName) > shardNameWidth {
		result.AddWarning("shard_data.shard_name",
			fmt.Sprintf("shard name is %d bytes and will be truncated to %d", len(data.ShardName), shardNameWidth))
	}
	if data.ShardIndex < 0 || data.ShardIndex > 0xFFFF {
		result.AddError("shard_data.shard_index", "shard index must fit in 16 bits")
	}
	if data.PercentFull < 0 || data.PercentFull > 100 {
		result.AddError("shard_data.percent_full", "percent full must be 0-100")
	}
	if data.Timezone < 0 || data.Timezone > 0xFF {
		result.AddError("shard_data.timezone", "timezone must fit in one byte")
	}
	validateIPv4(data.ShardAddress, "shard_data.shard_address", result)

	validateIPv4(data.RedirectAddress, "shard_data.redirect_address", result)
	validatePort(data.RedirectPort, "shard_data.redirect_port", result)

	if len(data.Characters) > maxSlots {
		result.AddWarning("shard_data.characters",
			fmt.Sprintf("%d characters configured, only %d slots are sent", len(data.Characters), maxSlots))
	}
	for i, name := range data.Characters {
		if len(name) > credentialWidth {
			result.AddWarning(fmt.Sprintf("shard_data.characters[%d]", i),
				fmt.Sprintf("name longer than %d bytes will be truncated", credentialWidth))
		}
	}
	for i, c := range data.Cities {
		if len(c.Name) > cityWidth || len(c.Building) > cityWidth {
			result.AddWarning(fmt.Sprintf("shard_data.cities[%d]", i),
				fmt.Sprintf("city fields longer than %d bytes will be truncated", cityWidth))
		}
	}

	if data.ReadBufferSize < 64 {
		result.AddError("shard_data.read_buffer_size", "read buffer must be at least 64 bytes")
	}
	if data.MaxPendingBytes < data.ReadBufferSize {
		result.AddError("shard_data.max_pending_bytes", "max pending bytes must be at least the read buffer size")
	}
	if data.MaxConnections < 0 {
		result.AddError("shard_data.max_connections", "max connections cannot be negative")
	}
	if data.IdleTimeoutSec < 0 {
		result.AddError("shard_data.idle_timeout_sec", "idle timeout cannot be negative")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validateTimers(&data.Timers, result)

	if data.AuditCleaner.Enabled {
		if data.AuditCleaner.RetentionDays < 1 {
			result.AddError("application_data.audit_cleaner.retention_days",
				"retention days must be at least 1")
		}
		if _, err := time.Parse("15:04", data.AuditCleaner.CleanupTime); err != nil {
			result.AddError("application_data.audit_cleaner.cleanup_time",
				fmt.Sprintf("invalid cleanup time %q (expected HH:MM)", data.AuditCleaner.CleanupTime))
		}
	}

	if data.Storage.Enabled && strings.TrimSpace(data.Storage.DatabasePath) == "" {
		result.AddError("application_data.storage.database_path", "database path is required when storage is enabled")
	}

	if data.Compression.CacheEnabled && data.Compression.CacheSize < 1 {
		result.AddWarning("application_data.compression.cache_size", "cache size below 1, using the default")
	}

	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if !data.Security.AuthDisabled && strings.TrimSpace(data.API.Token) == "" {
			result.AddError("application_data.api.token", "API token is required when auth is enabled")
		}
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateTimers(timers *TimerConfig, result *ValidationResult) {
	if timers.HeartbeatInterval < 10 {
		result.AddWarning("timers.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
	if timers.IdleCheckInterval < 1 {
		result.AddError("timers.idle_check_interval_sec", "idle check interval must be at least 1s")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

func validateIPv4(addr, field string, result *ValidationResult) {
	if ip := net.ParseIP(addr); ip == nil || ip.To4() == nil {
		result.AddError(field, fmt.Sprintf("%q is not an IPv4 address", addr))
	}
}
