package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfigInvalid wraps every configuration validation failure.
// Invalid configuration is fatal at startup and never silently defaulted.
var ErrConfigInvalid = errors.New("invalid configuration")

// Source types
const (
	SourceFile    = "file"
	SourceCommand = "command"
)

// Exhaustion policies for the event source
const (
	OnExhaustedReconnect = "reconnect"
	OnExhaustedShutdown  = "shutdown"
)

// ACL formats
const (
	ACLFormatUCI      = "uci"
	ACLFormatDenyFile = "denyfile"
)

// FailurePattern is one configured failure signature.
// Match is a case-insensitive substring unless Regex is set.
type FailurePattern struct {
	ID    string `mapstructure:"id" yaml:"id" validate:"required"`
	Match string `mapstructure:"match" yaml:"match" validate:"required"`
	Regex bool   `mapstructure:"regex" yaml:"regex"`
}

// Config holds all configuration for the apguard responder
type Config struct {
	Detection struct {
		AttemptLimit    int              `mapstructure:"attempt_limit" yaml:"attempt_limit" validate:"gte=1"`
		BlockDuration   time.Duration    `mapstructure:"block_duration" yaml:"block_duration" validate:"gt=0s"`
		SweepInterval   time.Duration    `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0s"`
		EpisodeWindow   time.Duration    `mapstructure:"episode_window" yaml:"episode_window" validate:"gte=0s"`
		MaxDevices      int              `mapstructure:"max_devices" yaml:"max_devices" validate:"gte=1"`
		IdleTTL         time.Duration    `mapstructure:"idle_ttl" yaml:"idle_ttl" validate:"gte=0s"`
		RegexTimeout    time.Duration    `mapstructure:"regex_timeout" yaml:"regex_timeout" validate:"gt=0s"`
		FailurePatterns []FailurePattern `mapstructure:"failure_patterns" yaml:"failure_patterns" validate:"dive"`
	} `mapstructure:"detection" yaml:"detection"`

	Source struct {
		Type           string        `mapstructure:"type" yaml:"type" validate:"oneof=file command"`
		Path           string        `mapstructure:"path" yaml:"path"`
		Command        string        `mapstructure:"command" yaml:"command"`
		FromStart      bool          `mapstructure:"from_start" yaml:"from_start"`
		OnExhausted    string        `mapstructure:"on_exhausted" yaml:"on_exhausted" validate:"oneof=reconnect shutdown"`
		ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay" validate:"gt=0s"`
	} `mapstructure:"source" yaml:"source"`

	ACL struct {
		Format           string        `mapstructure:"format" yaml:"format" validate:"oneof=uci denyfile"`
		Path             string        `mapstructure:"path" yaml:"path" validate:"required"`
		ApplyCommand     string        `mapstructure:"apply_command" yaml:"apply_command"`
		ApplyTimeout     time.Duration `mapstructure:"apply_timeout" yaml:"apply_timeout" validate:"gt=0s"`
		ApplyMaxFailures int           `mapstructure:"apply_max_failures" yaml:"apply_max_failures" validate:"gte=1"`
		ApplyCooldown    time.Duration `mapstructure:"apply_cooldown" yaml:"apply_cooldown" validate:"gt=0s"`
		UnblockOnExpiry  bool          `mapstructure:"unblock_on_expiry" yaml:"unblock_on_expiry"`
	} `mapstructure:"acl" yaml:"acl"`

	Audit struct {
		SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	} `mapstructure:"audit" yaml:"audit"`

	Metrics struct {
		ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	} `mapstructure:"metrics" yaml:"metrics"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
		Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	} `mapstructure:"log" yaml:"log"`
}

// DefaultFailurePatterns are the signatures enabled when none are configured.
func DefaultFailurePatterns() []FailurePattern {
	return []FailurePattern{
		{ID: "auth_attempt_failed", Match: "auth attempt failed"},
		{ID: "invalid_mic", Match: "invalid MIC"},
		{ID: "psk_mismatch", Match: `(psk mismatch|may be (an )?incorrect psk)`, Regex: true},
		{ID: "handshake_timeout", Match: `(4-way handshake|key handshake|eapol-key).*(timeout|timed out|failed)`, Regex: true},
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("detection.attempt_limit", 3)
	v.SetDefault("detection.block_duration", time.Hour)
	v.SetDefault("detection.sweep_interval", 30*time.Second)
	v.SetDefault("detection.episode_window", time.Duration(0)) // 0 = count every signal
	v.SetDefault("detection.max_devices", 65536)
	v.SetDefault("detection.idle_ttl", time.Duration(0)) // 0 = never evict idle devices
	v.SetDefault("detection.regex_timeout", 100*time.Millisecond)

	v.SetDefault("source.type", SourceFile)
	v.SetDefault("source.path", "/var/log/hostapd.log")
	v.SetDefault("source.command", "logread -f")
	v.SetDefault("source.from_start", false)
	v.SetDefault("source.on_exhausted", OnExhaustedReconnect)
	v.SetDefault("source.reconnect_delay", time.Second)

	v.SetDefault("acl.format", ACLFormatUCI)
	v.SetDefault("acl.path", "/etc/config/wireless")
	v.SetDefault("acl.apply_command", "/etc/init.d/network restart")
	v.SetDefault("acl.apply_timeout", 30*time.Second)
	v.SetDefault("acl.apply_max_failures", 3)
	v.SetDefault("acl.apply_cooldown", 5*time.Minute)
	v.SetDefault("acl.unblock_on_expiry", false)

	v.SetDefault("audit.sqlite_path", "")
	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("APGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadConfig loads configuration from file and environment variables.
// An empty configFile searches the default locations; a missing default
// file is not an error, a missing explicit file is.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("apguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/apguard")
	}

	setDefaults(v)
	loadFromEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("%w: unable to decode config: %v", ErrConfigInvalid, err)
	}

	if !v.IsSet("detection.failure_patterns") {
		config.Detection.FailurePatterns = DefaultFailurePatterns()
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	config.Detection.FailurePatterns = DefaultFailurePatterns()
	return &config
}

// validateConfig validates the configuration for correctness
func validateConfig(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q check (value %v)", ErrConfigInvalid, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	switch config.Source.Type {
	case SourceFile:
		if config.Source.Path == "" {
			return fmt.Errorf("%w: source.path is required for file sources", ErrConfigInvalid)
		}
	case SourceCommand:
		if strings.TrimSpace(config.Source.Command) == "" {
			return fmt.Errorf("%w: source.command is required for command sources", ErrConfigInvalid)
		}
	}

	if len(config.Detection.FailurePatterns) == 0 {
		return fmt.Errorf("%w: at least one failure pattern is required", ErrConfigInvalid)
	}

	seen := make(map[string]struct{}, len(config.Detection.FailurePatterns))
	for i, p := range config.Detection.FailurePatterns {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate failure pattern id %q", ErrConfigInvalid, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Regex {
			if _, err := regexp2.Compile(p.Match, regexp2.IgnoreCase); err != nil {
				return fmt.Errorf("%w: failure_patterns[%d] (%s): %v", ErrConfigInvalid, i, p.ID, err)
			}
		}
	}

	return nil
}
