package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when --config is unset.
const DefaultPath = "uetools.yaml"

// Config is the top-level application configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Engine    EngineConfig    `yaml:"engine"`
	Launch    LaunchConfig    `yaml:"launch"`
	Server    ServerConfig    `yaml:"server"`
	Tail      TailConfig      `yaml:"tail"`
	Tasks     TasksConfig     `yaml:"tasks"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// WorkspaceConfig lists the directories scanned for a project manifest, in
// priority order.
type WorkspaceConfig struct {
	Roots []string `yaml:"roots"`
	Watch bool     `yaml:"watch"` // re-detect when a manifest changes (watch command)
}

// EngineConfig controls engine discovery.
type EngineConfig struct {
	SearchRoot    string `yaml:"search_root"`    // "" = per-OS default
	AllowFallback bool   `yaml:"allow_fallback"` // use search_root itself when no UE_<version> dir matches
	Platform      string `yaml:"platform"`       // "" = host OS; windows, darwin or linux
}

// LaunchConfig holds settings for editor/game launches and the compile database.
type LaunchConfig struct {
	LogStartDelay    string `yaml:"log_start_delay"`    // before tailing the project log, default "5s"
	ClangSettleDelay string `yaml:"clang_settle_delay"` // before copying compile_commands.json, default "2s"
	Trace            bool   `yaml:"trace"`
	ArchiveDirectory string `yaml:"archive_directory"` // "" = <project>/Packaged
	BuildBeforeEdit  bool   `yaml:"build_before_editor"`
}

// ServerConfig holds the dedicated-server build settings (Windows only).
type ServerConfig struct {
	Solution    string `yaml:"solution"`
	MSBuildPath string `yaml:"msbuild_path"` // "" = probe Visual Studio installs
}

// TailConfig controls the log tailer.
type TailConfig struct {
	Interval string `yaml:"interval"` // default "1s"
}

// TasksConfig controls the task coordinator.
type TasksConfig struct {
	OutputBufferMax int  `yaml:"output_buffer_max"` // bytes kept per task
	Mirror          bool `yaml:"mirror"`            // echo task output to stdout
}

// HistoryConfig controls the persisted task history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Limit   int    `yaml:"limit"`  // rows shown by the history command
	Retain  int    `yaml:"retain"` // rows kept after each write; 0 keeps everything
}

// NotifyConfig selects notification sinks.
type NotifyConfig struct {
	Console            bool           `yaml:"console"`
	Color              bool           `yaml:"color"`
	Slack              *SlackConfig   `yaml:"slack,omitempty"`
	Discord            *DiscordConfig `yaml:"discord,omitempty"`
	RateLimitPerMinute int            `yaml:"rate_limit_per_minute"` // remote sinks only
	Breaker            BreakerConfig  `yaml:"breaker"`
	OnlyFailures       bool           `yaml:"only_failures"` // remote sinks skip successes
}

// SlackConfig posts through an incoming webhook or, if unset, the Web API.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	BotToken   string `yaml:"bot_token"`
	Channel    string `yaml:"channel"`
}

// DiscordConfig posts to a channel as a bot.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// BreakerConfig configures the circuit breaker around remote sinks.
type BreakerConfig struct {
	MaxFailures int    `yaml:"max_failures"` // consecutive failures before opening
	Timeout     string `yaml:"timeout"`      // open -> half-open
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.uetools.
// Falls back to "./.uetools" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".uetools"
	}
	return filepath.Join(home, ".uetools")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Workspace: WorkspaceConfig{Roots: []string{"."}},
		Launch: LaunchConfig{
			LogStartDelay:    "5s",
			ClangSettleDelay: "2s",
			BuildBeforeEdit:  true,
		},
		Tail:  TailConfig{Interval: "1s"},
		Tasks: TasksConfig{OutputBufferMax: 1024 * 1024, Mirror: true},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(defaultDataDir(), "history.db"),
			Limit:   20,
			Retain:  500,
		},
		Notify: NotifyConfig{
			Console:            true,
			Color:              true,
			RateLimitPerMinute: 30,
			Breaker:            BreakerConfig{MaxFailures: 3, Timeout: "60s"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	// Relative workspace roots are relative to the config file.
	for i, r := range cfg.Workspace.Roots {
		if r != "" && !filepath.IsAbs(r) {
			cfg.Workspace.Roots[i] = filepath.Join(filepath.Dir(absPath), r)
		}
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("UETOOLS_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps UETOOLS_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UETOOLS_WORKSPACE_ROOTS"); v != "" {
		cfg.Workspace.Roots = splitAndTrim(v, ",")
	}
	if v := os.Getenv("UETOOLS_ENGINE_SEARCH_ROOT"); v != "" {
		cfg.Engine.SearchRoot = v
	}
	if v := os.Getenv("UETOOLS_ENGINE_ALLOW_FALLBACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.AllowFallback = b
		}
	}
	if v := os.Getenv("UETOOLS_ENGINE_PLATFORM"); v != "" {
		cfg.Engine.Platform = v
	}
	if v := os.Getenv("UETOOLS_SERVER_SOLUTION"); v != "" {
		cfg.Server.Solution = v
	}
	if v := os.Getenv("UETOOLS_SERVER_MSBUILD_PATH"); v != "" {
		cfg.Server.MSBuildPath = v
	}
	if v := os.Getenv("UETOOLS_TAIL_INTERVAL"); v != "" {
		cfg.Tail.Interval = v
	}
	if v := os.Getenv("UETOOLS_HISTORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.History.Enabled = b
		}
	}
	if v := os.Getenv("UETOOLS_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("UETOOLS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("UETOOLS_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("UETOOLS_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("UETOOLS_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Notification secrets: env fills in only what the file left empty.
	if v := os.Getenv("UETOOLS_SLACK_WEBHOOK_URL"); v != "" {
		if cfg.Notify.Slack == nil {
			cfg.Notify.Slack = &SlackConfig{}
		}
		if cfg.Notify.Slack.WebhookURL == "" {
			cfg.Notify.Slack.WebhookURL = v
		}
	}
	if v := os.Getenv("UETOOLS_DISCORD_TOKEN"); v != "" && cfg.Notify.Discord != nil {
		if cfg.Notify.Discord.Token == "" {
			cfg.Notify.Discord.Token = v
		}
	}
}

// LogStartDelay returns the parsed launch.log_start_delay.
func (c *Config) LogStartDelay() time.Duration {
	return parseDurationOr(c.Launch.LogStartDelay, 5*time.Second)
}

// ClangSettleDelay returns the parsed launch.clang_settle_delay.
func (c *Config) ClangSettleDelay() time.Duration {
	return parseDurationOr(c.Launch.ClangSettleDelay, 2*time.Second)
}

// TailInterval returns the parsed tail.interval.
func (c *Config) TailInterval() time.Duration {
	return parseDurationOr(c.Tail.Interval, time.Second)
}

// BreakerTimeout returns the parsed notify.breaker.timeout.
func (c *Config) BreakerTimeout() time.Duration {
	return parseDurationOr(c.Notify.Breaker.Timeout, 60*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

type secretField struct {
	name string
	ptr  *string
}

// decryptSecrets finds "enc:..." values in notification credentials and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	var fields []secretField
	if s := cfg.Notify.Slack; s != nil {
		fields = append(fields,
			secretField{"slack webhook_url", &s.WebhookURL},
			secretField{"slack bot_token", &s.BotToken},
		)
	}
	if d := cfg.Notify.Discord; d != nil {
		fields = append(fields, secretField{"discord token", &d.Token})
	}

	for _, f := range fields {
		if !strings.HasPrefix(*f.ptr, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*f.ptr, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
