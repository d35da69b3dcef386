package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateWorkspace(cfg, ve)
	validateEngine(cfg, ve)
	validateLaunch(cfg, ve)
	validateTail(cfg, ve)
	validateTasks(cfg, ve)
	validateHistory(cfg, ve)
	validateNotify(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateWorkspace(cfg *Config, ve *ValidationError) {
	if len(cfg.Workspace.Roots) == 0 {
		ve.Add("workspace.roots must list at least one directory")
	}
	for i, r := range cfg.Workspace.Roots {
		if strings.TrimSpace(r) == "" {
			ve.Add("workspace.roots[%d] is empty", i)
		}
	}
}

func validateEngine(cfg *Config, ve *ValidationError) {
	switch cfg.Engine.Platform {
	case "", "windows", "darwin", "linux":
	default:
		ve.Add("engine.platform %q must be one of windows, darwin, linux", cfg.Engine.Platform)
	}
}

func validateLaunch(cfg *Config, ve *ValidationError) {
	validateDuration(ve, "launch.log_start_delay", cfg.Launch.LogStartDelay, 0)
	validateDuration(ve, "launch.clang_settle_delay", cfg.Launch.ClangSettleDelay, 0)
}

func validateTail(cfg *Config, ve *ValidationError) {
	validateDuration(ve, "tail.interval", cfg.Tail.Interval, 10*time.Millisecond)
}

func validateTasks(cfg *Config, ve *ValidationError) {
	if cfg.Tasks.OutputBufferMax <= 0 {
		ve.Add("tasks.output_buffer_max must be > 0, got %d", cfg.Tasks.OutputBufferMax)
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if !cfg.History.Enabled {
		return
	}
	if cfg.History.Path == "" {
		ve.Add("history.path is required when history is enabled")
	}
	if cfg.History.Limit < 0 {
		ve.Add("history.limit must be >= 0, got %d", cfg.History.Limit)
	}
	if cfg.History.Retain < 0 {
		ve.Add("history.retain must be >= 0, got %d", cfg.History.Retain)
	}
}

func validateNotify(cfg *Config, ve *ValidationError) {
	n := cfg.Notify
	if s := n.Slack; s != nil {
		if s.WebhookURL == "" && (s.BotToken == "" || s.Channel == "") {
			ve.Add("notify.slack needs webhook_url, or bot_token and channel")
		}
	}
	if d := n.Discord; d != nil {
		if d.Token == "" {
			ve.Add("notify.discord.token is required")
		}
		if d.ChannelID == "" {
			ve.Add("notify.discord.channel_id is required")
		}
	}
	if n.RateLimitPerMinute < 0 {
		ve.Add("notify.rate_limit_per_minute must be >= 0, got %d", n.RateLimitPerMinute)
	}
	if n.Breaker.MaxFailures < 0 {
		ve.Add("notify.breaker.max_failures must be >= 0, got %d", n.Breaker.MaxFailures)
	}
	validateDuration(ve, "notify.breaker.timeout", n.Breaker.Timeout, 0)
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout", "file":
	default:
		ve.Add("tracer.exporter %q must be noop, stdout or file", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.Exporter == "file" && cfg.Tracer.Endpoint == "" {
		ve.Add("tracer.endpoint is required for the file exporter")
	}
}

// validateDuration accepts an empty value (the default applies).
func validateDuration(ve *ValidationError, field, value string, minimum time.Duration) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		ve.Add("%s: invalid duration %q", field, value)
		return
	}
	if d < minimum {
		ve.Add("%s must be >= %s, got %s", field, minimum, d)
	}
}
