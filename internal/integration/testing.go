// Package integration holds end-to-end tests that need a real Unreal Engine
// installation or real notification endpoints. Run them with
// go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	ProjectDir     string // directory holding a .uproject
	SearchRoot     string // directory holding UE_<version> installs
	SlackWebhook   string
	DiscordToken   string
	DiscordChannel string
	TestTimeout    time.Duration
	SkipSlow       bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	return &Config{
		ProjectDir:     os.Getenv("UETOOLS_IT_PROJECT"),
		SearchRoot:     os.Getenv("UETOOLS_IT_SEARCH_ROOT"),
		SlackWebhook:   os.Getenv("UETOOLS_IT_SLACK_WEBHOOK"),
		DiscordToken:   os.Getenv("UETOOLS_IT_DISCORD_TOKEN"),
		DiscordChannel: os.Getenv("UETOOLS_IT_DISCORD_CHANNEL"),
		TestTimeout:    30 * time.Minute,
		SkipSlow:       os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfUnset skips the test if the required environment value is empty
func SkipIfUnset(t *testing.T, value, env string) {
	t.Helper()
	if value == "" {
		t.Skipf("Skipping integration test: %s not set", env)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
