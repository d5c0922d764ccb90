package cmd_test

import (
	"context"
	"testing"
	"time"

	cmd "github.com/rohmanhakim/feed-updater/internal/cli"
	"github.com/rohmanhakim/feed-updater/internal/config"
	"github.com/stretchr/testify/require"
)

// newTestRuntime starts a fast runtime and closes it when the test ends.
func newTestRuntime(t *testing.T, stateDir string) *cmd.Runtime {
	t.Helper()
	builder := config.WithDefault().
		WithConcurrency(2).
		WithDispatchInterval(5 * time.Millisecond).
		WithAllowRetries(false).
		WithTimeout(5 * time.Second).
		WithRandomSeed(1).
		WithLogLevel("ERROR")
	if stateDir != "" {
		builder = builder.WithStateDir(stateDir)
	}
	cfg, err := builder.Build()
	require.NoError(t, err)

	rt, err := cmd.NewRuntime(context.Background(), cfg)
	require.NoError(t, err)
	return rt
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
