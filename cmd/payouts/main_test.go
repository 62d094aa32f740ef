package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/washpay/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	addr := func() string {
		port, err := testutil.RandomPort()
		require.NoError(t, err, "failed to get random port to start server")
		return fmt.Sprintf("localhost:%d", port)
	}

	noEnv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", addr(),
			"--metrics-address", addr(),
			"--log-level", "debug",
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--webhook-secret", "whsec",
			"--settlement-url", "http://localhost:3000",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("invalid config", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, noEnv, getwd, []string{
			"--address", addr(),
			"--log-level", "debug",
			"--database", pg.DSN,
		})

		require.Error(t, err, "on incorrect config should return error")
	})

	t.Run("listen error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", "256.0.0.1:1",
			"--metrics-address", addr(),
			"--database", pg.DSN,
			"--secret-key", "secret",
			"--webhook-secret", "whsec",
			"--settlement-url", "http://localhost:3000",
		})

		require.Error(t, err, "server that can not listen must fail")
	})
}
