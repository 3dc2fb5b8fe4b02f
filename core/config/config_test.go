package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
process:
  id: 3
fiber:
  count: 2
  request_timeout: 5s
  sweep_interval: 250ms
  batch_size: 64
transport:
  kind: grpc
  grpc:
    listen: 127.0.0.1:7403
    peers:
      1: 127.0.0.1:7401
      2: 127.0.0.1:7402
log:
  level: debug
  format: json
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Equal(t, int32(3), cfg.Process.ID)
	require.Equal(t, 5*time.Second, cfg.Fiber.RequestTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Fiber.SweepInterval)
	require.Equal(t, "grpc", cfg.Transport.Kind)
	require.Equal(t, map[int32]string{1: "127.0.0.1:7401", 2: "127.0.0.1:7402"}, cfg.Transport.GRPC.Peers)
	require.Equal(t, "clstr.fiber", cfg.Transport.NATS.SubjectPrefix, "untouched sections keep defaults")

	opts := cfg.FiberOptions()
	require.Equal(t, 64, opts.BatchSize)
	level := new(slog.LevelVar)
	log := cfg.Log.Logger(os.Stderr, level)
	require.True(t, log.Enabled(t.Context(), slog.LevelDebug))
	level.Set(slog.LevelWarn)
	require.False(t, log.Enabled(t.Context(), slog.LevelInfo))
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"sweep not below timeout": "fiber: {request_timeout: 1s, sweep_interval: 1s}",
		"unknown transport":       "transport: {kind: carrier-pigeon}",
		"no fibers":               "fiber: {count: 0}",
		"bad level":               "log: {level: loud}",
		"process id too large":    "process: {id: 8388608}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FIBER_PROCESS_ID":      "9",
		"FIBER_TRANSPORT":       "nats",
		"FIBER_REQUEST_TIMEOUT": "2s",
		"FIBER_METRICS_LISTEN":  ":9100",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	require.Equal(t, int32(9), cfg.Process.ID)
	require.Equal(t, "nats", cfg.Transport.Kind)
	require.Equal(t, 2*time.Second, cfg.Fiber.RequestTimeout)
	require.Equal(t, ":9100", cfg.Metrics.Listen)

	env["FIBER_BATCH_SIZE"] = "lots"
	require.Error(t, Default().applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiberd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fiber: {batch_size: 10}"), 0o600))

	w, err := NewWatcher(path, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.Equal(t, 10, w.Config().Fiber.BatchSize)

	var seen atomic.Int64
	w.OnChange(func(old, cur *Config) {
		require.Equal(t, 10, old.Fiber.BatchSize)
		seen.Store(int64(cur.Fiber.BatchSize))
	})
	go func() { _ = w.Run(t.Context()) }()

	// an invalid file keeps the previous config
	require.NoError(t, os.WriteFile(path, []byte("fiber: {batch_size: -1}"), 0o600))
	time.Sleep(3 * reloadDebounce)
	require.Equal(t, 10, w.Config().Fiber.BatchSize)

	require.NoError(t, os.WriteFile(path, []byte("fiber: {batch_size: 20}"), 0o600))
	require.Eventually(t, func() bool { return seen.Load() == 20 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 20, w.Config().Fiber.BatchSize)
}
