package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/drip-engine/internal/alert"
	"github.com/unclebandit/drip-engine/internal/config"
	"github.com/unclebandit/drip-engine/internal/failures"
	"github.com/unclebandit/drip-engine/internal/logging"
	"github.com/unclebandit/drip-engine/internal/queue"
)

func TestOpenQueueFallsBackToMemory(t *testing.T) {
	cfg := config.Defaults()

	q, err := openQueue(&cfg, logging.Discard())
	require.NoError(t, err)
	defer q.Close()

	_, ok := q.(*queue.InMemoryQueue)
	assert.True(t, ok)

	pub := queue.NewPublisher(q)
	assert.NoError(t, pub.Send(context.Background(), queue.OutboundMessage{ContactID: "c1", Step: 1, Text: "hi"}))
}

func TestNewTrackerWithoutRedis(t *testing.T) {
	cfg := config.Defaults()

	tr, err := newTracker(context.Background(), &cfg)
	require.NoError(t, err)
	assert.IsType(t, &failures.MemoryTracker{}, tr)
}

func TestNewNotifierWithoutSentry(t *testing.T) {
	cfg := config.Defaults()

	n, flush := newNotifier(&cfg, logging.Discard())
	defer flush()

	multi, ok := n.(alert.Multi)
	require.True(t, ok)
	require.Len(t, multi, 1)
	assert.IsType(t, alert.LogNotifier{}, multi[0])
}

func TestRunReturnsStartupErrors(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notADir, nil, 0o600))

	cfg := config.Defaults()
	cfg.SQLitePath = filepath.Join(notADir, "drip.db")
	err := run(context.Background(), &cfg, logging.Discard())
	assert.ErrorContains(t, err, "open database")

	cfg = config.Defaults()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "drip.db")
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	err = run(context.Background(), &cfg, logging.Discard())
	assert.ErrorContains(t, err, "redis")
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := config.Defaults()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "drip.db")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, &cfg, logging.Discard()))
}
