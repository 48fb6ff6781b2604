package cmd

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func TestCatchSignals(t *testing.T) {
	called := make(chan struct{})
	ctx, stop := CatchSignals(context.Background(), zapNop(), func() { close(called) })
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after SIGHUP")
	}
	_, ok := <-called
	assert.False(t, ok)
}

func TestCatchSignalsStop(t *testing.T) {
	ctx, stop := CatchSignals(context.Background(), zapNop(), nil)
	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))

	log, err = NewLogger(false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
