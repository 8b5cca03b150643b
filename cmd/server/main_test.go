package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/poultry-reports/config"
	"github.com/warp/poultry-reports/report"
)

func TestReportTTLs(t *testing.T) {
	ttls, err := reportTTLs(config.DefaultConfig().Reports)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, ttls[report.KindFarmList])
	assert.Equal(t, 2*time.Minute, ttls[report.KindPartyStatement])

	_, err = reportTTLs(config.ReportsConfig{TTL: map[string]time.Duration{"egg_gossip": time.Minute}})
	assert.ErrorIs(t, err, report.ErrUnknownKind)
}

func TestExitCode_LogsFailureBeforeExit(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	assert.Equal(t, 0, exitCode(logger, nil))
	assert.Zero(t, logs.Len())

	assert.Equal(t, 1, exitCode(logger, errors.New("listen tcp :8080: address already in use")))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "server failed", entry.Message)
	assert.Contains(t, entry.ContextMap()["error"], "address already in use")
}
