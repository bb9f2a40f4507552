package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthMonitor(t *testing.T) {
	hm := NewHealthMonitor(time.Minute, zap.NewNop())

	escrow := StatusHealthy
	hm.RegisterComponent("statedb", func() (HealthStatus, string) { return StatusHealthy, "" })
	hm.RegisterComponent("escrow", func() (HealthStatus, string) { return escrow, "liability exceeds balance" })

	hm.CheckAllHealth()
	assert.Equal(t, StatusHealthy, hm.GetOverallHealth())

	escrow = StatusDegraded
	hm.CheckAllHealth()
	assert.Equal(t, StatusDegraded, hm.GetOverallHealth())

	escrow = StatusUnhealthy
	hm.CheckHealth("escrow")
	assert.Equal(t, StatusUnhealthy, hm.GetOverallHealth())

	comp := hm.GetHealth("escrow")
	require.NotNil(t, comp)
	assert.Equal(t, "liability exceeds balance", comp.Message)
	assert.False(t, comp.LastCheck.IsZero())
	assert.Nil(t, hm.GetHealth("p2p"))

	rep := hm.Report()
	assert.Equal(t, StatusUnhealthy, rep.Status)
	require.Len(t, rep.Components, 2)
	assert.Equal(t, "escrow", rep.Components[0].Name)
	assert.Equal(t, "statedb", rep.Components[1].Name)
}

func TestHealthCheckRunsUnlocked(t *testing.T) {
	hm := NewHealthMonitor(time.Minute, zap.NewNop())

	var seen HealthStatus
	hm.RegisterComponent("audit", func() (HealthStatus, string) {
		seen = hm.GetOverallHealth()
		return StatusDegraded, "behind"
	})

	done := make(chan struct{})
	go func() {
		hm.CheckHealth("audit")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("check blocked on the monitor lock")
	}
	assert.Equal(t, StatusHealthy, seen)
	assert.Equal(t, StatusDegraded, hm.GetOverallHealth())
}
