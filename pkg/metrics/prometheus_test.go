package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNetworkMetrics(reg)

	m.ObserveOp("register", nil)
	m.ObserveOp("register", nil)
	m.ObserveOp("register", utils.ErrAlreadyRegistered)
	m.ObserveOp("stake", errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("register", "AlreadyRegistered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("stake", "Internal")))

	m.ObserveClaim(uint256.NewInt(100))
	m.ObserveClaim(uint256.NewInt(0))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClaimsTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.ClaimedAmount))

	m.ObserveSnapshot(42, 3*time.Millisecond)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.SnapshotNodes))

	m.SetGauges(network.Stats{Cycle: 7, Nodes: 3, NetworkState: 11, Paused: true})
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CycleNumber))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodesRegistered))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.NetworkState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Paused))
}

func TestHandlerExposesStoreStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNetworkMetrics(reg)

	s, err := statedb.OpenMemory(statedb.Options{})
	require.NoError(t, err)
	defer s.Close()
	m.RegisterStore(s)

	_, err = s.Get([]byte("missing"))
	require.ErrorIs(t, err, statedb.ErrNotFound)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "rnr_statedb_cache_misses_total 1"), body)
	assert.True(t, strings.Contains(body, "rnr_cycle_current"), body)
}
