package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/substrate/internal/core/touch"
	"github.com/zeusync/substrate/internal/core/world"
)

func TestCollectorsReadLatestStats(t *testing.T) {
	stats := world.Stats{
		Tick:     12,
		Ticks:    12,
		LastTick: 3 * time.Millisecond,
		Entities: 5,
		Touch:    touch.Stats{Links: 2, Starts: 7},
	}
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, SourceFunc(func() world.Stats { return stats })))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, len(metrics), n)

	expected := `
# HELP substrate_entities Live entities, including those pending deletion.
# TYPE substrate_entities gauge
substrate_entities 5
# HELP substrate_touch_starts_total Start touch events raised.
# TYPE substrate_touch_starts_total counter
substrate_touch_starts_total 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"substrate_entities", "substrate_touch_starts_total"))

	stats.Entities = 9
	stats.Touch.Starts = 8
	expected = strings.ReplaceAll(strings.ReplaceAll(expected, "entities 5", "entities 9"), "total 7", "total 8")
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"substrate_entities", "substrate_touch_starts_total"))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := SourceFunc(func() world.Stats { return world.Stats{} })
	require.NoError(t, Register(reg, src))

	err := Register(reg, src)
	require.Error(t, err)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)

	assert.ErrorIs(t, Register(reg, nil), ErrNoSource)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, SourceFunc(func() world.Stats { return world.Stats{Ticks: 3} })))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "substrate_ticks_total 3")
}
