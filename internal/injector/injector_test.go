package injector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/world"
	"github.com/zeusync/substrate/pkg/vmath"
)

func TestInitializeApp(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	id := app.World.Spawn(world.SpawnParams{Origin: vmath.Vec3{0, 0, 0}})
	require.True(t, app.World.Alive(id))
	require.NoError(t, app.World.Tick(context.Background()))
	assert.Equal(t, uint64(1), app.World.Stats().Replicated)

	ts := httptest.NewServer(app.Server.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitializeAppRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Level.CellSize = 0

	_, _, err := InitializeApp(cfg)
	assert.Error(t, err)
}
