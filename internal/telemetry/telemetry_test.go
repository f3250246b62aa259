package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weftvcs/weft/internal/telemetry"
)

// TestLifecycle exercises Init/Shutdown as a single ordered sequence
// rather than independent test functions, since both guard a single
// process-wide singleton and running them in any other order would
// make one test's assertions depend on another's having run first.
func TestLifecycle(t *testing.T) {
	ctx := t.Context()

	assert.NoError(t, telemetry.Shutdown(ctx), "shutdown before any Init must be a no-op")

	assert.NoError(t, telemetry.Init(ctx, telemetry.Config{Enabled: false}))
	assert.NoError(t, telemetry.Shutdown(ctx), "disabled Init should never have installed a provider")

	assert.NoError(t, telemetry.Init(ctx, telemetry.Config{Enabled: true}))
	assert.NoError(t, telemetry.Init(ctx, telemetry.Config{Enabled: true}), "second Init call must not error or double-install")

	assert.NoError(t, telemetry.Shutdown(ctx))
	assert.NoError(t, telemetry.Shutdown(ctx), "second Shutdown call must be a no-op")
}
