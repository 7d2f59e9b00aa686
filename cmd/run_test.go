// File: cmd/run_test.go
package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gantryhq/gantry/internal/history"
)

func TestRunComponents_RecorderGuard(t *testing.T) {
	disabled := &runComponents{}
	// The interface must be untyped nil, or the driver would call
	// Record on a nil store.
	assert.True(t, disabled.recorder() == nil)

	enabled := &runComponents{History: new(history.Store)}
	assert.NotNil(t, enabled.recorder())
}

func TestRunComponents_ShutdownWithNothingInitialized(t *testing.T) {
	resetForTest(t)

	components := &runComponents{}
	assert.NotPanics(t, func() { components.Shutdown(context.Background()) })
}
