package proctap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unexpected_state_42", State(42).String())
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateStarting.IsTerminal())
	assert.False(t, StateCapturing.IsTerminal())
	assert.False(t, StateStopping.IsTerminal())
	assert.True(t, StateStopped.IsTerminal())
	assert.True(t, StateError.IsTerminal())
}
