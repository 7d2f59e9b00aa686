// internal/connector/connector_test.go
package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion_Usable(t *testing.T) {
	testCases := []struct {
		name       string
		completion *Completion
		want       bool
	}{
		{"nil completion", nil, false},
		{"failure", &Completion{Success: false, Data: map[string]any{"a": 1}}, false},
		{"success without data", &Completion{Success: true}, false},
		{"success with empty data", &Completion{Success: true, Data: map[string]any{}}, false},
		{"success with data", &Completion{Success: true, Data: map[string]any{"a": 1}}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.completion.Usable())
		})
	}
}

func TestOutcome_Captured(t *testing.T) {
	var missing *Outcome
	assert.False(t, missing.Captured())
	assert.False(t, (&Outcome{Source: SourceNone}).Captured())
	assert.True(t, (&Outcome{Source: SourceExplicit, Value: "v"}).Captured())
	assert.True(t, (&Outcome{Source: SourceFallback, Value: map[string]any{}}).Captured())
}

// stubConnector is the minimal Connector used by registry tests.
type stubConnector struct {
	name string
}

func (s stubConnector) Name() string    { return s.name }
func (s stubConnector) Summary() string { return "stub" }
func (s stubConnector) Run(context.Context, Runtime) (*Completion, error) {
	return nil, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(stubConnector{name: "beta"}))
	require.NoError(t, reg.Register(stubConnector{name: "alpha"}))

	c, err := reg.Lookup("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", c.Name())

	_, err = reg.Lookup("gamma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown connector "gamma"`)

	// Names come back sorted for stable listings.
	assert.Equal(t, []string{"alpha", "beta"}, reg.Names())
}

func TestRegistry_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(stubConnector{name: "subs"}))

	err := reg.Register(stubConnector{name: "subs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = reg.Register(stubConnector{name: ""})
	require.Error(t, err)

	err = reg.Register(nil)
	require.Error(t, err)
}
