// internal/emit/sink_test.go
package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gantryhq/gantry/internal/connector"
)

func newObservedSink(t *testing.T) (*Sink, *Slot, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	slot := NewSlot()
	return NewSink(zap.New(core), slot), slot, logs
}

func TestSink_DataLogsInCallOrder(t *testing.T) {
	sink, _, logs := newObservedSink(t)

	sink.Data(connector.DataEntry{Key: "page.1", Value: []string{"a"}})
	sink.Data(connector.DataEntry{Key: "page.2", Value: []string{"b"}})
	sink.Progress(connector.ProgressEvent{Message: "halfway"})
	sink.Data(connector.DataEntry{Key: "page.3", Value: []string{"c"}})

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "page.1", entries[0].ContextMap()["key"])
	assert.Equal(t, "page.2", entries[1].ContextMap()["key"])
	assert.Contains(t, entries[2].Message, "halfway")
	assert.Equal(t, "page.3", entries[3].ContextMap()["key"])
}

func TestSink_ResultFeedsSlotOnce(t *testing.T) {
	sink, slot, logs := newObservedSink(t)

	sink.Data(connector.DataEntry{Key: "progress", Value: "warming up"})
	sink.Data(connector.DataEntry{Key: connector.ResultKey, Value: map[string]any{"n": 1}})
	sink.Data(connector.DataEntry{Key: connector.ResultKey, Value: map[string]any{"n": 2}})

	v, ok := slot.Value()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": 1}, v, "first result emission wins")

	// The duplicate is still logged as data, then noted as ignored.
	dropped := logs.FilterMessageSnippet("late emission ignored").All()
	require.Len(t, dropped, 1)
}

func TestSink_NonResultKeysNeverSettle(t *testing.T) {
	sink, slot, _ := newObservedSink(t)

	sink.Data(connector.DataEntry{Key: "subscriptions", Value: []int{1, 2, 3}})
	sink.Data(connector.DataEntry{Key: "results", Value: "close but not reserved"})

	_, ok := slot.Value()
	assert.False(t, ok)
}

func TestSink_LargeValuesAreTruncated(t *testing.T) {
	sink, _, logs := newObservedSink(t)

	big := strings.Repeat("x", 5000)
	sink.Data(connector.DataEntry{Key: "blob", Value: big})

	entries := logs.All()
	require.Len(t, entries, 1)
	logged, _ := entries[0].ContextMap()["value"].(string)
	assert.Less(t, len(logged), 300, "preview must stay bounded")
	assert.Contains(t, logged, "bytes total")
}

func TestSink_UnmarshalableValueStillLogs(t *testing.T) {
	sink, slot, logs := newObservedSink(t)

	// json.Marshal fails on channels; the sink must not.
	sink.Data(connector.DataEntry{Key: connector.ResultKey, Value: make(chan int)})

	require.Len(t, logs.All(), 1)
	_, ok := slot.Value()
	assert.True(t, ok, "result is captured even when it cannot be previewed")
}

func TestRenderProgress(t *testing.T) {
	count := 12

	testCases := []struct {
		name string
		ev   connector.ProgressEvent
		want string
	}{
		{"empty", connector.ProgressEvent{}, "progress"},
		{"message only", connector.ProgressEvent{Message: "loading"}, "progress loading"},
		{
			"full phase",
			connector.ProgressEvent{
				Phase:   &connector.PhaseInfo{Step: 2, Total: 5, Label: "export"},
				Message: "scraping page",
				Count:   &count,
			},
			"progress [2/5 export] scraping page (12 items)",
		},
		{
			"phase without label",
			connector.ProgressEvent{Phase: &connector.PhaseInfo{Step: 1, Total: 3}},
			"progress [1/3]",
		},
		{"count only", connector.ProgressEvent{Count: &count}, "progress (12 items)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderProgress(tc.ev))
		})
	}
}
