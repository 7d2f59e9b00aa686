// internal/connector/connector.go
package connector

import (
	"context"
	"errors"
	"time"
)

// ResultKey is the reserved data key that signals run completion. The
// first value emitted under it becomes the run outcome.
const ResultKey = "result"

// Sentinel errors for runtime operations. Implementations wrap these so
// connectors can branch with errors.Is without importing the backend.
var (
	// ErrNavigation reports a navigation that did not reach its
	// readiness milestone (network failure, bad URL, bounded wait
	// exhausted).
	ErrNavigation = errors.New("navigation failed")

	// ErrEvaluation reports a script that raised or could not be
	// marshalled back from the page.
	ErrEvaluation = errors.New("evaluation failed")
)

// Predicate is polled by AwaitCondition. A true result releases the
// gate; an error is recorded and treated as "not yet".
type Predicate func(ctx context.Context) (bool, error)

// PhaseInfo locates a progress event inside a multi-step flow.
type PhaseInfo struct {
	Step  int    `json:"step"`
	Total int    `json:"total"`
	Label string `json:"label"`
}

// ProgressEvent is a transient status emission. All fields are
// optional; renderers tolerate whatever subset is present.
type ProgressEvent struct {
	Phase   *PhaseInfo `json:"phase,omitempty"`
	Message string     `json:"message,omitempty"`
	Count   *int       `json:"count,omitempty"`
}

// DataEntry is a named emission from a running connector. Keys are not
// unique across a run; later entries under the same key supersede
// earlier ones everywhere except ResultKey, where the first wins.
type DataEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Completion is the value a connector returns from Run. It is the
// fallback settlement path: it only produces an outcome when the
// connector never emitted an explicit result and the completion is
// usable (success with non-empty data).
type Completion struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// Usable reports whether this completion can settle a run on its own.
func (c *Completion) Usable() bool {
	return c != nil && c.Success && len(c.Data) > 0
}

// Source records which settlement path produced an outcome.
type Source string

const (
	// SourceExplicit: the connector emitted a result entry.
	SourceExplicit Source = "explicit"
	// SourceFallback: the connector's returned completion was usable.
	SourceFallback Source = "fallback"
	// SourceNone: nothing materialized before the run ended.
	SourceNone Source = "none"
)

// Outcome is the terminal record of a run. Value is nil when
// Source is SourceNone; Err then carries the failure record (connector
// error, deadline exhaustion, or cancellation).
type Outcome struct {
	Value    any
	Source   Source
	Err      error
	Duration time.Duration
}

// Captured reports whether the run produced a persistable outcome.
func (o *Outcome) Captured() bool {
	return o != nil && o.Source != SourceNone
}

// Runtime is the fixed capability surface handed to a connector. It is
// the only way a connector touches the browser, the operator, or the
// harness; implementations own no business logic.
type Runtime interface {
	// Goto navigates the session to url and waits for the page's
	// readiness milestone within a bounded time.
	Goto(ctx context.Context, url string) error

	// Evaluate runs script in the page and unmarshals its value into
	// out when out is non-nil.
	Evaluate(ctx context.Context, script string, out any) error

	// Sleep pauses for d or until ctx is done, whichever is first.
	Sleep(ctx context.Context, d time.Duration) error

	// SetData emits a DataEntry. Emitting under ResultKey settles the
	// run with value if nothing settled it earlier. Never fails.
	SetData(key string, value any)

	// SetProgress emits a ProgressEvent as an operator log line.
	// Tolerant of missing fields; never fails.
	SetProgress(ev ProgressEvent)

	// ShowBrowser asks for a visible window, best effort, and
	// navigates to url when one is given. Inability to change
	// visibility is never an error.
	ShowBrowser(ctx context.Context, url string) error

	// GoHeadless asks to drop the visible window, best effort.
	GoHeadless(ctx context.Context) error

	// AwaitCondition blocks until pred reports true, the operator
	// sends a continue line, or ctx is done. pollInterval <= 0 uses
	// the harness default.
	AwaitCondition(ctx context.Context, message string, pred Predicate, pollInterval time.Duration) error
}

// Connector is an externally supplied unit of work. Run drives the
// session through rt and either emits a result entry or returns a
// usable Completion; both nil returns are valid for runs that settle
// explicitly.
type Connector interface {
	// Name is the registry key, stable across releases.
	Name() string
	// Summary is a one-line description for listings.
	Summary() string
	// Run executes the connector against a live session.
	Run(ctx context.Context, rt Runtime) (*Completion, error)
}
