// internal/emit/sink.go

// Package emit carries connector emissions to the operator log and, for
// result entries, into the run's settlement slot. Lines appear in call
// order; emission never fails back into the connector.
package emit

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
)

// maxValuePreview bounds the logged rendering of an emitted value.
// Values past this many characters are truncated with a byte count.
const maxValuePreview = 200

// Sink serializes data and progress emissions into operator log lines.
type Sink struct {
	logger *zap.Logger
	slot   *Slot
}

// NewSink returns a sink feeding result entries into slot.
func NewSink(logger *zap.Logger, slot *Slot) *Sink {
	return &Sink{
		logger: logger.Named("emit"),
		slot:   slot,
	}
}

// Data logs the entry and, for the reserved result key, offers its
// value to the settlement slot. The first result wins; later ones are
// noted at debug level and dropped.
func (s *Sink) Data(entry connector.DataEntry) {
	s.logger.Info("data",
		zap.String("key", entry.Key),
		zap.String("value", previewValue(entry.Value)),
	)

	if entry.Key != connector.ResultKey {
		return
	}
	if !s.slot.Offer(entry.Value) {
		s.logger.Debug("result already captured; late emission ignored",
			zap.String("key", entry.Key))
	}
}

// Progress logs the event as one formatted line. Missing fields are
// simply omitted from the rendering.
func (s *Sink) Progress(ev connector.ProgressEvent) {
	s.logger.Info(renderProgress(ev))
}

// renderProgress formats an event like
// "progress [2/5 export] scraping page (12 items)".
func renderProgress(ev connector.ProgressEvent) string {
	var b strings.Builder
	b.WriteString("progress")

	if ev.Phase != nil {
		fmt.Fprintf(&b, " [%d/%d", ev.Phase.Step, ev.Phase.Total)
		if ev.Phase.Label != "" {
			fmt.Fprintf(&b, " %s", ev.Phase.Label)
		}
		b.WriteString("]")
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, " %s", ev.Message)
	}
	if ev.Count != nil {
		fmt.Fprintf(&b, " (%d items)", *ev.Count)
	}
	return b.String()
}

// previewValue renders a value for logging. JSON first, %+v when the
// value won't marshal, truncated past maxValuePreview either way.
func previewValue(v any) string {
	var rendered string
	if raw, err := json.Marshal(v); err == nil {
		rendered = string(raw)
	} else {
		rendered = fmt.Sprintf("%+v", v)
	}

	if len(rendered) > maxValuePreview {
		return fmt.Sprintf("%s... (%d bytes total)", rendered[:maxValuePreview], len(rendered))
	}
	return rendered
}
