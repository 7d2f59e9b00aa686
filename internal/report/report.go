// internal/report/report.go

// Package report persists captured run outcomes and renders the
// operator-facing summary printed after a run finishes.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// WriteOutcome persists value as indented JSON at path. The payload is
// staged in a temp file in the same directory and renamed into place,
// so a crash mid-write never leaves a torn outcome file behind. A nil
// value writes JSON null.
func WriteOutcome(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp outcome file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing outcome: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp outcome file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing outcome file %s: %w", path, err)
	}
	return nil
}

// Summary describes one finished run for human consumption.
type Summary struct {
	RunID      string
	Connector  string
	Source     string
	Value      any
	Err        error
	Duration   time.Duration
	OutputPath string
}

// Render writes a short account of the run to w. Failed runs get the
// failure reason; captured runs get the output location plus whatever
// export counts the connector reported.
func Render(w io.Writer, s Summary) {
	elapsed := s.Duration.Round(time.Millisecond)

	if s.Err != nil {
		fmt.Fprintf(w, "run %s (%s) produced no outcome after %s: %v\n", s.RunID, s.Connector, elapsed, s.Err)
		return
	}

	fmt.Fprintf(w, "run %s (%s) captured a result in %s via %s\n", s.RunID, s.Connector, elapsed, s.Source)
	if s.OutputPath != "" {
		fmt.Fprintf(w, "outcome written to %s\n", s.OutputPath)
	}

	counts, ok := exportCounts(s.Value)
	if !ok || len(counts) == 0 {
		fmt.Fprintln(w, "export summary: n/a")
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "export summary:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, counts[k])
	}
}

// exportCounts digs the exportSummary object out of an outcome value.
// Connectors emit it either at the top level or nested under "data";
// the value is normalized through JSON so both Go maps and structs
// land the same way.
func exportCounts(value any) (map[string]any, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}

	if summary, ok := doc["exportSummary"].(map[string]any); ok {
		return summary, true
	}
	if data, ok := doc["data"].(map[string]any); ok {
		if summary, ok := data["exportSummary"].(map[string]any); ok {
			return summary, true
		}
	}
	return nil, false
}
