package reporting

import (
	"fmt"
	"io"
	"sort"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
)

// jsonReport is the document written by the JSON reporter.
type jsonReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  string            `json:"started_at"`
	FinishedAt string            `json:"finished_at"`
	DurationMS int64             `json:"duration_ms"`
	Total      int               `json:"total"`
	Groups     int               `json:"groups"`
	Canceled   bool              `json:"canceled"`
	Counts     []statusCount     `json:"counts"`
	Outcomes   []schemas.Outcome `json:"outcomes"`
}

type statusCount struct {
	Status schemas.SubmissionStatus `json:"status"`
	Count  int                      `json:"count"`
}

// JSONReporter renders a batch as a single indented JSON document.
type JSONReporter struct {
	writer io.WriteCloser
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(result orchestrator.Result) error {
	s := result.Summary
	doc := jsonReport{
		RunID:      s.RunID,
		StartedAt:  s.Started.UTC().Format(timeLayout),
		FinishedAt: s.Finished.UTC().Format(timeLayout),
		DurationMS: s.Duration().Milliseconds(),
		Total:      s.Total,
		Groups:     s.Groups,
		Canceled:   s.Canceled,
		Counts:     sortedCounts(s.Counts),
		Outcomes:   result.Outcomes,
	}
	if doc.Outcomes == nil {
		doc.Outcomes = []schemas.Outcome{}
	}

	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}

// sortedCounts lists every terminal status first, in lifecycle order, then
// any other status seen, so reports are stable across runs.
func sortedCounts(counts map[schemas.SubmissionStatus]int) []statusCount {
	out := make([]statusCount, 0, len(counts))
	seen := make(map[schemas.SubmissionStatus]bool, len(schemas.TerminalStatuses))
	for _, st := range schemas.TerminalStatuses {
		seen[st] = true
		out = append(out, statusCount{Status: st, Count: counts[st]})
	}
	var extra []statusCount
	for st, n := range counts {
		if !seen[st] {
			extra = append(extra, statusCount{Status: st, Count: n})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Status < extra[j].Status })
	return append(out, extra...)
}
