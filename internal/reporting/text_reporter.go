package reporting

import (
	"bufio"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/xkilldash9x/formpilot/internal/orchestrator"
)

const timeLayout = time.RFC3339

// TextReporter renders a batch as an aligned plain text table.
type TextReporter struct {
	writer io.WriteCloser
}

// NewTextReporter takes ownership of writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(result orchestrator.Result) error {
	s := result.Summary
	bw := bufio.NewWriter(r.writer)

	fmt.Fprintf(bw, "Run %s\n", s.RunID)
	fmt.Fprintf(bw, "Records: %d in %d group(s), took %s\n", s.Total, s.Groups, s.Duration().Round(time.Millisecond))
	if s.Canceled {
		fmt.Fprintln(bw, "Run was cancelled before all groups started.")
	}
	fmt.Fprintln(bw)

	tw := tabwriter.NewWriter(bw, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT")
	for _, c := range sortedCounts(s.Counts) {
		if c.Count == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\n", c.Status, c.Count)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}

	if len(result.Outcomes) > 0 {
		fmt.Fprintln(bw)
		tw = tabwriter.NewWriter(bw, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tSTATUS\tREASON\tFILLED\tCAPTCHA\tURL")
		for _, o := range result.Outcomes {
			reason := string(o.Reason)
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%t\t%s\n",
				o.RowIndex, o.Status, reason, o.FieldsFilled, o.FieldsFound, o.CaptchaSeen, o.URL)
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("failed to write text report: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}
