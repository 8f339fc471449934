package driver

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/medical-kg/ingest/internal/pipeline"
)

// Output formats for the event stream.
const (
	OutputText  = "text"
	OutputJSON  = "json"
	OutputTable = "table"
)

// renderEvent writes one event in the selected format. Text mode prints a
// compact human line per meaningful event; JSON mode emits the NDJSON
// envelope downstream tools consume; table mode defers everything to the
// terminal table.
func renderEvent(w io.Writer, format string, event pipeline.Event) error {
	if format == OutputTable {
		return nil
	}

	if format == OutputJSON {
		line, err := pipeline.MarshalEvent(event)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(w, "%s\n", line)

		return err
	}

	switch e := event.(type) {
	case pipeline.DocumentCompleted:
		_, err := fmt.Fprintf(w, "done  %-40s %s\n", e.Document.DocID, e.Duration.Round(timeUnit))

		return err
	case pipeline.DocumentFailed:
		docID := e.DocID
		if docID == "" {
			docID = "(unparsed record)"
		}

		_, err := fmt.Fprintf(w, "fail  %-40s %s: %s\n", docID, e.ErrorType, e.Message)

		return err
	case pipeline.BatchProgress:
		_, err := fmt.Fprintf(w, "progress  completed=%d failed=%d skipped=%d retried=%d in_flight=%d elapsed=%s\n",
			e.Completed, e.Failed, e.Skipped, e.Retried, e.InFlight, e.Elapsed.Round(timeUnit))

		return err
	default:
		// Started and state-change events are noise in text mode.
		return nil
	}
}

// renderTable prints the terminal accounting as an aligned counters table.
func renderTable(w io.Writer, summary *pipeline.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "completed\tfailed\tskipped\tretried\tduration")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\n",
		summary.Completed, summary.Failed, summary.Skipped, summary.Retried,
		summary.Duration.Round(timeUnit))

	_ = tw.Flush()

	if len(summary.Failures) == 0 {
		return
	}

	fmt.Fprintln(w)

	ft := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(ft, "doc_id\terror\tattempt\tmessage")

	for _, failure := range summary.Failures {
		docID := failure.DocID
		if docID == "" {
			docID = "(unparsed record)"
		}

		fmt.Fprintf(ft, "%s\t%s\t%d\t%s\n",
			docID, failure.ErrorType, failure.Attempt, failure.Message)
	}

	_ = ft.Flush()
}

// renderSummary prints the terminal accounting after the stream closes.
func renderSummary(w io.Writer, summary *pipeline.Summary) {
	fmt.Fprintf(w, "\ncompleted=%d failed=%d skipped=%d retried=%d duration=%s\n",
		summary.Completed, summary.Failed, summary.Skipped, summary.Retried,
		summary.Duration.Round(timeUnit))

	for _, failure := range summary.Failures {
		docID := failure.DocID
		if docID == "" {
			docID = "(unparsed record)"
		}

		fmt.Fprintf(w, "  %s  %s (attempt %d): %s\n",
			docID, failure.ErrorType, failure.Attempt, failure.Message)
	}
}
