package driver

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-kg/ingest/internal/ingestion"
	"github.com/medical-kg/ingest/internal/payload"
	"github.com/medical-kg/ingest/internal/pipeline"
)

func completedEvent(t *testing.T) pipeline.DocumentCompleted {
	t.Helper()

	doc, err := ingestion.NewDocument("pmid:100", "pubmed", "v1",
		[]byte(`{"pmid":"100"}`), &payload.PubMedArticle{PMID: "100", Title: "t"})
	require.NoError(t, err)

	return pipeline.DocumentCompleted{
		Timestamp: time.Now().UTC(),
		Adapter:   "pubmed",
		Document:  doc,
		Duration:  1500 * time.Millisecond,
	}
}

func TestRenderEventTextMode(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderEvent(&buf, OutputText, completedEvent(t)))
	assert.Contains(t, buf.String(), "done")
	assert.Contains(t, buf.String(), "pmid:100")

	buf.Reset()
	require.NoError(t, renderEvent(&buf, OutputText, pipeline.DocumentFailed{
		Adapter:   "pubmed",
		ErrorType: ingestion.KindSchema,
		Message:   "record is not a citation",
	}))
	assert.Contains(t, buf.String(), "fail")
	assert.Contains(t, buf.String(), "(unparsed record)")
	assert.Contains(t, buf.String(), "SchemaError")

	buf.Reset()
	require.NoError(t, renderEvent(&buf, OutputText, pipeline.BatchProgress{
		Completed: 3, Failed: 1, Skipped: 2,
	}))
	assert.Contains(t, buf.String(), "completed=3")
	assert.Contains(t, buf.String(), "skipped=2")

	// Lifecycle noise stays off the text stream.
	buf.Reset()
	require.NoError(t, renderEvent(&buf, OutputText, pipeline.DocumentStarted{Adapter: "pubmed"}))
	assert.Empty(t, buf.String())
}

func TestRenderEventJSONMode(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderEvent(&buf, OutputJSON, completedEvent(t)))

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "document_completed", fields["type"])
	assert.Equal(t, "pubmed", fields["adapter"])
}

func TestRenderEventTableModeIsSilent(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, renderEvent(&buf, OutputTable, completedEvent(t)))
	assert.Empty(t, buf.String())
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer

	renderTable(&buf, &pipeline.Summary{
		Completed: 5,
		Failed:    1,
		Skipped:   2,
		Duration:  3 * time.Second,
		Failures: []pipeline.Failure{
			{DocID: "pmid:100", ErrorType: ingestion.KindValidation, Message: "bad doi", Attempt: 1},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "doc_id")
	assert.Contains(t, out, "pmid:100")
	assert.Contains(t, out, "ValidationError")
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer

	renderSummary(&buf, &pipeline.Summary{
		Completed: 5,
		Failed:    1,
		Retried:   2,
		Duration:  3 * time.Second,
		Failures: []pipeline.Failure{
			{DocID: "pmid:100", ErrorType: ingestion.KindValidation, Message: "bad doi", Attempt: 1},
			{ErrorType: ingestion.KindSchema, Message: "not a citation", Attempt: 1},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "completed=5")
	assert.Contains(t, out, "pmid:100")
	assert.Contains(t, out, "ValidationError (attempt 1): bad doi")
	assert.Contains(t, out, "(unparsed record)")
}
