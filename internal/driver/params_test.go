package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medical-kg/ingest/internal/adapter"
	"github.com/medical-kg/ingest/internal/ingestion"
)

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "batch.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadBatchParsesOneObjectPerLine(t *testing.T) {
	path := writeBatchFile(t, `{"nct_id":"NCT04267848"}

{"term":"covid","page_size":50}
`)

	batches, err := LoadBatch(path)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, "NCT04267848", batches[0].String("nct_id"))
	assert.Equal(t, "covid", batches[1].String("term"))
	assert.Equal(t, 50, batches[1].Int("page_size", 0))
}

func TestLoadBatchRejectsMalformedLine(t *testing.T) {
	path := writeBatchFile(t, `{"nct_id":"NCT04267848"}
not json
`)

	_, err := LoadBatch(path)
	require.Error(t, err)

	var decodeErr *ingestion.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, path+":2", decodeErr.URL)
}

func TestLoadBatchMissingFile(t *testing.T) {
	_, err := LoadBatch(filepath.Join(t.TempDir(), "absent.ndjson"))
	require.Error(t, err)
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"nct_id=NCT04267848", "term=heart failure"})
	require.NoError(t, err)

	assert.Equal(t, "NCT04267848", params.String("nct_id"))
	assert.Equal(t, "heart failure", params.String("term"))
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := ParseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestParseParamsRejectsBadPairs(t *testing.T) {
	for _, pair := range []string{"no-equals", "=value"} {
		_, err := ParseParams([]string{pair})
		assert.Error(t, err, pair)
	}
}

type autoFake struct {
	window adapter.Window
}

func (a *autoFake) Name() string { return "auto-fake" }

func (a *autoFake) Fetch(context.Context, adapter.Parameters) (adapter.Cursor, error) {
	return nil, errors.New("not used")
}

func (a *autoFake) Parse(map[string]any) (*ingestion.Document, error) {
	return nil, errors.New("not used")
}

func (a *autoFake) Validate(*ingestion.Document) error { return nil }

func (a *autoFake) Write(context.Context, *ingestion.Document) error { return nil }

func (a *autoFake) AutoParameters(_ context.Context, window adapter.Window) ([]adapter.Parameters, error) {
	a.window = window

	return []adapter.Parameters{{"term": "generated"}}, nil
}

// plainFake implements only the core adapter contract.
type plainFake struct{}

func (plainFake) Name() string { return "plain-fake" }

func (plainFake) Fetch(context.Context, adapter.Parameters) (adapter.Cursor, error) {
	return nil, errors.New("not used")
}

func (plainFake) Parse(map[string]any) (*ingestion.Document, error) {
	return nil, errors.New("not used")
}

func (plainFake) Validate(*ingestion.Document) error { return nil }

func (plainFake) Write(context.Context, *ingestion.Document) error { return nil }

func TestAutoParamsDelegatesToAdapter(t *testing.T) {
	a := &autoFake{}

	end := time.Now().UTC()
	window := adapter.Window{
		Start:    end.Add(-24 * time.Hour),
		End:      end,
		PageSize: 100,
		Limit:    500,
	}

	params, err := AutoParams(context.Background(), a, window)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "generated", params[0].String("term"))

	assert.Equal(t, window, a.window)
}

func TestAutoParamsUnsupportedAdapter(t *testing.T) {
	_, err := AutoParams(context.Background(), plainFake{}, adapter.Window{})
	require.ErrorIs(t, err, ErrAutoUnsupported)
}
