// Package driver wires the CLI surface to the pipeline: it assembles
// parameter batches, builds the adapter with its dependencies, runs the
// pipeline, and renders the event stream.
package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/medical-kg/ingest/internal/adapter"
	"github.com/medical-kg/ingest/internal/ingestion"
)

// ErrAutoUnsupported is returned when --auto is requested for an adapter that
// cannot generate its own parameters.
var ErrAutoUnsupported = errors.New("adapter does not support auto mode")

// LoadBatch reads an NDJSON batch file: one JSON object per line, each
// becoming one parameter set. Blank lines are skipped; a malformed line fails
// the whole load with a DecodeError naming the line.
func LoadBatch(path string) ([]adapter.Parameters, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from the CLI invocation
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var batches []adapter.Parameters

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var params adapter.Parameters
		if err := json.Unmarshal([]byte(text), &params); err != nil {
			return nil, &ingestion.DecodeError{
				URL: fmt.Sprintf("%s:%d", path, line),
				Err: err,
			}
		}

		batches = append(batches, params)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}

	return batches, nil
}

// ParseParams turns repeated key=value CLI arguments into one parameter set.
func ParseParams(pairs []string) (adapter.Parameters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(adapter.Parameters, len(pairs))

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", pair)
		}

		params[key] = value
	}

	return params, nil
}

// AutoParams asks the adapter to generate its own parameter sets for the
// window.
func AutoParams(ctx context.Context, a adapter.Adapter, window adapter.Window) ([]adapter.Parameters, error) {
	auto, ok := a.(adapter.AutoParameterizer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAutoUnsupported, a.Name())
	}

	return auto.AutoParameters(ctx, window)
}
