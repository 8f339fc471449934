package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSliceCursor(t *testing.T) {
	cursor := newSliceCursor([]map[string]any{
		{"id": "a"},
		{"id": "b"},
	})

	ctx := context.Background()

	first, err := cursor.Next(ctx)
	if err != nil || first["id"] != "a" {
		t.Fatalf("first = %v, %v", first, err)
	}

	second, err := cursor.Next(ctx)
	if err != nil || second["id"] != "b" {
		t.Fatalf("second = %v, %v", second, err)
	}

	if _, err := cursor.Next(ctx); !errors.Is(err, ErrEndOfFeed) {
		t.Errorf("expected ErrEndOfFeed, got %v", err)
	}

	// Exhaustion is stable.
	if _, err := cursor.Next(ctx); !errors.Is(err, ErrEndOfFeed) {
		t.Errorf("expected ErrEndOfFeed on repeat, got %v", err)
	}
}

func TestPagedCursorDrainsPages(t *testing.T) {
	pages := [][]map[string]any{
		{{"id": "a"}, {"id": "b"}},
		{{"id": "c"}},
	}
	fetches := 0

	cursor := newPagedCursor(func(context.Context) ([]map[string]any, bool, error) {
		page := pages[fetches]
		fetches++

		return page, fetches < len(pages), nil
	})

	ctx := context.Background()

	var ids []string

	for {
		record, err := cursor.Next(ctx)
		if errors.Is(err, ErrEndOfFeed) {
			break
		}

		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}

		ids = append(ids, record["id"].(string))
	}

	if fmt.Sprint(ids) != "[a b c]" {
		t.Errorf("ids = %v", ids)
	}

	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
}

func TestPagedCursorEmptyFeed(t *testing.T) {
	cursor := newPagedCursor(func(context.Context) ([]map[string]any, bool, error) {
		return nil, false, nil
	})

	if _, err := cursor.Next(context.Background()); !errors.Is(err, ErrEndOfFeed) {
		t.Errorf("expected ErrEndOfFeed, got %v", err)
	}
}

func TestPagedCursorSkipsEmptyMiddlePage(t *testing.T) {
	pages := [][]map[string]any{
		{{"id": "a"}},
		{}, // a page can legitimately come back empty mid-sweep
		{{"id": "b"}},
	}
	fetches := 0

	cursor := newPagedCursor(func(context.Context) ([]map[string]any, bool, error) {
		page := pages[fetches]
		fetches++

		return page, fetches < len(pages), nil
	})

	ctx := context.Background()
	count := 0

	for {
		if _, err := cursor.Next(ctx); errors.Is(err, ErrEndOfFeed) {
			break
		} else if err != nil {
			t.Fatalf("Next failed: %v", err)
		}

		count++
	}

	if count != 2 {
		t.Errorf("records = %d, want 2", count)
	}
}

func TestPagedCursorPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")

	cursor := newPagedCursor(func(context.Context) ([]map[string]any, bool, error) {
		return nil, false, boom
	})

	if _, err := cursor.Next(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected fetch error, got %v", err)
	}
}
