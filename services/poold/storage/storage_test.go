package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var memCounter int

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	memCounter++
	dsn := fmt.Sprintf("file:poold_test_%d?mode=memory&cache=shared", memCounter)
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open("  "); !errors.Is(err, ErrDSNRequired) {
		t.Fatalf("open empty DSN: %v, want ErrDSNRequired", err)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		attrs := map[string]string{"index": fmt.Sprintf("%d", i), "amount": "100"}
		if err := store.RecordEvent(ctx, "pool.dollar.minted", attrs); err != nil {
			t.Fatalf("record event %d: %v", i, err)
		}
	}

	records, err := store.ListEvents(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("listed %d events, want 3", len(records))
	}
	// Newest first.
	if records[0].Attributes["index"] != "2" {
		t.Fatalf("first record index attr = %q, want 2", records[0].Attributes["index"])
	}
	if records[0].Type != "pool.dollar.minted" {
		t.Fatalf("type = %q", records[0].Type)
	}
	if records[0].RecordedAt.IsZero() {
		t.Fatal("recorded_at not set")
	}

	page, err := store.ListEvents(ctx, 1, 1)
	if err != nil {
		t.Fatalf("paged list: %v", err)
	}
	if len(page) != 1 || page[0].Attributes["index"] != "1" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListEventsClampsLimit(t *testing.T) {
	store := openTestStorage(t)
	records, err := store.ListEvents(context.Background(), -5, -3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("listed %d events on empty store", len(records))
	}
}

func TestPriceSamples(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	_, _, found, err := store.LatestPriceSample(ctx)
	if err != nil {
		t.Fatalf("latest on empty store: %v", err)
	}
	if found {
		t.Fatal("found sample on empty store")
	}

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.RecordPriceSample(ctx, 995_000, first); err != nil {
		t.Fatalf("record first sample: %v", err)
	}
	if err := store.RecordPriceSample(ctx, 1_002_000, first.Add(time.Minute)); err != nil {
		t.Fatalf("record second sample: %v", err)
	}

	price, postedAt, found, err := store.LatestPriceSample(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !found {
		t.Fatal("expected a sample")
	}
	if price != 1_002_000 {
		t.Fatalf("price = %d, want 1002000", price)
	}
	if !postedAt.Equal(first.Add(time.Minute)) {
		t.Fatalf("posted at = %s", postedAt)
	}
}
