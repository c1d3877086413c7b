package stats_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/talkward/internal/stats"
)

func TestMemoryRecorder(t *testing.T) {
	ctx := context.Background()
	rec := stats.NewMemoryRecorder()

	for _, chars := range []int{10, 25, 7} {
		if err := rec.Record(ctx, "guild-1", chars); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := rec.Record(ctx, "guild-2", 100); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := rec.Totals(ctx, "guild-1")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want := stats.Totals{Messages: 3, Characters: 42}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("guild-1 totals mismatch (-want +got):\n%s", diff)
	}

	got, err = rec.Totals(ctx, "guild-2")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want = stats.Totals{Messages: 1, Characters: 100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("guild-2 totals mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRecorderUnknownGuildIsZero(t *testing.T) {
	rec := stats.NewMemoryRecorder()
	got, err := rec.Totals(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if diff := cmp.Diff(stats.Totals{}, got); diff != "" {
		t.Errorf("expected zero totals (-want +got):\n%s", diff)
	}
}

func TestMemoryRecorderConcurrent(t *testing.T) {
	ctx := context.Background()
	rec := stats.NewMemoryRecorder()

	const workers = 8
	const perWorker = 250

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := rec.Record(ctx, "guild", 2); err != nil {
					t.Errorf("Record: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := rec.Totals(ctx, "guild")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	want := stats.Totals{Messages: workers * perWorker, Characters: workers * perWorker * 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}
}
