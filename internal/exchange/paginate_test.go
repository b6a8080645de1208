package exchange

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// fakePages builds a fetch func serving fixed pages keyed by cursor. The
// last page returns an empty next cursor.
func fakePages(pages map[string]struct {
	items []int
	next  string
}) func(ctx context.Context, cursor string) ([]int, string, error) {
	return func(_ context.Context, cursor string) ([]int, string, error) {
		p, ok := pages[cursor]
		if !ok {
			return nil, "", errors.New("unknown cursor " + cursor)
		}
		return p.items, p.next, nil
	}
}

func threePages() map[string]struct {
	items []int
	next  string
} {
	return map[string]struct {
		items []int
		next  string
	}{
		"":   {items: []int{1, 2}, next: "c1"},
		"c1": {items: []int{3, 4}, next: "c2"},
		"c2": {items: []int{5}, next: ""},
	}
}

func TestPagerDrainsAllPages(t *testing.T) {
	t.Parallel()

	p := NewPager("test", "", 0, quietLogger(), fakePages(threePages()))
	got, err := collect(context.Background(), p)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("collected %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("collected %v, want %v", got, want)
		}
	}
	if p.Pages() != 3 {
		t.Errorf("Pages() = %d, want 3", p.Pages())
	}
	if p.Cursor() != "" {
		t.Errorf("Cursor() = %q, want empty after final page", p.Cursor())
	}
}

func TestPagerMaxPagesWarnsOnceWithLastCursor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := NewPager("test", "", 2, logger, fakePages(threePages()))
	got, err := collect(context.Background(), p)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("collected %d items, want 4 (two pages)", len(got))
	}

	out := buf.String()
	if n := strings.Count(out, "pagination truncated at max_pages"); n != 1 {
		t.Errorf("truncation warning emitted %d times, want exactly 1\nlog: %s", n, out)
	}
	if !strings.Contains(out, "last_cursor=c2") {
		t.Errorf("warning does not carry the resume cursor\nlog: %s", out)
	}
	// The truncated iterator still exposes the cursor a successor can
	// resume from.
	if p.Cursor() != "c2" {
		t.Errorf("Cursor() = %q, want %q", p.Cursor(), "c2")
	}
}

func TestPagerResumesFromCursor(t *testing.T) {
	t.Parallel()

	p := NewPager("test", "c1", 0, quietLogger(), fakePages(threePages()))
	got, err := collect(context.Background(), p)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 3 || got[0] != 3 {
		t.Errorf("resumed collection = %v, want [3 4 5]", got)
	}
}

func TestPagerKeepsCursorOnError(t *testing.T) {
	t.Parallel()

	fail := true
	fetch := func(_ context.Context, cursor string) ([]int, string, error) {
		if cursor == "c1" && fail {
			fail = false
			return nil, "", errors.New("transient")
		}
		return fakePages(threePages())(context.Background(), cursor)
	}

	p := NewPager("test", "", 0, quietLogger(), fetch)
	ctx := context.Background()

	if _, _, err := p.Next(ctx); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if _, _, err := p.Next(ctx); err == nil {
		t.Fatal("page 2 should have failed")
	}
	// The failing page's cursor is preserved so the retry hits the same
	// page, never skipping it.
	if p.Cursor() != "c1" {
		t.Fatalf("Cursor() after error = %q, want %q", p.Cursor(), "c1")
	}
	items, ok, err := p.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("retry of page 2: ok=%v err=%v", ok, err)
	}
	if len(items) != 2 || items[0] != 3 {
		t.Errorf("retried page = %v, want [3 4]", items)
	}
}

func TestPagerContextCancellation(t *testing.T) {
	t.Parallel()

	p := NewPager("test", "", 0, quietLogger(), fakePages(threePages()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := p.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestCollectReturnsPartialOnError(t *testing.T) {
	t.Parallel()

	fetch := func(_ context.Context, cursor string) ([]int, string, error) {
		if cursor == "c1" {
			return nil, "", errors.New("boom")
		}
		return fakePages(threePages())(context.Background(), cursor)
	}
	p := NewPager("test", "", 0, quietLogger(), fetch)

	got, err := collect(context.Background(), p)
	if err == nil {
		t.Fatal("expected mid-stream error")
	}
	if len(got) != 2 {
		t.Errorf("partial results = %v, want the first page's 2 items", got)
	}
}
