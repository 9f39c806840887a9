package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/54b3r/cinerag/internal/media"
)

func newTestOrchestrator(t *testing.T, gate *fakeGate, emb *fakeEmbedder, timeouts Timeouts, skip bool) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(gate, emb, timeouts, skip, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestPrepare_Result(t *testing.T) {
	t.Parallel()
	gate := &fakeGate{recommend: true}
	emb := &fakeEmbedder{}
	o := newTestOrchestrator(t, gate, emb, Timeouts{}, false)

	prep, err := o.Prepare(context.Background(), "cosy mysteries", media.KindTV)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !prep.Recommend || len(prep.Dense) != 3 || prep.Sparse.Len() != 2 {
		t.Errorf("prepared = %+v", prep)
	}
	if emb.sparseKind != media.KindTV {
		t.Errorf("sparse kind = %q, want tv", emb.sparseKind)
	}
}

func TestPrepare_LegsRunConcurrently(t *testing.T) {
	t.Parallel()
	const (
		classify = 150 * time.Millisecond
		dense    = 150 * time.Millisecond
		sparse   = 50 * time.Millisecond
	)
	gate := &fakeGate{recommend: true, delay: classify}
	emb := &fakeEmbedder{denseDelay: dense, sparseDelay: sparse}
	o := newTestOrchestrator(t, gate, emb, Timeouts{}, false)

	start := time.Now()
	if _, err := o.Prepare(context.Background(), "noir", media.KindMovie); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	elapsed := time.Since(start)

	if critical := max(classify, dense) + sparse; elapsed < critical {
		t.Errorf("elapsed %v shorter than critical path %v", elapsed, critical)
	}
	if serial := classify + dense + sparse; elapsed >= serial-50*time.Millisecond {
		t.Errorf("elapsed %v close to serial time %v; legs did not overlap", elapsed, serial)
	}
}

func TestPrepare_FailFastCancelsSibling(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("intent: classify: %w", media.ErrClassification)
	gate := &fakeGate{err: cause}
	emb := &fakeEmbedder{denseDelay: 5 * time.Second}
	o := newTestOrchestrator(t, gate, emb, Timeouts{}, false)

	start := time.Now()
	_, err := o.Prepare(context.Background(), "westerns", media.KindMovie)
	if !errors.Is(err, media.ErrClassification) {
		t.Fatalf("error = %v, want ErrClassification", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Prepare took %v; sibling was not cancelled", elapsed)
	}
	emb.mu.Lock()
	denseCause := emb.denseCause
	emb.mu.Unlock()
	if !errors.Is(denseCause, context.Canceled) {
		t.Errorf("dense leg ended with %v, want context.Canceled", denseCause)
	}
	if n := emb.sparseCalls.Load(); n != 0 {
		t.Errorf("sparse calls = %d, want 0", n)
	}
}

func TestPrepare_LegTimeout(t *testing.T) {
	t.Parallel()
	gate := &fakeGate{recommend: true}
	emb := &fakeEmbedder{denseDelay: time.Second}
	o := newTestOrchestrator(t, gate, emb, Timeouts{DenseEmbed: 30 * time.Millisecond}, false)

	_, err := o.Prepare(context.Background(), "anime", media.KindTV)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestPrepare_SkipSparseOnChat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		recommend  bool
		skip       bool
		wantSparse int32
	}{
		{"default computes sparse for chat", false, false, 1},
		{"skip on chat", false, true, 0},
		{"skip ignored for recommendations", true, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			emb := &fakeEmbedder{}
			o := newTestOrchestrator(t, &fakeGate{recommend: tt.recommend}, emb, Timeouts{}, tt.skip)
			prep, err := o.Prepare(context.Background(), "hello", media.KindMovie)
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			if got := emb.sparseCalls.Load(); got != tt.wantSparse {
				t.Errorf("sparse calls = %d, want %d", got, tt.wantSparse)
			}
			if tt.wantSparse == 0 && !prep.Sparse.IsEmpty() {
				t.Errorf("sparse = %+v, want empty", prep.Sparse)
			}
		})
	}
}

func TestFormatContext(t *testing.T) {
	t.Parallel()
	if got := FormatContext(nil); got != "" {
		t.Errorf("FormatContext(nil) = %q", got)
	}
	got := FormatContext([]media.Candidate{{Content: "A"}, {Content: "B"}, {Content: "C"}})
	if want := "A\n\nB\n\nC"; got != want {
		t.Errorf("FormatContext = %q, want %q", got, want)
	}
}

func TestTimeoutsFromEnv(t *testing.T) {
	t.Setenv("PIPELINE_FETCH_TIMEOUT", "3s")
	t.Setenv("PIPELINE_SKIP_SPARSE_ON_CHAT", "true")
	got := TimeoutsFromEnv()
	if got.Fetch != 3*time.Second {
		t.Errorf("Fetch = %v, want 3s", got.Fetch)
	}
	if got.Classify != DefaultTimeouts.Classify {
		t.Errorf("Classify = %v, want default", got.Classify)
	}
	if !SkipSparseOnChatFromEnv() {
		t.Error("SkipSparseOnChatFromEnv = false")
	}
}
