package rerank

import (
	"fmt"
	"math"
	"testing"

	"github.com/54b3r/cinerag/internal/media"
)

const eps = 1e-9

// TestRerank_FusedScoreFormula checks a hand-computed example:
// max_pop = 100, so A = 0.4*0.9 + 0.2*1.0 + 0.4*0.8 = 0.88 and
// B = 0.4*0.5 + 0.2*0.5 + 0.4*0.5 = 0.5.
func TestRerank_FusedScoreFormula(t *testing.T) {
	t.Parallel()

	r := New(Config{})
	got := r.Rerank([]media.Candidate{
		{ID: "b", SemanticScore: 0.5, Popularity: 50, VoteAverage: 5},
		{ID: "a", SemanticScore: 0.9, Popularity: 100, VoteAverage: 8},
	})

	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if math.Abs(got[0].FusedScore-0.88) > eps {
		t.Errorf("a fused = %v, want 0.88", got[0].FusedScore)
	}
	if math.Abs(got[1].FusedScore-0.5) > eps {
		t.Errorf("b fused = %v, want 0.5", got[1].FusedScore)
	}
}

// TestRerank_OrderAndLength verifies the output is non-increasing in fused
// score and bounded by min(len(input), top_k) for a range of batch sizes.
func TestRerank_OrderAndLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 5, 20, 21, 300} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			in := make([]media.Candidate, n)
			for i := range in {
				in[i] = media.Candidate{
					ID:            fmt.Sprint(i),
					SemanticScore: float64((i*37)%101) / 100,
					Popularity:    float64((i * 53) % 900),
					VoteAverage:   float64((i*7)%11) * 0.9,
				}
			}
			got := New(Config{}).Rerank(in)

			if want := min(n, DefaultTopK); len(got) != want {
				t.Fatalf("len = %d, want %d", len(got), want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].FusedScore > got[i-1].FusedScore {
					t.Fatalf("not sorted at %d: %v > %v", i, got[i].FusedScore, got[i-1].FusedScore)
				}
			}
		})
	}
}

// TestRerank_StableTies verifies candidates with identical signals keep
// their retrieval order.
func TestRerank_StableTies(t *testing.T) {
	t.Parallel()

	in := make([]media.Candidate, 10)
	for i := range in {
		in[i] = media.Candidate{ID: fmt.Sprint(i), SemanticScore: 0.5, Popularity: 10, VoteAverage: 7}
	}
	got := New(Config{TopK: 10}).Rerank(in)
	for i, c := range got {
		if c.ID != fmt.Sprint(i) {
			t.Fatalf("position %d holds %s, want %d", i, c.ID, i)
		}
	}
}

// TestRerank_Monotonic verifies that raising one candidate's popularity or
// rating never lowers its fused score or its rank among unchanged peers.
func TestRerank_Monotonic(t *testing.T) {
	t.Parallel()

	base := []media.Candidate{
		{ID: "x", SemanticScore: 0.6, Popularity: 40, VoteAverage: 6},
		{ID: "y", SemanticScore: 0.7, Popularity: 60, VoteAverage: 7},
		{ID: "z", SemanticScore: 0.8, Popularity: 80, VoteAverage: 5},
	}
	r := New(Config{})
	before := r.Rerank(base)

	bumps := []func(*media.Candidate){
		func(c *media.Candidate) { c.Popularity += 10 },
		func(c *media.Candidate) { c.VoteAverage += 1 },
	}
	for _, bump := range bumps {
		changed := make([]media.Candidate, len(base))
		copy(changed, base)
		bump(&changed[0])
		after := r.Rerank(changed)

		if score(after, "x") < score(before, "x") {
			t.Errorf("fused score decreased: %v -> %v", score(before, "x"), score(after, "x"))
		}
		if rank(after, "x") > rank(before, "x") {
			t.Errorf("rank worsened: %d -> %d", rank(before, "x"), rank(after, "x"))
		}
	}
}

// TestRerank_FallbackMaxPopularity verifies the default denominator applies
// when no candidate has positive popularity.
func TestRerank_FallbackMaxPopularity(t *testing.T) {
	t.Parallel()

	got := New(Config{}).Rerank([]media.Candidate{{SemanticScore: 1, VoteAverage: 10}})
	if math.Abs(got[0].FusedScore-0.8) > eps {
		t.Errorf("fused = %v, want 0.8", got[0].FusedScore)
	}
	if empty := New(Config{}).Rerank(nil); empty == nil || len(empty) != 0 {
		t.Errorf("empty batch should yield an empty, non-nil slice, got %#v", empty)
	}
}

// TestRerank_DoesNotMutateInput verifies callers keep their original slice.
func TestRerank_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []media.Candidate{
		{ID: "a", SemanticScore: 0.1},
		{ID: "b", SemanticScore: 0.9},
	}
	_ = New(Config{}).Rerank(in)
	if in[0].ID != "a" || in[0].FusedScore != 0 {
		t.Errorf("input mutated: %+v", in)
	}
}

// TestRerank_CustomWeights verifies weights are configuration: a pure
// popularity weighting orders by popularity alone.
func TestRerank_CustomWeights(t *testing.T) {
	t.Parallel()

	r := New(Config{Weights: Weights{Popularity: 1}})
	got := r.Rerank([]media.Candidate{
		{ID: "low", SemanticScore: 1, Popularity: 1, VoteAverage: 10},
		{ID: "high", Popularity: 500},
	})
	if got[0].ID != "high" {
		t.Errorf("want high first, got %s", got[0].ID)
	}
}

func score(list []media.Candidate, id string) float64 {
	for _, c := range list {
		if c.ID == id {
			return c.FusedScore
		}
	}
	return math.NaN()
}

func rank(list []media.Candidate, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}
