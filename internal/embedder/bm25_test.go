package embedder

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testModel() BM25Model {
	return BM25Model{
		K1: 1.5,
		Terms: map[string]BM25Term{
			"sad":    {ID: 7, IDF: 2},
			"movies": {ID: 3, IDF: 1},
			"common": {ID: 1, IDF: -0.5},
		},
	}
}

// TestBM25Encoder_Tokens verifies lowercasing and English stop-word removal.
func TestBM25Encoder_Tokens(t *testing.T) {
	t.Parallel()

	enc, err := NewBM25Encoder(testModel())
	if err != nil {
		t.Fatalf("NewBM25Encoder: %v", err)
	}
	got := enc.Tokens("The Sad, sad Movies!")
	want := []string{"sad", "sad", "movies"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}

// TestBM25Encoder_Encode checks weights, ordering, and dropping of unknown
// and non-positive terms.
func TestBM25Encoder_Encode(t *testing.T) {
	t.Parallel()

	enc, err := NewBM25Encoder(testModel())
	if err != nil {
		t.Fatalf("NewBM25Encoder: %v", err)
	}
	vec := enc.Encode("sad sad movies about common robots")

	if !reflect.DeepEqual(vec.Indices, []uint32{3, 7}) {
		t.Fatalf("Indices = %v, want [3 7]", vec.Indices)
	}
	// movies: qtf=1 -> 1 * 1*2.5/2.5 = 1
	// sad:    qtf=2 -> 2 * 2*2.5/3.5
	wantSad := 2 * 2 * 2.5 / 3.5
	if math.Abs(float64(vec.Values[0])-1) > 1e-6 {
		t.Errorf("movies weight = %v, want 1", vec.Values[0])
	}
	if math.Abs(float64(vec.Values[1])-wantSad) > 1e-5 {
		t.Errorf("sad weight = %v, want %v", vec.Values[1], wantSad)
	}
}

// TestBM25Encoder_EncodeNoKnownTerms verifies an empty vector for
// out-of-vocabulary input.
func TestBM25Encoder_EncodeNoKnownTerms(t *testing.T) {
	t.Parallel()

	enc, _ := NewBM25Encoder(testModel())
	if vec := enc.Encode("   "); !vec.IsEmpty() {
		t.Errorf("want empty vector, got %+v", vec)
	}
	if vec := enc.Encode("zombies"); !vec.IsEmpty() {
		t.Errorf("want empty vector, got %+v", vec)
	}
}

// TestNewBM25Encoder_Defaults verifies k1 defaulting and empty-vocabulary rejection.
func TestNewBM25Encoder_Defaults(t *testing.T) {
	t.Parallel()

	enc, err := NewBM25Encoder(BM25Model{Terms: map[string]BM25Term{"x": {ID: 1, IDF: 1}}})
	if err != nil {
		t.Fatalf("NewBM25Encoder: %v", err)
	}
	if enc.k1 != DefaultK1 {
		t.Errorf("k1 = %v, want %v", enc.k1, DefaultK1)
	}
	if _, err := NewBM25Encoder(BM25Model{}); err == nil {
		t.Error("want error for empty vocabulary")
	}
}

// TestLoadBM25 verifies loading from disk and failure on a missing file.
func TestLoadBM25(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "movie.json")
	body := `{"k1": 1.2, "terms": {"heist": {"id": 42, "idf": 3.1}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	enc, err := LoadBM25(path)
	if err != nil {
		t.Fatalf("LoadBM25: %v", err)
	}
	if enc.VocabularySize() != 1 || enc.k1 != 1.2 {
		t.Errorf("unexpected model: size=%d k1=%v", enc.VocabularySize(), enc.k1)
	}
	if vec := enc.Encode("Heist"); len(vec.Indices) != 1 || vec.Indices[0] != 42 {
		t.Errorf("Encode = %+v", vec)
	}

	if _, err := LoadBM25(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("want error for missing file")
	}
}
