package relevance

import (
	"context"
	"fmt"
	"math"
	"testing"
)

type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vector, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vector, nil
}

func TestScoreAlignedMessage(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"exemplar": {1, 0},
		"message":  {1, 0},
	}}
	classifier := NewEmbeddingClassifier(embedder, "exemplar")

	score, err := classifier.Score(context.Background(), "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Fatalf("expected score 1, got %f", score)
	}
}

func TestScoreOpposedMessage(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"exemplar": {1, 0},
		"message":  {-1, 0},
	}}
	classifier := NewEmbeddingClassifier(embedder, "exemplar")

	score, err := classifier.Score(context.Background(), "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(score) > 1e-9 {
		t.Fatalf("expected score 0, got %f", score)
	}
}

func TestScoreOrthogonalMessage(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"exemplar": {1, 0},
		"message":  {0, 1},
	}}
	classifier := NewEmbeddingClassifier(embedder, "exemplar")

	score, err := classifier.Score(context.Background(), "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if math.Abs(score-0.5) > 1e-9 {
		t.Fatalf("expected score 0.5, got %f", score)
	}
}

func TestCentroidComputedOnce(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"a":       {1, 0},
		"b":       {0, 1},
		"message": {1, 1},
	}}
	classifier := NewEmbeddingClassifier(embedder, "a", "b")

	for range 3 {
		if _, err := classifier.Score(context.Background(), "message"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	// 2 exemplars once, then one message embed per Score call.
	if embedder.calls != 5 {
		t.Fatalf("expected 5 embed calls, got %d", embedder.calls)
	}
}

func TestScorePropagatesEmbedderError(t *testing.T) {
	embedder := &fakeEmbedder{err: fmt.Errorf("embedder down")}
	classifier := NewEmbeddingClassifier(embedder, "exemplar")

	if _, err := classifier.Score(context.Background(), "message"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestScoreRejectsMismatchedDimensions(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"exemplar": {1, 0},
		"message":  {1, 0, 0},
	}}
	classifier := NewEmbeddingClassifier(embedder, "exemplar")

	if _, err := classifier.Score(context.Background(), "message"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
