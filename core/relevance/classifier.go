// Package relevance scores user messages for tool intent. Scores are
// continuous in [0,1]; the turn pipeline compares them against configurable
// thresholds to pick a tool mode.
package relevance

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Classifier scores how strongly a message expresses one intent.
type Classifier interface {
	Score(ctx context.Context, message string) (float64, error)
}

// Embedder produces a vector representation of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingClassifier scores a message by cosine similarity against the
// centroid of intent exemplar embeddings, rescaled to [0,1]. The centroid is
// computed once on first use.
type EmbeddingClassifier struct {
	embedder  Embedder
	exemplars []string

	centroidOnce sync.Once
	centroid     []float64
	centroidErr  error
}

func NewEmbeddingClassifier(embedder Embedder, exemplars ...string) *EmbeddingClassifier {
	return &EmbeddingClassifier{embedder: embedder, exemplars: exemplars}
}

func (c *EmbeddingClassifier) Score(ctx context.Context, message string) (float64, error) {
	c.centroidOnce.Do(func() {
		c.centroid, c.centroidErr = c.computeCentroid(ctx)
	})
	if c.centroidErr != nil {
		return 0, fmt.Errorf("failed to embed intent exemplars: %w", c.centroidErr)
	}

	embedding, err := c.embedder.Embed(ctx, message)
	if err != nil {
		return 0, fmt.Errorf("failed to embed message: %w", err)
	}

	similarity, err := cosineSimilarity(embedding, c.centroid)
	if err != nil {
		return 0, err
	}
	return (similarity + 1) / 2, nil
}

func (c *EmbeddingClassifier) computeCentroid(ctx context.Context) ([]float64, error) {
	if len(c.exemplars) == 0 {
		return nil, fmt.Errorf("at least one exemplar is required")
	}

	var centroid []float64
	for _, exemplar := range c.exemplars {
		embedding, err := c.embedder.Embed(ctx, exemplar)
		if err != nil {
			return nil, err
		}
		if centroid == nil {
			centroid = make([]float64, len(embedding))
		}
		if len(embedding) != len(centroid) {
			return nil, fmt.Errorf("exemplar embedding dimensions disagree: %d != %d", len(embedding), len(centroid))
		}
		for i, value := range embedding {
			centroid[i] += value
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(c.exemplars))
	}
	return centroid, nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions disagree: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude embedding")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// BacktestExemplars seed the backtest intent centroid.
var BacktestExemplars = []string{
	"Backtest a portfolio of AAPL and GOOGL against the S&P 500",
	"Run a backtest going long tech stocks and shorting energy",
	"How would a 60/40 long short strategy have performed last year",
	"Simulate TSLA growing 15 percent a year",
}

// SearchExemplars seed the search intent centroid.
var SearchExemplars = []string{
	"What's the latest news about Tesla",
	"Search the web for today's market headlines",
	"Find recent articles about the Fed rate decision",
	"What happened to Nvidia stock this week",
}
