// Package openai provides an embeddings client backed by an OpenAI-compatible
// embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const defaultURL = "https://api.openai.com/v1/embeddings"

type Client struct {
	apiKey string
	model  string
	url    string
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different embeddings endpoint, e.g. a
// compatible proxy or a test server.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	client := &Client{apiKey: apiKey, model: model, url: defaultURL}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type requestBody struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type responseBody struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := tracer.Start(ctx, "embed text")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	requestBodyBytes, err := json.Marshal(requestBody{Model: c.model, Input: text})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)}
	resp, err := client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err != nil {
			span.RecordError(fmt.Errorf("error reading error body: %w", err))
		} else {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return nil, err
	}

	var response responseBody
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		err = fmt.Errorf("error unmarshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	if len(response.Data) == 0 {
		err := fmt.Errorf("no embeddings in response")
		span.RecordError(err)
		return nil, err
	}

	return response.Data[0].Embedding, nil
}
