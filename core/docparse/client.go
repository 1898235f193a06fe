// Package docparse wraps the external document-parsing collaborator behind
// the parse-document endpoint.
package docparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/internal/retry"
)

const defaultURL = "https://api.cloud.llamaindex.ai/api/parsing/parse"

// Client talks to the parsing vendor.
type Client struct {
	baseURL     string
	retryPolicy retry.Policy
	httpClient  *http.Client
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different parsing endpoint, e.g. a test
// server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithRetryPolicy replaces the retry policy used for vendor calls.
func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(c *Client) { c.retryPolicy = policy }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL:     defaultURL,
		retryPolicy: retry.DefaultPolicy(),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type parseRequest struct {
	DocumentURL string `json:"document_url"`
}

type parseResponse struct {
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

// Parse extracts the text content of the document at the given URL.
func (c *Client) Parse(ctx context.Context, documentURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "parse document")
	defer span.End()
	span.SetAttributes(attribute.String("request.document_url", documentURL))

	apiKey, ok := os.LookupEnv("LLAMA_CLOUD_API_KEY")
	if !ok {
		return "", fmt.Errorf("document parsing api key not found")
	}

	var response parseResponse
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		requestBodyBytes, err := json.Marshal(parseRequest{DocumentURL: documentURL})
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			return fmt.Errorf("error creating HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		}

		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("error unmarshalling JSON: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	content := response.Markdown
	if content == "" {
		content = response.Text
	}
	span.SetAttributes(attribute.Int("response.content_length", len(content)))
	return content, nil
}
