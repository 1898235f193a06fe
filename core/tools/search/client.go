// Package search wraps a web search API and exposes it as a turn tool.
package search

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

	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/tools"
	"github.com/fintalk-ai/fintalk-core/internal/retry"
)

const defaultURL = "https://api.tavily.com/search"

// Client talks to the search vendor.
type Client struct {
	baseURL     string
	maxResults  int
	retryPolicy retry.Policy
	httpClient  *http.Client
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different search endpoint, e.g. a test
// server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithMaxResults bounds how many results are requested.
func WithMaxResults(maxResults int) ClientOption {
	return func(c *Client) { c.maxResults = maxResults }
}

// WithRetryPolicy replaces the retry policy used for vendor calls.
func WithRetryPolicy(policy retry.Policy) ClientOption {
	return func(c *Client) { c.retryPolicy = policy }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL:     defaultURL,
		maxResults:  5,
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

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearchResult is one search outcome: display text plus citations.
type SearchResult struct {
	Text    string
	Sources []events.Source
}

// Search runs one query against the vendor, retrying transient failures.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "web search")
	defer span.End()
	span.SetAttributes(attribute.String("request.query", query))

	apiKey, ok := os.LookupEnv("TAVILY_API_KEY")
	if !ok {
		return nil, fmt.Errorf("search api key not found")
	}

	var response searchResponse
	err := c.retryPolicy.Do(ctx, func(ctx context.Context) error {
		requestBodyBytes, err := json.Marshal(searchRequest{
			APIKey:        apiKey,
			Query:         query,
			IncludeAnswer: true,
			MaxResults:    c.maxResults,
		})
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			return fmt.Errorf("error creating HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

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
		return nil, err
	}

	sources := make([]events.Source, 0, len(response.Results))
	for _, result := range response.Results {
		sources = append(sources, events.Source{Title: result.Title, URL: result.URL})
	}
	span.SetAttributes(attribute.Int("response.source_count", len(sources)))

	return &SearchResult{Text: response.Answer, Sources: sources}, nil
}

type searchArguments struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

// Tool exposes the client as the turn-level search tool.
func (c *Client) Tool() tools.Tool {
	return tools.Tool{
		Name:        tools.NameSearch,
		Description: "Search the web for current information and news",
		Parameters:  tools.SchemaFor(searchArguments{}),
		Execute: func(ctx context.Context, argumentsJSON string) (*tools.Result, error) {
			var arguments searchArguments
			if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
				return nil, fmt.Errorf("invalid search arguments: %w", err)
			}
			result, err := c.Search(ctx, arguments.Query)
			if err != nil {
				return nil, err
			}
			return &tools.Result{Text: result.Text, Sources: result.Sources}, nil
		},
	}
}
