package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest/interfaces"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/core/speechtotext"
)

// TranscriptionClient wraps the deepgram prerecorded listen API. One call
// transcribes one complete recorded utterance.
type TranscriptionClient struct {
	baseURL    string
	httpClient *http.Client
}

type TranscriptionClientOption func(*TranscriptionClient)

// WithBaseURL points the client at a different listen endpoint, e.g. a test
// server.
func WithBaseURL(baseURL string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.baseURL = baseURL }
}

func NewTranscriptionClient(opts ...TranscriptionClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		baseURL: "https://api.deepgram.com/v1/listen",
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

// Transcribe uploads the audio and returns the transcript of the first
// channel's best alternative.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audio io.Reader, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := &speechtotext.TranscriptionOptions{
		MimeType: "audio/webm",
		Language: "en-US",
	}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()
	span.SetAttributes(attribute.String("request.mime_type", options.MimeType))

	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return "", fmt.Errorf("deepgram api key not found")
	}

	listenURL, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", listenURL.String(), audio)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", options.MimeType)
	req.Header.Set("Authorization", "Token "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	var response api.PreRecordedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("error unmarshalling JSON: %w", err)
	}

	transcript := bestTranscript(&response)
	span.SetAttributes(attribute.Int("response.transcript_length", len(transcript)))
	return transcript, nil
}

func bestTranscript(response *api.PreRecordedResponse) string {
	if response == nil || response.Results == nil {
		return ""
	}
	if len(response.Results.Channels) == 0 {
		return ""
	}
	alternatives := response.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return alternatives[0].Transcript
}
