package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/core/texttospeech"
)

type deepgramVoice string

const (
	VoiceAuraAsteria deepgramVoice = "aura-2-asteria-en"
	VoiceAuraThalia  deepgramVoice = "aura-2-thalia-en"
	VoiceAuraOrion   deepgramVoice = "aura-2-orion-en"
	VoiceAuraArcas   deepgramVoice = "aura-2-arcas-en"

	defaultVoice = VoiceAuraAsteria
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceAuraAsteria, VoiceAuraThalia, VoiceAuraOrion, VoiceAuraArcas}
}

// TextToSpeechClient wraps the deepgram REST speak API. Each Synthesize call
// is one request producing the full audio for one sentence unit.
type TextToSpeechClient struct {
	voice      deepgramVoice
	sampleRate int
	baseURL    string
	httpClient *http.Client
}

type TextToSpeechClientOption func(*TextToSpeechClient)

// WithBaseURL points the client at a different speak endpoint, e.g. a test
// server.
func WithBaseURL(baseURL string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.baseURL = baseURL }
}

// WithOutputSampleRate requests a specific sample rate from the speak API.
func WithOutputSampleRate(sampleRate int) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.sampleRate = sampleRate }
}

func NewTextToSpeechClient(_ context.Context, voice deepgramVoice, opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		voice:   defaultVoice,
		baseURL: "https://api.deepgram.com/v1/speak",
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}

	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}
	client.voice = voice

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}

type speakRequest struct {
	Text string `json:"text"`
}

// Synthesize sends one sentence unit to the speak API and returns the encoded
// audio (mp3). Oversized inputs are rejected locally.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if utf8.RuneCountInString(text) > texttospeech.MaxTextLength {
		return nil, fmt.Errorf("text exceeds %d characters", texttospeech.MaxTextLength)
	}

	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", string(c.voice)))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	speakURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	queryParams := speakURL.Query()
	queryParams.Set("model", string(c.voice))
	queryParams.Set("encoding", "mp3")
	if c.sampleRate > 0 {
		queryParams.Set("sample_rate", strconv.Itoa(c.sampleRate))
	}
	speakURL.RawQuery = queryParams.Encode()

	requestBodyBytes, err := json.Marshal(speakRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", speakURL.String(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, readErr := io.ReadAll(resp.Body); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio body: %w", err)
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(audio)))

	return audio, nil
}
