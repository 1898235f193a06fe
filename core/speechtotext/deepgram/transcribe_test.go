package deepgram

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fintalk-ai/fintalk-core/core/speechtotext"
)

const listenResponse = `{
	"results": {
		"channels": [
			{"alternatives": [{"transcript": "backtest apple and google", "confidence": 0.98}]}
		]
	}
}`

func TestTranscribeReturnsBestTranscript(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	var gotContentType, gotModel string
	var gotAudio []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotModel = r.URL.Query().Get("model")
		gotAudio, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listenResponse))
	}))
	defer server.Close()

	client := NewTranscriptionClient(WithBaseURL(server.URL))
	transcript, err := client.Transcribe(context.Background(), bytes.NewReader([]byte("webm-blob")),
		speechtotext.WithMimeType("audio/webm"))
	if err != nil {
		t.Fatalf("expected transcript, got %v", err)
	}
	if transcript != "backtest apple and google" {
		t.Fatalf("expected first alternative transcript, got %q", transcript)
	}
	if gotContentType != "audio/webm" {
		t.Fatalf("expected audio/webm content type, got %q", gotContentType)
	}
	if gotModel != "nova-3" {
		t.Fatalf("expected nova-3 model, got %q", gotModel)
	}
	if string(gotAudio) != "webm-blob" {
		t.Fatalf("expected audio payload to be forwarded, got %q", gotAudio)
	}
}

func TestTranscribeReturnsEmptyTranscriptForEmptyResults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer server.Close()

	client := NewTranscriptionClient(WithBaseURL(server.URL))
	transcript, err := client.Transcribe(context.Background(), bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("expected no error for empty results, got %v", err)
	}
	if transcript != "" {
		t.Fatalf("expected empty transcript, got %q", transcript)
	}
}

func TestTranscribeSurfacesNonOKStatus(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewTranscriptionClient(WithBaseURL(server.URL))
	if _, err := client.Transcribe(context.Background(), bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for non-OK HTTP status")
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "placeholder")
	os.Unsetenv("DEEPGRAM_API_KEY")

	client := NewTranscriptionClient()
	if _, err := client.Transcribe(context.Background(), bytes.NewReader(nil)); err == nil {
		t.Fatal("expected missing api key error")
	}
}
