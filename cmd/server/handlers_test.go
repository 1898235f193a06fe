package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fintalk-ai/fintalk-core/core"
	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/speechtotext"
)

type fixedStream struct {
	deltas []string
}

func (s fixedStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, delta := range s.deltas {
			if !yield(fixedChunk(delta), nil) {
				return
			}
		}
	}
}

type fixedChunk string

func (c fixedChunk) FinishReason() *string { return nil }
func (c fixedChunk) Content() string       { return string(c) }

func fixedCompletions(deltas ...string) orchestration.CompletionSource {
	return orchestration.CompletionSourceFunc(func(string, []llms.Message, []llms.Tool) llms.Stream {
		return fixedStream{deltas: deltas}
	})
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, _ ...speechtotext.TranscriptionOption) (string, error) {
	io.ReadAll(audio)
	return f.text, f.err
}

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f fakeSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

type fakeParser struct {
	content string
	err     error
}

func (f fakeParser) Parse(context.Context, string) (string, error) {
	return f.content, f.err
}

func testServer() *server {
	return &server{
		orchestrator: orchestration.NewOrchestrator(fixedCompletions("Hello", " world.")),
		transcriber:  fakeTranscriber{text: "spoken words"},
		synthesizer:  fakeSynthesizer{audio: []byte("mp3-bytes")},
		parser:       fakeParser{content: "# Parsed"},
	}
}

func TestHandleChatStreamsRecords(t *testing.T) {
	srv := testServer()

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	request := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(recorder.Body.String()), "\n")
	var text strings.Builder
	for i, line := range lines {
		event, err := events.DecodeRecord([]byte(line))
		if err != nil {
			t.Fatalf("line %d is not a wire record: %v", i, err)
		}
		switch event := event.(type) {
		case events.TextDelta:
			text.WriteString(event.Content)
		case events.Done:
			if i != len(lines)-1 {
				t.Fatalf("expected done as the last record, got it at %d of %d", i, len(lines))
			}
		}
	}
	if text.String() != "Hello world." {
		t.Fatalf("expected streamed text, got %q", text.String())
	}
}

func TestHandleChatRejectsMissingMessages(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"messages":[]}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleChatRejectsInvalidBody(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleSpeechToText(t *testing.T) {
	srv := testServer()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "input.webm")
	if err != nil {
		t.Fatalf("failed to build form: %v", err)
	}
	part.Write([]byte("webm-bytes"))
	writer.Close()

	request := httptest.NewRequest(http.MethodPost, "/speech-to-text", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Text != "spoken words" {
		t.Fatalf("expected transcript, got %q", response.Text)
	}
}

func TestHandleSpeechToTextRequiresAudio(t *testing.T) {
	srv := testServer()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("other", "value")
	writer.Close()

	request := httptest.NewRequest(http.MethodPost, "/speech-to-text", &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleTextToSpeech(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(`{"text":"Say this."}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %q", got)
	}
	if recorder.Body.String() != "mp3-bytes" {
		t.Fatalf("expected synthesized audio body, got %q", recorder.Body.String())
	}
}

func TestHandleTextToSpeechValidation(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(`{"text":""}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", recorder.Code)
	}

	oversized := fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", 5001))
	request = httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(oversized))
	recorder = httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized text, got %d", recorder.Code)
	}

	// The limit counts characters, not bytes.
	multibyte := fmt.Sprintf(`{"text":%q}`, strings.Repeat("é", 5000))
	request = httptest.NewRequest(http.MethodPost, "/text-to-speech", strings.NewReader(multibyte))
	recorder = httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected multibyte text at the character limit to be accepted, got %d", recorder.Code)
	}
}

func TestHandleParseDocument(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/parse-document", strings.NewReader(`{"documentUrl":"https://example.com/report.pdf"}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response parseDocumentResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Success || response.Content != "# Parsed" {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestHandleParseDocumentRequiresURL(t *testing.T) {
	srv := testServer()

	request := httptest.NewRequest(http.MethodPost, "/parse-document", strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleParseDocumentVendorFailure(t *testing.T) {
	srv := testServer()
	srv.parser = fakeParser{err: fmt.Errorf("vendor down")}

	request := httptest.NewRequest(http.MethodPost, "/parse-document", strings.NewReader(`{"documentUrl":"https://example.com/x.pdf"}`))
	recorder := httptest.NewRecorder()
	srv.routes().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
	var response parseDocumentResponse
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Success {
		t.Fatalf("expected success=false on vendor failure")
	}
}
