package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fintalk-ai/fintalk-core/core"
	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/speechtotext"
	"github.com/fintalk-ai/fintalk-core/core/texttospeech"
)

// documentParser is the slice of the document parsing client the server
// needs; it keeps handlers testable with a fake.
type documentParser interface {
	Parse(ctx context.Context, documentURL string) (string, error)
}

type server struct {
	orchestrator *orchestration.Orchestrator
	transcriber  speechtotext.Transcriber
	synthesizer  texttospeech.Synthesizer
	parser       documentParser
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /speech-to-text", s.handleSpeechToText)
	mux.HandleFunc("POST /text-to-speech", s.handleTextToSpeech)
	mux.HandleFunc("POST /parse-document", s.handleParseDocument)
	return otelhttp.NewHandler(mux, "server",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.URL.Path
		}),
	)
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleChat streams one turn as newline-delimited JSON records. Records are
// flushed as they are produced so the client sees text before the turn ends.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "at least one message is required", http.StatusBadRequest)
		return
	}

	messages := make([]llms.Message, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, llms.Message{Role: llms.Role(message.Role), Content: message.Content})
	}

	flusher, _ := w.(http.Flusher)
	wroteAny := false
	emit := func(event events.Event) error {
		record, err := events.MarshalRecord(event)
		if err != nil {
			return err
		}
		if !wroteAny {
			w.Header().Set("Content-Type", "application/x-ndjson")
			wroteAny = true
		}
		if _, err := w.Write(append(record, '\n')); err != nil {
			return fmt.Errorf("client went away: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := s.orchestrator.RunTurn(r.Context(), messages, emit); err != nil {
		if !wroteAny && (errors.Is(err, orchestration.ErrNoMessages) || errors.Is(err, orchestration.ErrLastNotUser)) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("turn ended with error: %v", err)
	}
}

func (s *server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var opts []speechtotext.TranscriptionOption
	if mimeType := header.Header.Get("Content-Type"); mimeType != "" {
		opts = append(opts, speechtotext.WithMimeType(mimeType))
	}

	text, err := s.transcriber.Transcribe(r.Context(), file, opts...)
	if err != nil {
		log.Printf("transcription failed: %v", err)
		http.Error(w, "transcription failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]string{"text": text})
}

type textToSpeechRequest struct {
	Text string `json:"text"`
}

func (s *server) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req textToSpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(req.Text) > texttospeech.MaxTextLength {
		http.Error(w, fmt.Sprintf("text exceeds %d characters", texttospeech.MaxTextLength), http.StatusBadRequest)
		return
	}

	audio, err := s.synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("synthesis failed: %v", err)
		http.Error(w, "synthesis failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}

type parseDocumentRequest struct {
	DocumentURL string `json:"documentUrl"`
}

type parseDocumentResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
}

func (s *server) handleParseDocument(w http.ResponseWriter, r *http.Request) {
	var req parseDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocumentURL == "" {
		http.Error(w, "documentUrl is required", http.StatusBadRequest)
		return
	}

	content, err := s.parser.Parse(r.Context(), req.DocumentURL)
	if err != nil {
		log.Printf("document parsing failed: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(parseDocumentResponse{Success: false})
		return
	}

	writeJSON(w, parseDocumentResponse{Success: true, Content: content})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
