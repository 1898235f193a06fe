// Command server exposes the voice chat core over HTTP: a streaming /chat
// endpoint plus thin speech-to-text, text-to-speech, and document parsing
// fronts.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/fintalk-ai/fintalk-core/core"
	"github.com/fintalk-ai/fintalk-core/core/docparse"
	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/core/llms/openai"
	"github.com/fintalk-ai/fintalk-core/core/relevance"
	relevanceopenai "github.com/fintalk-ai/fintalk-core/core/relevance/openai"
	sttdeepgram "github.com/fintalk-ai/fintalk-core/core/speechtotext/deepgram"
	ttsdeepgram "github.com/fintalk-ai/fintalk-core/core/texttospeech/deepgram"
	"github.com/fintalk-ai/fintalk-core/core/tools/backtest"
	"github.com/fintalk-ai/fintalk-core/core/tools/search"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	completions := openai.NewClient(openaiKey, cfg.OpenAI.Model)
	embeddings := relevanceopenai.NewClient(openaiKey, cfg.OpenAI.EmbeddingModel)

	voice := ttsdeepgram.VoiceAuraAsteria
	for _, available := range ttsdeepgram.GetAvailableVoices() {
		if string(available) == cfg.Deepgram.Voice {
			voice = available
		}
	}
	synthesizer, err := ttsdeepgram.NewTextToSpeechClient(ctx, voice)
	if err != nil {
		log.Fatalf("failed to set up speech synthesis: %v", err)
	}
	transcriber := sttdeepgram.NewTranscriptionClient()

	quotes := backtest.NewHTTPQuoteSource()
	searchClient := search.NewClient()

	orchestrator := orchestration.NewOrchestrator(
		orchestration.CompletionSourceFunc(func(instructions string, history []llms.Message, declared []llms.Tool) llms.Stream {
			return completions.PromptWithStream(instructions, history, declared)
		}),
		orchestration.WithInstructions(cfg.Instructions),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithThresholds(cfg.Routing.BacktestThreshold, cfg.Routing.SearchThreshold),
		orchestration.WithSearch(
			relevance.NewEmbeddingClassifier(embeddings, relevance.SearchExemplars...),
			searchClient.Tool(),
		),
		orchestration.WithBacktest(
			relevance.NewEmbeddingClassifier(embeddings, relevance.BacktestExemplars...),
			backtest.Tool(quotes),
			backtest.SimulateTool(quotes),
		),
	)

	srv := &server{
		orchestrator: orchestrator,
		transcriber:  transcriber,
		synthesizer:  synthesizer,
		parser:       docparse.NewClient(),
	}

	log.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.routes()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
