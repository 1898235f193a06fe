package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/internal/retry"
)

// Quote is one daily closing price.
type Quote struct {
	Date  string
	Close float64
}

// QuoteSource provides daily closes for one symbol over an inclusive date
// range (dates formatted YYYY-MM-DD).
type QuoteSource interface {
	DailyCloses(ctx context.Context, symbol string, startDate, endDate string) ([]Quote, error)
}

// cryptoMappings normalizes common cryptocurrency names to their quoted
// symbols.
var cryptoMappings = map[string]string{
	"BTC":      "BTC-USD",
	"BITCOIN":  "BTC-USD",
	"ETH":      "ETH-USD",
	"ETHEREUM": "ETH-USD",
	"DOGE":     "DOGE-USD",
	"XRP":      "XRP-USD",
	"SOL":      "SOL-USD",
	"ADA":      "ADA-USD",
}

// FormatCryptoSymbol maps common crypto names and tickers to their -USD
// quoted form; equity-looking symbols pass through unchanged.
func FormatCryptoSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if mapped, ok := cryptoMappings[symbol]; ok {
		return mapped
	}
	if strings.HasSuffix(symbol, "-USD") {
		return symbol
	}
	return symbol
}

// HTTPQuoteSource fetches daily closes as CSV from a quotes endpoint
// (Date,Open,High,Low,Close,Volume rows, stooq-style).
type HTTPQuoteSource struct {
	baseURL     string
	retryPolicy retry.Policy
	httpClient  *http.Client
}

type HTTPQuoteSourceOption func(*HTTPQuoteSource)

// WithBaseURL points the source at a different quotes endpoint, e.g. a test
// server.
func WithBaseURL(baseURL string) HTTPQuoteSourceOption {
	return func(s *HTTPQuoteSource) { s.baseURL = baseURL }
}

// WithRetryPolicy replaces the retry policy used for vendor calls.
func WithRetryPolicy(policy retry.Policy) HTTPQuoteSourceOption {
	return func(s *HTTPQuoteSource) { s.retryPolicy = policy }
}

func NewHTTPQuoteSource(opts ...HTTPQuoteSourceOption) *HTTPQuoteSource {
	source := &HTTPQuoteSource{
		baseURL:     "https://stooq.com/q/d/l/",
		retryPolicy: retry.DefaultPolicy(),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(source)
	}
	return source
}

// vendorSymbol converts a display symbol into the vendor's quoting scheme:
// lowercase, US equities suffixed with .us, indices and crypto mapped to the
// vendor aliases.
func vendorSymbol(symbol string) string {
	symbol = FormatCryptoSymbol(symbol)

	switch symbol {
	case "^GSPC":
		return "^spx"
	case "^DJI":
		return "^dji"
	case "^IXIC":
		return "^ndq"
	}
	if strings.HasSuffix(symbol, "-USD") {
		return strings.ToLower(strings.TrimSuffix(symbol, "-USD")) + "usd"
	}
	if strings.HasPrefix(symbol, "^") {
		return strings.ToLower(symbol)
	}
	return strings.ToLower(symbol) + ".us"
}

func compactDate(date string) (string, error) {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return parsed.Format("20060102"), nil
}

func (s *HTTPQuoteSource) DailyCloses(ctx context.Context, symbol string, startDate, endDate string) ([]Quote, error) {
	ctx, span := tracer.Start(ctx, "fetch daily closes")
	defer span.End()
	span.SetAttributes(attribute.String("request.symbol", symbol))

	start, err := compactDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := compactDate(endDate)
	if err != nil {
		return nil, err
	}

	quotesURL, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid quotes url: %w", err)
	}
	queryParams := quotesURL.Query()
	queryParams.Set("s", vendorSymbol(symbol))
	queryParams.Set("d1", start)
	queryParams.Set("d2", end)
	queryParams.Set("i", "d")
	quotesURL.RawQuery = queryParams.Encode()

	var body []byte
	err = s.retryPolicy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", quotesURL.String(), nil)
		if err != nil {
			return fmt.Errorf("error creating HTTP request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("error sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading response body: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	quotes, err := parseQuotesCSV(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quotes for %q: %w", symbol, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no data found for ticker %q", symbol)
	}
	span.SetAttributes(attribute.Int("response.quote_count", len(quotes)))

	return quotes, nil
}

func parseQuotesCSV(body []byte) ([]Quote, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed CSV: %w", err)
	}

	var quotes []Quote
	for i, record := range records {
		if i == 0 && len(record) > 0 && strings.EqualFold(record[0], "Date") {
			continue
		}
		if len(record) < 5 {
			continue
		}
		closePrice, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed close price %q: %w", record[4], err)
		}
		quotes = append(quotes, Quote{Date: record[0], Close: closePrice})
	}
	return quotes, nil
}
