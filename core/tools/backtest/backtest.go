// Package backtest implements the quantitative turn tools: a long/short
// portfolio backtest against a benchmark and a fixed-growth price simulation.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/tools"
)

const (
	defaultBenchmark = "^GSPC"
	defaultStartDate = "2023-01-01"
	defaultEndDate   = "2024-01-01"

	strategySeriesName  = "Strategy Returns"
	benchmarkSeriesName = "Benchmark Returns"
)

// Config describes one backtest run. Weights are optional; when present they
// are normalized to sum to one and must match their stock list in length.
type Config struct {
	LongStocks   []string
	ShortStocks  []string
	LongWeights  []float64
	ShortWeights []float64
	Benchmark    string
	StartDate    string
	EndDate      string
}

func (c *Config) applyDefaults() {
	if c.Benchmark == "" {
		c.Benchmark = defaultBenchmark
	}
	if c.StartDate == "" {
		c.StartDate = defaultStartDate
	}
	if c.EndDate == "" {
		c.EndDate = defaultEndDate
	}
}

func normalizeWeights(weights []float64, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}
	if weights == nil {
		normalized := make([]float64, count)
		for i := range normalized {
			normalized[i] = 1 / float64(count)
		}
		return normalized, nil
	}
	if len(weights) != count {
		return nil, fmt.Errorf("weights must be the same length as stocks: %d != %d", len(weights), count)
	}

	var sum float64
	for _, weight := range weights {
		sum += weight
	}
	if sum == 0 {
		return nil, fmt.Errorf("weights must not sum to zero")
	}
	normalized := make([]float64, count)
	for i, weight := range weights {
		normalized[i] = weight / sum
	}
	return normalized, nil
}

// Run fetches daily closes for every ticker, computes daily weighted
// long-minus-short returns, and returns cumulative strategy vs benchmark
// return series aligned on the dates shared by all tickers.
func Run(ctx context.Context, source QuoteSource, config Config) (*events.GraphData, error) {
	ctx, span := tracer.Start(ctx, "run backtest")
	defer span.End()

	config.applyDefaults()
	span.SetAttributes(attribute.StringSlice("backtest.long_stocks", config.LongStocks))
	span.SetAttributes(attribute.StringSlice("backtest.short_stocks", config.ShortStocks))
	span.SetAttributes(attribute.String("backtest.benchmark", config.Benchmark))

	if len(config.LongStocks) == 0 && len(config.ShortStocks) == 0 {
		return nil, fmt.Errorf("no stocks to trade")
	}

	longWeights, err := normalizeWeights(config.LongWeights, len(config.LongStocks))
	if err != nil {
		return nil, fmt.Errorf("long %w", err)
	}
	shortWeights, err := normalizeWeights(config.ShortWeights, len(config.ShortStocks))
	if err != nil {
		return nil, fmt.Errorf("short %w", err)
	}

	closes := map[string]map[string]float64{}
	fetch := func(symbol string) error {
		if _, done := closes[symbol]; done {
			return nil
		}
		quotes, err := source.DailyCloses(ctx, symbol, config.StartDate, config.EndDate)
		if err != nil {
			return err
		}
		bySymbol := make(map[string]float64, len(quotes))
		for _, quote := range quotes {
			bySymbol[quote.Date] = quote.Close
		}
		closes[symbol] = bySymbol
		return nil
	}

	symbols := append(append(slices.Clone(config.LongStocks), config.ShortStocks...), config.Benchmark)
	for _, symbol := range symbols {
		if err := fetch(symbol); err != nil {
			return nil, err
		}
	}

	dates := sharedDates(closes)
	if len(dates) < 2 {
		return nil, fmt.Errorf("not enough overlapping price history to backtest")
	}

	strategyReturns := make([]float64, len(dates))
	if len(config.LongStocks) > 0 {
		addWeightedReturns(strategyReturns, closes, config.LongStocks, longWeights, dates, 1)
	}
	if len(config.ShortStocks) > 0 {
		addWeightedReturns(strategyReturns, closes, config.ShortStocks, shortWeights, dates, -1)
	}

	benchmarkReturns := make([]float64, len(dates))
	addWeightedReturns(benchmarkReturns, closes, []string{config.Benchmark}, []float64{1}, dates, 1)

	graph := events.NewGraphData(dates, []events.Series{
		{Name: strategySeriesName, Values: cumulative(strategyReturns)},
		{Name: benchmarkSeriesName, Values: cumulative(benchmarkReturns)},
	}, nil)
	return &graph, nil
}

func sharedDates(closes map[string]map[string]float64) []string {
	var dates []string
	first := true
	for _, bySymbol := range closes {
		if first {
			for date := range bySymbol {
				dates = append(dates, date)
			}
			first = false
			continue
		}
		dates = slices.DeleteFunc(dates, func(date string) bool {
			_, ok := bySymbol[date]
			return !ok
		})
	}
	slices.Sort(dates)
	return dates
}

// addWeightedReturns accumulates sign*weight*dailyReturn for each ticker into
// totals. The first day's return is zero, matching a position entered at the
// first close.
func addWeightedReturns(totals []float64, closes map[string]map[string]float64, symbols []string, weights []float64, dates []string, sign float64) {
	for i, symbol := range symbols {
		bySymbol := closes[symbol]
		for d := 1; d < len(dates); d++ {
			previous := bySymbol[dates[d-1]]
			if previous == 0 {
				continue
			}
			dailyReturn := bySymbol[dates[d]]/previous - 1
			totals[d] += sign * weights[i] * dailyReturn
		}
	}
}

func cumulative(returns []float64) []float64 {
	result := make([]float64, len(returns))
	product := 1.0
	for i, dailyReturn := range returns {
		product *= 1 + dailyReturn
		result[i] = product - 1
	}
	return result
}

// Simulate compares a ticker's actual closes against a constant
// year-over-year growth projection anchored at the first close.
func Simulate(ctx context.Context, source QuoteSource, stock string, growthRate float64, startDate, endDate string) (*events.GraphData, error) {
	ctx, span := tracer.Start(ctx, "simulate growth")
	defer span.End()
	span.SetAttributes(attribute.String("simulate.stock", stock))
	span.SetAttributes(attribute.Float64("simulate.growth_rate", growthRate))

	if startDate == "" {
		startDate = defaultStartDate
	}
	if endDate == "" {
		endDate = defaultEndDate
	}

	symbol := FormatCryptoSymbol(stock)
	quotes, err := source.DailyCloses(ctx, symbol, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("error simulating %q: %w", symbol, err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no data found for ticker %q", symbol)
	}

	labels := make([]string, len(quotes))
	actual := make([]float64, len(quotes))
	simulated := make([]float64, len(quotes))

	initialPrice := quotes[0].Close
	annualFactor := 1 + growthRate/100
	firstDay, err := parseQuoteDate(quotes[0].Date)
	if err != nil {
		return nil, err
	}
	for i, quote := range quotes {
		labels[i] = quote.Date
		actual[i] = quote.Close

		day, err := parseQuoteDate(quote.Date)
		if err != nil {
			return nil, err
		}
		daysElapsed := day.Sub(firstDay).Hours() / 24
		simulated[i] = initialPrice * math.Pow(annualFactor, daysElapsed/365)
	}

	graph := events.NewGraphData(labels, []events.Series{
		{Name: fmt.Sprintf("Actual Price (%s)", stock), Values: actual},
		{Name: fmt.Sprintf("Simulated Price (%g%% YoY Growth)", growthRate), Values: simulated},
	}, nil)
	return &graph, nil
}

type backtestArguments struct {
	LongStocks   []string  `json:"long_stocks" jsonschema:"description=Tickers to hold long"`
	ShortStocks  []string  `json:"short_stocks" jsonschema:"description=Tickers to hold short"`
	LongWeights  []float64 `json:"long_weights,omitempty" jsonschema:"description=Relative weights for the long positions"`
	ShortWeights []float64 `json:"short_weights,omitempty" jsonschema:"description=Relative weights for the short positions"`
	Benchmark    string    `json:"benchmark,omitempty" jsonschema:"description=Benchmark ticker, defaults to ^GSPC"`
	StartDate    string    `json:"start_date,omitempty" jsonschema:"description=Start date YYYY-MM-DD"`
	EndDate      string    `json:"end_date,omitempty" jsonschema:"description=End date YYYY-MM-DD"`
}

// Tool exposes the backtest as the turn-level runBacktest tool.
func Tool(source QuoteSource) tools.Tool {
	return tools.Tool{
		Name:        tools.NameRunBacktest,
		Description: "Backtest a long/short stock portfolio against a benchmark and chart cumulative returns",
		Parameters:  tools.SchemaFor(backtestArguments{}),
		Execute: func(ctx context.Context, argumentsJSON string) (*tools.Result, error) {
			var arguments backtestArguments
			if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
				return nil, fmt.Errorf("invalid backtest arguments: %w", err)
			}
			graph, err := Run(ctx, source, Config{
				LongStocks:   arguments.LongStocks,
				ShortStocks:  arguments.ShortStocks,
				LongWeights:  arguments.LongWeights,
				ShortWeights: arguments.ShortWeights,
				Benchmark:    arguments.Benchmark,
				StartDate:    arguments.StartDate,
				EndDate:      arguments.EndDate,
			})
			if err != nil {
				return nil, err
			}
			return &tools.Result{Graph: graph}, nil
		},
	}
}

type simulateArguments struct {
	Stock      string  `json:"stock" jsonschema:"description=Ticker or crypto symbol to simulate"`
	GrowthRate float64 `json:"growth_rate" jsonschema:"description=Annual growth rate percentage"`
	StartDate  string  `json:"start_date,omitempty" jsonschema:"description=Start date YYYY-MM-DD"`
	EndDate    string  `json:"end_date,omitempty" jsonschema:"description=End date YYYY-MM-DD"`
}

// SimulateTool exposes the growth simulation as a turn-level tool.
func SimulateTool(source QuoteSource) tools.Tool {
	return tools.Tool{
		Name:        tools.NameSimulate,
		Description: "Chart a ticker's actual price against a fixed year-over-year growth projection",
		Parameters:  tools.SchemaFor(simulateArguments{}),
		Execute: func(ctx context.Context, argumentsJSON string) (*tools.Result, error) {
			var arguments simulateArguments
			if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
				return nil, fmt.Errorf("invalid simulate arguments: %w", err)
			}
			graph, err := Simulate(ctx, source, arguments.Stock, arguments.GrowthRate, arguments.StartDate, arguments.EndDate)
			if err != nil {
				return nil, err
			}
			return &tools.Result{Graph: graph}, nil
		},
	}
}

func parseQuoteDate(date string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid quote date %q: %w", date, err)
	}
	return parsed, nil
}
