package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"autopay-tips/internal/app"
	"autopay-tips/internal/config"
	"autopay-tips/internal/domain"
	"autopay-tips/internal/logging"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Ethereum JSON-RPC HTTP endpoint (overrides config)")
	autopayAddr := flag.String("autopay", "", "Autopay contract address (overrides config)")
	queryData := flag.String("query-data", "", "Hex query data: report the tip of this query only")
	at := flag.Uint64("at", 0, "Evaluate at this unix time instead of the latest block")
	timeout := flag.Duration("timeout", time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *rpcEndpoint != "" {
		cfg.RPC.HTTP = *rpcEndpoint
	}
	if *autopayAddr != "" {
		cfg.Contracts.Autopay = *autopayAddr
	}
	// One-shot runs never persist
	cfg.Storage.UseMemory = true

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	now := *at
	if now == 0 {
		now, err = a.Clock().Now(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading chain time: %v\n", err)
			os.Exit(1)
		}
	}

	var out interface{}
	if *queryData != "" {
		data, err := hex.DecodeString(strings.TrimPrefix(*queryData, "0x"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --query-data: %v\n", err)
			os.Exit(1)
		}
		total, err := a.Suggester.TipForQuery(ctx, data, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = queryTipOutput(now, total)
	} else {
		rec, err := a.Suggester.SuggestReport(ctx, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = suggestionOutput(now, rec)
	}

	if err := writeJSON(os.Stdout, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// suggestion is the JSON form of a recommendation.
type suggestion struct {
	Now        uint64   `json:"now"`
	QueryID    string   `json:"query_id,omitempty"`
	QueryData  string   `json:"query_data,omitempty"`
	Tip        string   `json:"tip"`
	FeedTip    string   `json:"feed_tip"`
	OneTimeTip string   `json:"one_time_tip"`
	FeedIDs    []string `json:"feed_ids"`
	Type       string   `json:"type,omitempty"`
}

func suggestionOutput(now uint64, rec *domain.Recommendation) suggestion {
	out := suggestion{Now: now, Tip: "0", FeedTip: "0", OneTimeTip: "0", FeedIDs: []string{}}
	if rec == nil {
		return out
	}
	out.QueryID = rec.QueryID.Hex()
	out.QueryData = "0x" + hex.EncodeToString(rec.QueryData)
	out.Tip = amount(rec.TipAmount)
	out.FeedTip = amount(rec.FeedTip)
	out.OneTimeTip = amount(rec.OneTimeTip)
	out.FeedIDs = feedIDs(rec.FeedIDs)
	return out
}

func queryTipOutput(now uint64, total *domain.QueryTotal) suggestion {
	return suggestion{
		Now:        now,
		QueryID:    total.Query.ID.Hex(),
		QueryData:  "0x" + hex.EncodeToString(total.Query.Data),
		Type:       total.Query.Type,
		Tip:        total.Total().String(),
		FeedTip:    amount(total.FeedTip),
		OneTimeTip: amount(total.OneTimeTip),
		FeedIDs:    feedIDs(total.FeedIDs),
	}
}

func feedIDs(ids []domain.FeedID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
