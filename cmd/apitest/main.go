// apitest exercises the REST endpoints the gatherer depends on and prints
// a one-line result per check.
// Usage: go run ./cmd/apitest -symbol BTC-USDT
//
// Signed checks (full order book, private negotiation) run when
// KUCOIN_API_KEY, KUCOIN_API_SECRET and KUCOIN_API_PASSPHRASE are set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/auth"
	"github.com/rickgao/kucoin-data/internal/logging"
)

type check struct {
	name   string
	signed bool
	run    func(ctx context.Context) (string, error)
}

func main() {
	restURL := flag.String("rest-url", "https://api.kucoin.com", "REST base URL")
	symbol := flag.String("symbol", "BTC-USDT", "symbol for market data checks")
	market := flag.String("market", "USDS", "market for the symbols check")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	envFile := flag.String("env", ".env", "optional env file")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, _ := logging.NewWithWriter(os.Stderr, "text", lvl)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(*timeout),
		api.WithRetries(1, 500*time.Millisecond),
	}
	creds, err := auth.NewCredentials(
		os.Getenv("KUCOIN_API_KEY"),
		os.Getenv("KUCOIN_API_SECRET"),
		os.Getenv("KUCOIN_API_PASSPHRASE"),
		os.Getenv("KUCOIN_API_KEY_VERSION"),
	)
	if err == nil {
		opts = append(opts, api.WithCredentials(creds))
	}
	client := api.NewClient(*restURL, opts...)

	checks := []check{
		{"server time", false, func(ctx context.Context) (string, error) {
			t, err := client.GetServerTime(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (skew %s)", t.UTC().Format(time.RFC3339Nano), time.Since(t).Round(time.Millisecond)), nil
		}},
		{"level1 ticker", false, func(ctx context.Context) (string, error) {
			l1, err := client.GetTicker(ctx, *symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s bid=%s ask=%s seq=%s", *symbol, l1.BestBid, l1.BestAsk, l1.Sequence), nil
		}},
		{"all tickers", false, func(ctx context.Context) (string, error) {
			all, err := client.GetAllTickers(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d tickers", len(all.Ticker)), nil
		}},
		{"symbols", false, func(ctx context.Context) (string, error) {
			syms, err := client.GetSymbols(ctx, *market)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d symbols in %s", len(syms), *market), nil
		}},
		{"daily stats", false, func(ctx context.Context) (string, error) {
			st, err := client.GetDailyStats(ctx, *symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("last=%s high=%s low=%s vol=%s", st.Last, st.High, st.Low, st.Vol), nil
		}},
		{"markets", false, func(ctx context.Context) (string, error) {
			m, err := client.GetMarkets(ctx)
			if err != nil {
				return "", err
			}
			return strings.Join(m, ","), nil
		}},
		{"trade histories", false, func(ctx context.Context) (string, error) {
			trades, err := client.GetTradeHistories(ctx, *symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d trades", len(trades)), nil
		}},
		{"candles 1min", false, func(ctx context.Context) (string, error) {
			end := time.Now()
			candles, err := client.GetCandles(ctx, *symbol, api.Candle1Min, end.Add(-time.Hour), end)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d candles", len(candles)), nil
		}},
		{"currencies", false, func(ctx context.Context) (string, error) {
			cs, err := client.GetCurrencies(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d currencies", len(cs)), nil
		}},
		{"currency USDT", false, func(ctx context.Context) (string, error) {
			c, err := client.GetCurrency(ctx, "USDT", api.ChainTRC20)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s precision=%d", c.FullName, c.Precision), nil
		}},
		{"fiat prices", false, func(ctx context.Context) (string, error) {
			p, err := client.GetFiatPrices(ctx, "USD", []string{"BTC", "ETH"})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("BTC=%s ETH=%s", p["BTC"], p["ETH"]), nil
		}},
		{"mark price", false, func(ctx context.Context) (string, error) {
			mp, err := client.GetMarkPrice(ctx, "USDT-BTC")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s=%s", mp.Symbol, mp.Value), nil
		}},
		{"order book 20", false, func(ctx context.Context) (string, error) {
			return orderBook(ctx, client, *symbol, api.Depth20)
		}},
		{"order book 100", false, func(ctx context.Context) (string, error) {
			return orderBook(ctx, client, *symbol, api.Depth100)
		}},
		{"order book full", true, func(ctx context.Context) (string, error) {
			return orderBook(ctx, client, *symbol, api.DepthFull)
		}},
		{"bullet public", false, func(ctx context.Context) (string, error) {
			return negotiate(ctx, client, false)
		}},
		{"bullet private", true, func(ctx context.Context) (string, error) {
			return negotiate(ctx, client, true)
		}},
	}

	ctx := context.Background()
	failed := 0
	for _, c := range checks {
		if c.signed && !client.HasCredentials() {
			fmt.Printf("SKIP %-16s no credentials\n", c.name)
			continue
		}
		start := time.Now()
		out, err := c.run(ctx)
		if err != nil {
			failed++
			fmt.Printf("FAIL %-16s %v\n", c.name, err)
			continue
		}
		fmt.Printf("OK   %-16s %s (%s)\n", c.name, out, time.Since(start).Round(time.Millisecond))
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func orderBook(ctx context.Context, client *api.Client, symbol string, depth api.OrderBookDepth) (string, error) {
	ob, err := client.GetOrderBook(ctx, symbol, depth)
	if err != nil {
		return "", err
	}
	snap, err := api.OrderBookToSnapshot(symbol, ob, api.NowMicro())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("bids=%d asks=%d best=%s/%s spread=%s",
		len(snap.Bids), len(snap.Asks), snap.BestBid, snap.BestAsk, snap.Spread), nil
}

func negotiate(ctx context.Context, client *api.Client, private bool) (string, error) {
	b, err := client.Negotiate(ctx, private)
	if err != nil {
		return "", err
	}
	s := b.InstanceServers[0]
	return fmt.Sprintf("%s ping=%s timeout=%s servers=%d",
		s.Endpoint, s.Interval(), s.Timeout(), len(b.InstanceServers)), nil
}
