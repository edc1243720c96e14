// streamtest opens a realtime feed and prints decoded events to the console.
// Usage: go run ./cmd/streamtest -topic ticker:BTC-USDT -topic match:BTC-USDT
//
// Private topics need credentials in the environment (or a .env file):
//
//	KUCOIN_API_KEY         - API key
//	KUCOIN_API_SECRET      - API secret
//	KUCOIN_API_PASSPHRASE  - API passphrase
//	KUCOIN_API_KEY_VERSION - key version, default 2
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/auth"
	"github.com/rickgao/kucoin-data/internal/connection"
	"github.com/rickgao/kucoin-data/internal/logging"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// topicFlags collects repeated -topic values.
type topicFlags []string

func (t *topicFlags) String() string     { return strings.Join(*t, " ") }
func (t *topicFlags) Set(s string) error { *t = append(*t, s); return nil }

func main() {
	var topics topicFlags
	flag.Var(&topics, "topic", "topic to subscribe, e.g. ticker:BTC-USDT (repeatable)")
	restURL := flag.String("rest-url", "https://api.kucoin.com", "REST base URL")
	private := flag.Bool("private", false, "negotiate a private feed (needs credentials)")
	reconnect := flag.Bool("reconnect", false, "keep reconnecting with backoff")
	pathTopics := flag.Bool("path-topics", false, "send topics in /market/ticker:SYM form")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	level := flag.String("log-level", "debug", "log level")
	envFile := flag.String("env", ".env", "optional env file")
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

	if len(topics) == 0 {
		topics = topicFlags{"ticker:BTC-USDT"}
	}
	parsed := make([]router.Topic, 0, len(topics))
	for _, s := range topics {
		t, err := router.ParseTopic(s)
		if err != nil {
			logger.Error("bad topic", "topic", s, "error", err)
			os.Exit(2)
		}
		parsed = append(parsed, t)
	}

	opts := []api.ClientOption{api.WithLogger(logger)}
	if *private {
		creds, err := auth.NewCredentials(
			os.Getenv("KUCOIN_API_KEY"),
			os.Getenv("KUCOIN_API_SECRET"),
			os.Getenv("KUCOIN_API_PASSPHRASE"),
			os.Getenv("KUCOIN_API_KEY_VERSION"),
		)
		if err != nil {
			logger.Error("private feed needs credentials",
				"error", err,
				"env", "KUCOIN_API_KEY, KUCOIN_API_SECRET, KUCOIN_API_PASSPHRASE",
			)
			os.Exit(1)
		}
		opts = append(opts, api.WithCredentials(creds))
	}
	client := api.NewClient(*restURL, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessCfg := connection.DefaultSessionConfig()
	sessCfg.Private = *private
	if *pathTopics {
		sessCfg.TopicFormat = connection.PathFormat
	}

	var events <-chan router.Event
	var stats func() string
	if *reconnect {
		supCfg := connection.DefaultSupervisorConfig()
		supCfg.Session = sessCfg
		sup := connection.NewSupervisor(client, supCfg, logger)
		for _, t := range parsed {
			if err := sup.Subscribe(ctx, t, *private); err != nil {
				logger.Error("subscribe failed", "topic", t.String(), "error", err)
				os.Exit(1)
			}
		}
		sup.Start(ctx)
		defer sup.Stop(context.Background())
		events = sup.Events()
		stats = func() string { return fmt.Sprintf("%+v", sup.Stats()) }
	} else {
		sess, err := connection.Open(ctx, client, sessCfg, logger)
		if err != nil {
			logger.Error("failed to open session", "error", err)
			os.Exit(1)
		}
		defer sess.Close()
		for _, t := range parsed {
			p, err := sess.Subscribe(ctx, t, *private)
			if err != nil {
				logger.Error("subscribe failed", "topic", t.String(), "error", err)
				os.Exit(1)
			}
			if err := p.Wait(ctx); err != nil {
				logger.Error("subscription rejected", "topic", t.String(), "error", err)
				os.Exit(1)
			}
			logger.Info("subscribed", "topic", t.String())
		}
		events = sess.Events()
		stats = func() string { return fmt.Sprintf("state=%s connect_id=%s", sess.State(), sess.ConnectID()) }
	}

	logger.Info("streaming started - press Ctrl+C to stop", "topics", len(parsed))

	counts := map[router.Kind]int{}
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "counts", counts)
			return
		case <-tick.C:
			logger.Info("stats", "feed", stats(), "counts", counts)
		case ev, ok := <-events:
			if !ok {
				logger.Info("feed ended", "counts", counts)
				return
			}
			counts[ev.EventMeta().Kind]++
			printEvent(ev, *verbose)
		}
	}
}

func printEvent(ev router.Event, verbose bool) {
	meta := ev.EventMeta()
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", meta.Kind, data)
		return
	}

	switch e := ev.(type) {
	case *router.Message[model.SymbolTicker]:
		fmt.Printf("[%s] topic=%s price=%s bid=%s ask=%s seq=%s\n",
			meta.Kind, meta.Topic, e.Data.Price, e.Data.BestBid, e.Data.BestAsk, e.Data.Sequence)
	case *router.Message[model.Match]:
		fmt.Printf("[MATCH] symbol=%s id=%s side=%s price=%s size=%s\n",
			e.Data.Symbol, e.Data.TradeID, e.Data.Side, e.Data.Price, e.Data.Size)
	case *router.Message[model.Level2]:
		fmt.Printf("[L2] symbol=%s seq=%d-%d asks=%d bids=%d\n",
			e.Data.Symbol, e.Data.SequenceStart, e.Data.SequenceEnd, len(e.Data.Changes.Asks), len(e.Data.Changes.Bids))
	case *router.Message[model.Level2Depth]:
		fmt.Printf("[%s] topic=%s asks=%d bids=%d ts=%d\n",
			meta.Kind, meta.Topic, len(e.Data.Asks), len(e.Data.Bids), e.Data.Timestamp)
	case *router.Unknown:
		fmt.Printf("[UNKNOWN] topic=%s subject=%s bytes=%d\n", meta.Topic, meta.Subject, len(e.Raw))
	case *router.DecodeFailure:
		fmt.Printf("[DECODE FAILURE] topic=%s want=%s error=%v\n", meta.Topic, e.Want, e.Err)
	case *router.Binary:
		fmt.Printf("[BINARY] bytes=%d\n", len(e.Data))
	default:
		fmt.Printf("[%s] topic=%s subject=%s\n", meta.Kind, meta.Topic, meta.Subject)
	}
}
