package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fox-one/mixin-sdk-go"
	"github.com/fox-one/msafe"
	"golang.org/x/sync/errgroup"
)

var cfg struct {
	keystorePath string
	dbPath       string
	port         int
	issuer       string
	asset        string
	pin          string
	poll         time.Duration
}

func init() {
	flag.StringVar(&cfg.dbPath, "db", "msafe.db", "database path")
	flag.StringVar(&cfg.keystorePath, "key", "key.json", "keystore path")
	flag.IntVar(&cfg.port, "port", 8080, "http port")
	flag.StringVar(&cfg.issuer, "issuer", "", "expected jwt issuer")
	flag.StringVar(&cfg.asset, "asset", "31d2ea9c-95eb-3355-b65b-ba096853bc18", "wallet asset id")
	flag.StringVar(&cfg.pin, "pin", os.Getenv("MSAFE_PIN"), "spend pin of the settlement account")
	flag.DurationVar(&cfg.poll, "poll", time.Second, "deposit poll interval")

	flag.Parse()
}

func readKeystore(path string) (*mixin.Keystore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var store mixin.Keystore
	if err := json.Unmarshal(b, &store); err != nil {
		return nil, err
	}

	return &store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	keystore, err := readKeystore(cfg.keystorePath)
	if err != nil {
		slog.Error("read keystore failed", slog.Any("err", err))
		return
	}

	client, err := mixin.NewFromKeystore(keystore)
	if err != nil {
		slog.Error("init mixin client failed", slog.Any("err", err))
		return
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.dbPath))
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		return
	}
	defer db.Close()

	store := msafe.NewBadgerStore(db)

	events, err := msafe.NewEventLog(store)
	if err != nil {
		slog.Error("open event log failed", slog.Any("err", err))
		return
	}
	defer events.Close()

	registry, err := msafe.Restore(
		store,
		msafe.WithSettler(msafe.NewMixinSettler(client, cfg.asset, cfg.pin)),
		msafe.WithNotifier(msafe.MultiNotifier(msafe.LogNotifier{}, events)),
	)
	if err != nil {
		slog.Error("restore registry failed", slog.Any("err", err))
		return
	}

	slog.Info("msafe launch", "ver", "0.01", "wallets", registry.DeployedCount())

	svr := msafe.NewServer(store, registry, events, msafe.MixinUserResolver, client, msafe.Config{
		Issuer:       cfg.issuer,
		AssetID:      cfg.asset,
		PollInterval: cfg.poll,
	})

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		return s.ListenAndServe()
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.Shutdown(context.Background())
	})

	g.Go(func() error {
		return runGC(ctx, db, time.Minute)
	})

	g.Go(func() error {
		return svr.Run(ctx)
	})

	_ = g.Wait()
}

// runGC rewrites value log files until badger reports nothing left to
// reclaim, once per tick.
func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var rewrites int
		for {
			err := db.RunValueLogGC(0.7)
			if err == nil {
				rewrites++
				continue
			}

			if !errors.Is(err, badger.ErrNoRewrite) {
				slog.Error("value log gc failed", slog.Any("err", err))
			}

			break
		}

		if rewrites > 0 {
			slog.Info("value log gc", "rewrites", rewrites)
		}
	}
}
