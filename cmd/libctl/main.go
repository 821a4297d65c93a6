package main

import (
	"context"
	"fmt"
	"os"

	"library-circulation/internal/circulation"
	"library-circulation/internal/config"
	"library-circulation/internal/firebase"
	"library-circulation/internal/outbox"
	"library-circulation/internal/redis"
)

func main() {
	if err := newRootCmd(os.Stdout, openBackend).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openBackend connects to Firestore and Redis using the service environment.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fb, err := firebase.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		_ = fb.Close()
		return nil, err
	}
	store := redis.NewStore(rdb, redis.WithLedgerRules(cfg.Ledger))
	if err := store.LoadScripts(ctx); err != nil {
		_ = store.Close()
		_ = fb.Close()
		return nil, err
	}

	tasks := outbox.NewService(fb, outbox.NewRegistry(), outbox.PolicyFromConfig(cfg.Outbox))
	return &backend{
		availability: store,
		seeder:       circulation.NewService(store, fb, nil),
		tasks:        tasks,
		retention:    cfg.Outbox.Retention,
		close: func() error {
			_ = store.Close()
			return fb.Close()
		},
	}, nil
}
