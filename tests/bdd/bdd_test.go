//go:build bdd

// Package bdd provides BDD tests using godog (Cucumber for Go).
// Run with: go test -tags bdd -v ./tests/bdd/...
package bdd

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"github.com/quipubase/quipubase/internal/api"
	"github.com/quipubase/quipubase/internal/cache"
	"github.com/quipubase/quipubase/internal/config"
	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/kv/memory"
	"github.com/quipubase/quipubase/internal/metrics"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/registry"
	"github.com/quipubase/quipubase/internal/store"
	"github.com/quipubase/quipubase/tests/bdd/steps"
)

// newTestServer creates a fresh in-process quipubase backed by memory storage.
func newTestServer() (*httptest.Server, kv.Store) {
	kvStore := memory.NewStore()

	cfg := config.DefaultConfig()
	cfg.Stream.KeepaliveInterval = 1

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New()
	bus := pubsub.New(cfg.Stream.BufferSize, logger, m)
	models := cache.NewModelCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL)*time.Second)
	reg := registry.New(kvStore, models, bus, logger, m)
	st := store.New(kvStore, bus, logger, m)

	server := api.NewServer(cfg, reg, st, bus, logger, m, "bdd")
	return httptest.NewServer(server), kvStore
}

func TestFeatures(t *testing.T) {
	opts := godog.Options{
		Format:   "pretty",
		Output:   colors.Colored(os.Stdout),
		Paths:    []string{"features"},
		TestingT: t,
	}
	if envTags := os.Getenv("BDD_TAGS"); envTags != "" {
		opts.Tags = envTags
	}

	// External mode: target a running server instead of an in-process one.
	serverURL := os.Getenv("BDD_SERVER_URL")

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			var tc *steps.TestContext

			if serverURL != "" {
				tc = steps.NewTestContext(serverURL)
			} else {
				// In-process: create fresh server per scenario
				ts, kvStore := newTestServer()
				tc = steps.NewTestContext(ts.URL)
				ctx.After(func(gctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
					tc.CloseStream()
					ts.Close()
					kvStore.Close()
					return gctx, nil
				})
			}

			// Register step definitions
			steps.RegisterCollectionSteps(ctx, tc)
			steps.RegisterRecordSteps(ctx, tc)
			steps.RegisterStreamSteps(ctx, tc)
		},
		Options: &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("BDD tests failed")
	}
}
