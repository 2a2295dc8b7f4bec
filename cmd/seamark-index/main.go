// Command seamark-index rebuilds the vector index offline: it walks every
// website in the store and embeds them in batches. Meant for initial backfill
// or disaster recovery; the running service keeps the index current on its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/seamark-nav/seamark/internal/config"
	"github.com/seamark-nav/seamark/internal/domain"
	logpkg "github.com/seamark-nav/seamark/internal/logger"
	vectorrepo "github.com/seamark-nav/seamark/internal/repository/vector"
	websiterepo "github.com/seamark-nav/seamark/internal/repository/website"
	openaiClient "github.com/seamark-nav/seamark/internal/transport/openai"
	vectorsearchuc "github.com/seamark-nav/seamark/internal/usecase/vectorsearch"
)

func main() {
	skipExisting := flag.Bool("skip-existing", true, "skip websites that already have a vector")
	chunkSize := flag.Int("chunk", 10, "websites per embedding batch")
	flag.Parse()

	if err := run(*skipExisting, *chunkSize); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(skipExisting bool, chunkSize int) error {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.VectorConfigured() {
		return fmt.Errorf("vector indexing: %w", domain.ErrConfigIncomplete)
	}
	if chunkSize <= 0 {
		chunkSize = 10
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	websites, err := websiterepo.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open website store: %w", err)
	}
	defer func() { _ = websites.Close() }()

	vecStore, err := vectorrepo.NewStore(vectorrepo.Config{
		Addrs:    cfg.Vector.Addrs,
		Password: cfg.Vector.Password,
	}, logger)
	if err != nil {
		return fmt.Errorf("create vector store: %w", err)
	}
	defer vecStore.Close()

	ctx := context.Background()
	if err := vecStore.WaitForReady(ctx, time.Duration(cfg.Vector.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("vector store not ready: %w", err)
	}

	embedder := openaiClient.NewEmbedder(&openaiClient.EmbedderConfig{
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.EmbeddingModel,
		Logger:  logger,
	})
	svc := vectorsearchuc.New(embedder, vecStore, cfg.Vector.MaxResults, cfg.Vector.Threshold, logger)

	sites, err := websites.All(ctx)
	if err != nil {
		return fmt.Errorf("list websites: %w", err)
	}
	logger.Info("Backfill started",
		zap.Int("total", len(sites)),
		zap.Bool("skip_existing", skipExisting),
		zap.Int("chunk", chunkSize),
	)

	if skipExisting {
		ids := make([]int64, len(sites))
		for i, w := range sites {
			ids[i] = w.ID
		}
		existing, err := svc.Existing(ctx, ids)
		if err != nil {
			logger.Warn("Existing-vector probe failed, indexing everything", zap.Error(err))
		} else {
			kept := sites[:0]
			for _, w := range sites {
				if !existing[w.ID] {
					kept = append(kept, w)
				}
			}
			logger.Info("Skipping already indexed websites", zap.Int("skipped", len(sites)-len(kept)))
			sites = kept
		}
	}

	stored := 0
	for i := 0; i < len(sites); i += chunkSize {
		chunk := sites[i:min(i+chunkSize, len(sites))]
		n, err := svc.IndexBatch(ctx, chunk)
		stored += n
		if err != nil {
			return fmt.Errorf("index batch at offset %d (stored %d so far): %w", i, stored, err)
		}
		logger.Info("Progress",
			zap.Int("processed", min(i+chunkSize, len(sites))),
			zap.Int("remaining", max(0, len(sites)-i-chunkSize)),
			zap.Int("stored", stored),
		)
	}

	logger.Info("Backfill finished", zap.Int("stored", stored), zap.Int("total", len(sites)))
	return nil
}
