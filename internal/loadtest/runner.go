package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/detflow/pkg/logger"
)

// Run executes the complete load test and returns its statistics. It fails
// when the service is unreachable or any learner's submission count does
// not match the answers sent.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	log := logger.Named("loadtest")
	stats := Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("callers", cfg.Callers),
		logger.Int("answersPerCaller", cfg.AnswersPerCaller),
		logger.Int("workers", cfg.Workers))

	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	convs := Generate(cfg)
	stats.Conversations = len(convs)
	if cfg.OutputFile != "" {
		if err := save(cfg.OutputFile, convs); err != nil {
			log.Warn(ctx, "failed to save conversations", logger.Error(err))
		}
	}

	if err := converse(ctx, c, cfg.Workers, convs, &stats); err != nil {
		return stats, err
	}
	verify(ctx, c, cfg.Workers, convs, &stats)

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("replied", stats.Replied),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("apologies", stats.Apologies),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Int("mismatched", stats.Mismatched),
		logger.Duration("duration", stats.Duration))

	if stats.Mismatched > 0 {
		return stats, fmt.Errorf("%d learners have unexpected submission counts", stats.Mismatched)
	}
	return stats, nil
}

// converse plays every conversation, learners in parallel and each
// learner's messages in order.
func converse(ctx context.Context, c *client, workers int, convs []Conversation, stats *Stats) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, conv := range convs {
		g.Go(func() error {
			for _, m := range conv.Messages {
				r, err := c.send(gctx, m)
				mu.Lock()
				stats.Sent++
				switch {
				case err != nil:
					stats.Failed++
				case r.Duplicate:
					stats.Duplicates++
				case !r.Success:
					stats.Apologies++
					stats.Replied++
				default:
					stats.Replied++
				}
				mu.Unlock()
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// verify compares each learner's stored submission count with the answers
// sent.
func verify(ctx context.Context, c *client, workers int, convs []Conversation, stats *Stats) {
	log := logger.Named("loadtest")
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for _, conv := range convs {
		g.Go(func() error {
			view, err := c.caller(ctx, conv.Phone)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Mismatched++
				log.Warn(ctx, "caller lookup failed", logger.String("phone", conv.Phone), logger.Error(err))
			case view.TotalSubmissions != conv.Answers:
				stats.Mismatched++
				log.Warn(ctx, "submission count mismatch",
					logger.String("phone", conv.Phone),
					logger.Int("want", conv.Answers),
					logger.Int("got", view.TotalSubmissions))
			default:
				stats.Verified++
			}
			return nil
		})
	}
	_ = g.Wait()
}

func save(path string, convs []Conversation) error {
	data, err := json.MarshalIndent(convs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
