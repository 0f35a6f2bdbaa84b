// Command floodgate-loadtest runs synthetic load against a running gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"floodgate/pkg/cli"
)

// config captures command-line configuration for the load test.
type config struct {
	BaseURL        string
	Path           string
	Duration       time.Duration
	Concurrency    int
	Rate           float64
	Clients        int
	RequestTimeout time.Duration
}

// loadtestStats aggregates counters and latency samples.
type loadtestStats struct {
	allowedCount uint64
	limitedCount uint64
	otherCount   uint64
	errorCount   uint64

	mu        sync.Mutex
	latencies []int64
}

func main() {
	cfg := parseConfig()
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	stats := runLoad(ctx, cfg)
	printSummary(cfg, stats)
}

// parseConfig reads flags and builds a config.
func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.BaseURL, "base-url", "http://localhost:8090", "gateway base URL")
	flag.StringVar(&cfg.Path, "path", "/", "request path")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.Concurrency, "concurrency", 50, "concurrent workers")
	flag.Float64Var(&cfg.Rate, "rate", 0, "target requests per second across all workers (0 = unpaced)")
	flag.IntVar(&cfg.Clients, "clients", 10, "distinct simulated client IPs")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 2*time.Second, "per-request timeout")
	flag.Parse()
	return cfg
}

// validate ensures the configuration is usable.
func (c config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative")
	}
	if c.Clients <= 0 {
		return fmt.Errorf("clients must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be positive")
	}
	return nil
}

// runLoad executes the concurrent load until the context expires. When a
// target rate is set, a shared token-bucket pacer spreads requests evenly
// across workers.
func runLoad(ctx context.Context, cfg config) *loadtestStats {
	stats := &loadtestStats{
		latencies: make([]int64, 0, cfg.Concurrency*16),
	}

	var pacer *rate.Limiter
	if cfg.Rate > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Concurrency)
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	target := strings.TrimRight(cfg.BaseURL, "/") + cfg.Path

	// With a target rate the total request count is known up front, so a
	// progress bar can track it.
	progressDone := make(chan struct{})
	if pacer != nil {
		progress := cli.NewProgressReporter(os.Stdout)
		progress.Start(int64(cfg.Rate * cfg.Duration.Seconds()))
		go func() {
			defer close(progressDone)
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					progress.Finish()
					return
				case <-ticker.C:
					progress.Update(int64(stats.totalRequests()))
				}
			}
		}()
	} else {
		close(progressDone)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						return
					}
				} else {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					atomic.AddUint64(&stats.errorCount, 1)
					continue
				}
				// Spread traffic across simulated clients so per-IP
				// policies partition it.
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.0.%d", rng.Intn(cfg.Clients)+1))

				start := time.Now()
				resp, err := client.Do(req)
				stats.recordLatency(time.Since(start))
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					atomic.AddUint64(&stats.errorCount, 1)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				switch {
				case resp.StatusCode == http.StatusTooManyRequests:
					atomic.AddUint64(&stats.limitedCount, 1)
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddUint64(&stats.allowedCount, 1)
				default:
					atomic.AddUint64(&stats.otherCount, 1)
				}
			}
		}(int64(i + 1))
	}
	wg.Wait()
	<-progressDone
	return stats
}

// printSummary renders load test metrics to stdout.
func printSummary(cfg config, stats *loadtestStats) {
	elapsed := cfg.Duration.Seconds()
	allowed := atomic.LoadUint64(&stats.allowedCount)
	limited := atomic.LoadUint64(&stats.limitedCount)
	other := atomic.LoadUint64(&stats.otherCount)
	errors := atomic.LoadUint64(&stats.errorCount)
	total := allowed + limited + other

	fmt.Println("floodgate load test summary")
	fmt.Printf("target: %s duration: %s concurrency: %d clients: %d\n", cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.Clients)
	fmt.Printf("requests/sec: %.2f\n", float64(total)/elapsed)
	fmt.Printf("allowed: %d limited: %d other: %d errors: %d\n", allowed, limited, other, errors)
	if total > 0 {
		fmt.Printf("limited ratio: %.1f%%\n", float64(limited)/float64(total)*100)
	}
	fmt.Printf("latency p50=%s p95=%s p99=%s\n",
		percentileDuration(stats.latencies, 0.50),
		percentileDuration(stats.latencies, 0.95),
		percentileDuration(stats.latencies, 0.99),
	)
}

// totalRequests returns the number of completed requests so far.
func (s *loadtestStats) totalRequests() uint64 {
	return atomic.LoadUint64(&s.allowedCount) +
		atomic.LoadUint64(&s.limitedCount) +
		atomic.LoadUint64(&s.otherCount) +
		atomic.LoadUint64(&s.errorCount)
}

// recordLatency appends a latency sample.
func (s *loadtestStats) recordLatency(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d.Nanoseconds())
	s.mu.Unlock()
}

// percentileDuration computes a duration percentile for samples in nanoseconds.
func percentileDuration(samples []int64, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	copySamples := append([]int64(nil), samples...)
	sort.Slice(copySamples, func(i, j int) bool { return copySamples[i] < copySamples[j] })
	if p <= 0 {
		return time.Duration(copySamples[0])
	}
	if p >= 1 {
		return time.Duration(copySamples[len(copySamples)-1])
	}
	pos := int(float64(len(copySamples)-1) * p)
	return time.Duration(copySamples[pos])
}
