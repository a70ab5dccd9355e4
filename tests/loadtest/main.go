package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crawlerd/internal/agent"
	"crawlerd/internal/compression"
	"crawlerd/internal/crawlers"
	"crawlerd/internal/models"
)

const (
	baseURL      = "http://127.0.0.1:8090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numPaths     = 500
	maxBatch     = 20
)

var (
	domains    = []string{"example.com", "docs.example.com", "shop.example.com"}
	userAgents = []string{
		"Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.2; +https://openai.com/gptbot)",
		"Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)",
		"Mozilla/5.0 (compatible; PerplexityBot/1.0; +https://perplexity.ai/perplexitybot)",
		"Mozilla/5.0 (compatible; Google-Extended)",
		"CCBot/2.0 (https://commoncrawl.org/faq/)",
	}
	countries = []string{"US", "DE", "FR", "GB", "JP", ""}
)

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

// apiKey must be a key the server accepts, e.g. sk_dev_local with the sample config.
var apiKey = envOr("CRAWLERD_LOADTEST_KEY", "sk_dev_local")

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	fmt.Println("=== crawlerd Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Max batch: %d\n\n", numWorkers, testDuration, maxBatch)

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	comp, err := compression.NewZstdCompressor()
	if err != nil {
		fmt.Println("FAILED: compressor:", err)
		return
	}
	defer comp.Close()
	plain := agent.NewHTTPTransport(baseURL, apiKey, httpClient, nil)
	zstd := agent.NewHTTPTransport(baseURL, apiKey, httpClient, comp)

	res, err := plain.Ping(context.Background())
	if err != nil || res.Connection == nil {
		fmt.Println("FAILED: ping:", err)
		return
	}
	fmt.Printf("Authenticated as %q\n", res.Connection.KeyName)

	fmt.Println("\n--- Phase 1: Batched ingest (POST /events) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doSend(rng, plain, "POST /events")
	})

	fmt.Println("\n--- Phase 2: Mixed load (50% plain, 20% zstd, 30% GET) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.50:
			return doSend(rng, plain, "POST /events")
		case r < 0.70:
			return doSend(rng, zstd, "POST /events zstd")
		case r < 0.95:
			return doGetStats(rng)
		default:
			return doGetCrawlers()
		}
	})

	fmt.Println("\n--- Phase 3: Agents (Track + Destroy) ---")
	runAgents(testDuration)
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

// runAgents drives one Agent per worker the way an instrumented site would
// and reports the batches the agents had to drop.
func runAgents(duration time.Duration) {
	var tracked, dropped atomic.Int64
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		a, err := agent.New(agent.Config{
			Endpoint:      baseURL,
			APIKey:        apiKey,
			BatchSize:     maxBatch,
			BatchInterval: 500 * time.Millisecond,
			Compress:      i%2 == 0,
		}, agent.WithHTTPClient(httpClient), agent.WithOnError(func(be *agent.BatchError) {
			dropped.Add(int64(len(be.Events)))
		}))
		if err != nil {
			fmt.Println("FAILED: agent:", err)
			return
		}
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					_ = a.Destroy(ctx)
					cancel()
					return
				default:
					a.Track(randomInput(rng))
					tracked.Add(1)
					time.Sleep(time.Millisecond)
				}
			}
		}(rand.Int63() + int64(i))
	}

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	fmt.Printf("  Tracked: %d | Dropped: %d | Rate: %.0f ev/s\n",
		tracked.Load(), dropped.Load(), float64(tracked.Load())/duration.Seconds())
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func randomInput(rng *rand.Rand) agent.EventInput {
	status := 200
	if rng.Float64() < 0.05 {
		status = 404
	}
	rt := rng.Intn(400) + 5
	return agent.EventInput{
		Domain:         domains[rng.Intn(len(domains))],
		Path:           fmt.Sprintf("/page/%d", rng.Intn(numPaths)),
		UserAgent:      userAgents[rng.Intn(len(userAgents))],
		StatusCode:     &status,
		ResponseTimeMs: &rt,
		Country:        countries[rng.Intn(len(countries))],
	}
}

func randomBatch(rng *rand.Rand) []*models.CrawlerEvent {
	n := rng.Intn(maxBatch) + 1
	batch := make([]*models.CrawlerEvent, 0, n)
	for i := 0; i < n; i++ {
		in := randomInput(rng)
		identity := crawlers.Classify(in.UserAgent)
		if identity == nil {
			continue
		}
		batch = append(batch, &models.CrawlerEvent{
			Timestamp:      time.Now().UTC(),
			Domain:         in.Domain,
			Path:           in.Path,
			Crawler:        *identity,
			UserAgent:      in.UserAgent,
			StatusCode:     in.StatusCode,
			ResponseTimeMs: in.ResponseTimeMs,
			Country:        in.Country,
		})
	}
	return batch
}

func doSend(rng *rand.Rand, t agent.Transport, label string) result {
	batch := randomBatch(rng)
	start := time.Now()
	err := t.Send(context.Background(), batch)
	lat := time.Since(start)
	if err != nil {
		status := 0
		if se, ok := err.(*agent.SendError); ok {
			status = se.StatusCode
		}
		return result{label, status, lat, true}
	}
	return result{label, http.StatusOK, lat, false}
}

func doGetStats(rng *rand.Rand) result {
	url := fmt.Sprintf("%s/stats?domain=%s", baseURL, domains[rng.Intn(len(domains))])
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{"GET /stats", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"GET /stats", resp.StatusCode, lat, resp.StatusCode != 200}
}

func doGetCrawlers() result {
	start := time.Now()
	resp, err := httpClient.Get(baseURL + "/crawlers")
	lat := time.Since(start)
	if err != nil {
		return result{"GET /crawlers", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{"GET /crawlers", resp.StatusCode, lat, resp.StatusCode != 200}
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
