package main

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
)

const (
	baseURL      = "http://127.0.0.1:18090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numUsers     = 2000
)

var (
	users  = makeUsers(numUsers)
	token  = os.Getenv("RLD_COMMAND_TOKEN")
	refSeq atomic.Int64
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

type result struct {
	endpoint string
	latency  time.Duration
	failed   bool
}

type op struct {
	weight int
	run    func(rng *rand.Rand) result
}

type phase struct {
	name string
	ops  []op
}

// pick chooses an op with probability proportional to its weight.
func (p phase) pick(rng *rand.Rand) op {
	total := 0
	for _, o := range p.ops {
		total += o.weight
	}
	n := rng.Intn(total)
	for _, o := range p.ops {
		if n < o.weight {
			return o
		}
		n -= o.weight
	}
	return p.ops[len(p.ops)-1]
}

// collector aggregates latencies per endpoint.
type collector struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration
	failures  map[string]int
}

func newCollector() *collector {
	return &collector{latencies: map[string][]time.Duration{}, failures: map[string]int{}}
}

func (c *collector) add(r result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies[r.endpoint] = append(c.latencies[r.endpoint], r.latency)
	if r.failed {
		c.failures[r.endpoint]++
	}
}

func makeUsers(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}
	return out
}

func main() {
	fmt.Println("=== referrald Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s | Users: %d\n", numWorkers, testDuration, numUsers)

	if !waitForServer(30) {
		fmt.Println("FAILED: server not responding")
		return
	}

	phases := []phase{
		// Most binds after the first pass are rejected as already bound.
		{"bind referrers", []op{{1, doBind}}},
		{"mixed", []op{{60, doReward}, {10, doActivity}, {20, doGetUser}, {10, doGetChain}}},
		{"read heavy", []op{{10, doReward}, {50, doGetUser}, {20, doGetChain}, {10, doBatch}, {10, func(*rand.Rand) result { return doGetEvents() }}}},
	}
	for _, p := range phases {
		fmt.Printf("\n--- Phase: %s ---\n", p.name)
		report(run(p, testDuration), testDuration)
	}
}

func waitForServer(attempts int) bool {
	for i := 0; i < attempts; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func run(p phase, duration time.Duration) *collector {
	c := newCollector()
	deadline := time.Now().Add(duration)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				c.add(p.pick(rng).run(rng))
			}
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()
	return c
}

func report(c *collector, duration time.Duration) {
	endpoints := make([]string, 0, len(c.latencies))
	for ep := range c.latencies {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("  %-16s %8s %6s %10s %10s %10s\n", "Endpoint", "Reqs", "Fail", "P50", "P95", "P99")
	var total, failed int
	for _, ep := range endpoints {
		lat := c.latencies[ep]
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		total += len(lat)
		failed += c.failures[ep]
		fmt.Printf("  %-16s %8d %6d %10s %10s %10s\n",
			ep, len(lat), c.failures[ep], quantile(lat, 0.50), quantile(lat, 0.95), quantile(lat, 0.99))
	}
	if total == 0 {
		return
	}
	fmt.Printf("  %s\n  Total: %d reqs | Failed: %d (%.1f%%) | RPS: %.0f\n",
		strings.Repeat("-", 66), total, failed, float64(failed)/float64(total)*100, float64(total)/duration.Seconds())
}

// quantile expects sorted input.
func quantile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := min(int(float64(len(sorted))*q), len(sorted)-1)
	return sorted[idx].Round(time.Microsecond)
}

func post(endpoint, path string, body any, okStatus int) result {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, lat, resp.StatusCode != okStatus}
}

func get(endpoint, url string) result {
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, lat, resp.StatusCode != http.StatusOK}
}

// doBind links user i to a lower-numbered user, so the graph stays acyclic.
func doBind(rng *rand.Rand) result {
	i := rng.Intn(numUsers-1) + 1
	return post("POST /bind", "/bind", map[string]string{
		"subject":  users[i].Hex(),
		"referrer": users[rng.Intn(i)].Hex(),
	}, http.StatusOK)
}

func doReward(rng *rand.Rand) result {
	amount := new(big.Int).Mul(big.NewInt(rng.Int63n(100)+1), big.NewInt(1e16))
	return post("POST /reward", "/reward", map[string]string{
		"subject":   users[rng.Intn(numUsers)].Hex(),
		"amount":    amount.String(),
		"reference": fmt.Sprintf("load-%d-%d", os.Getpid(), refSeq.Add(1)),
	}, http.StatusOK)
}

func doActivity(rng *rand.Rand) result {
	return post("POST /activity", "/activity", map[string]string{
		"subject": users[rng.Intn(numUsers)].Hex(),
	}, http.StatusNoContent)
}

func doBatch(rng *rand.Rand) result {
	addrs := make([]string, 20)
	for i := range addrs {
		addrs[i] = users[rng.Intn(numUsers)].Hex()
	}
	return post("POST /users", "/users", map[string][]string{"addresses": addrs}, http.StatusOK)
}

func doGetUser(rng *rand.Rand) result {
	return get("GET /user", fmt.Sprintf("%s/user?address=%s", baseURL, users[rng.Intn(numUsers)].Hex()))
}

func doGetChain(rng *rand.Rand) result {
	return get("GET /chain", fmt.Sprintf("%s/chain?address=%s", baseURL, users[rng.Intn(numUsers)].Hex()))
}

func doGetEvents() result {
	return get("GET /events", baseURL+"/events?limit=100")
}
