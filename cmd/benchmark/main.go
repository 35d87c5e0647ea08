package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Load generator for the booking endpoint. Requires a seeded session
// catalog and a gateway in test mode (every request creates a real
// authorization at the configured processor).
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	sessions    int
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created
	fail404       uint64 // Unknown session
	fail502       uint64 // Gateway rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.IntVar(&sessions, "sessions", 4, "Number of seeded sessions to spread load over")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s", concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, id int, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}

	seq := 0
	for time.Since(start) < duration {
		seq++
		payload := map[string]interface{}{
			"session_id": rand.Intn(sessions) + 1,
			"user_name":  fmt.Sprintf("Bench User %d", id),
			"user_email": fmt.Sprintf("bench-%d-%d@example.com", id, seq),
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/bookings", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 404:
			atomic.AddUint64(&fail404, 1)
		case 502:
			atomic.AddUint64(&fail502, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f404 := atomic.LoadUint64(&fail404)
	f502 := atomic.LoadUint64(&fail502)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_created":  s201,
		"unknown_session":  f404,
		"gateway_rejected": f502,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, _ := os.Create("results_bookings.json")
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
