package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Each simulated employee punches in for office, starts and ends a break and
// punches out again. Run it against cmd/api with STORAGE_BACKEND=memory and
// a late threshold that has not passed yet.
func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1/attendance", "attendance API base URL")
	numEmployees := flag.Int("employees", 2000, "number of simulated employees")
	concurrency := flag.Int("concurrency", 50, "concurrent employees")
	flag.Parse()

	steps := []struct {
		path string
		body string
	}{
		{"/punch-in", `{"movement_type":"office","latitude":52.52,"longitude":13.405}`},
		{"/break/start", ""},
		{"/break/end", ""},
		{"/punch-out", `{"movement_type":"office","latitude":52.52,"longitude":13.405}`},
	}
	totalRequests := *numEmployees * len(steps)

	fmt.Printf("Starting load test: %d employees (%d requests each) to %s with concurrency %d\n",
		*numEmployees, len(steps), *baseURL, *concurrency)

	client := &http.Client{Timeout: 10 * time.Second}
	runID := time.Now().Unix()

	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency) // Semaphore to limit concurrency

	var successCount, failCount int64
	startTime := time.Now()

	for i := 0; i < *numEmployees; i++ {
		wg.Add(1)
		sem <- struct{}{}

		employeeID := fmt.Sprintf("load-test-%d-emp-%d", runID, i)

		go func(empID string) {
			defer wg.Done()
			defer func() { <-sem }()

			for _, step := range steps {
				req, err := http.NewRequest(http.MethodPost, *baseURL+step.path, bytes.NewBufferString(step.body))
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Employee-ID", empID)

				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&failCount, 1)
					continue
				}
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					atomic.AddInt64(&successCount, 1)
				} else {
					atomic.AddInt64(&failCount, 1)
				}
				resp.Body.Close()
			}
		}(employeeID)
	}

	wg.Wait()
	duration := time.Since(startTime)

	fmt.Println("\n--- Load Test Results ---")
	fmt.Printf("Total Duration: %v\n", duration)
	fmt.Printf("Total Requests: %d\n", totalRequests)
	fmt.Printf("Successful:     %d\n", successCount)
	fmt.Printf("Failed:         %d\n", failCount)
	fmt.Printf("Requests/Sec:   %.2f\n", float64(totalRequests)/duration.Seconds())
}
