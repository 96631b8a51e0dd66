// Command proxy-test exercises a running durchgang proxy from the
// outside: health check, plain HTTP forwarding, CONNECT tunneling and
// concurrent sessions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codefionn/durchgang/durchgang-srv/logger"
)

// TestResult represents the outcome of a single test case.
type TestResult struct {
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Status   int           `json:"status"`
}

// TestSuite manages a collection of test cases against a proxy server.
type TestSuite struct {
	ProxyAddr string
	Client    *http.Client
	Results   []TestResult
}

func main() {
	proxyAddr := flag.String("proxy", "127.0.0.1:6178", "Proxy address (host:port)")
	targetURL := flag.String("target", "http://httpbin.org", "Base URL of an HTTP test target")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	timeout := flag.Int("timeout", 30, "Request timeout in seconds")
	jsonOut := flag.Bool("json", false, "Print results as JSON")
	flag.Parse()

	logger.SetLevel(logger.INFO)
	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	proxyURL, err := url.Parse("http://" + *proxyAddr)
	if err != nil {
		logger.Fatal("Invalid proxy address: %v", err)
	}

	suite := &TestSuite{
		ProxyAddr: *proxyAddr,
		Client: &http.Client{
			Timeout: time.Duration(*timeout) * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		},
	}

	logger.Info("Starting proxy tests against %s", *proxyAddr)

	suite.run("health-check", "http://"+*proxyAddr+"/health", suite.testHealthCheck)
	suite.run("plain-get", *targetURL+"/ip", suite.testBasicGet)
	suite.run("plain-post", *targetURL+"/post", suite.testPost)
	suite.run("connect-tunnel", strings.Replace(*targetURL, "http://", "https://", 1)+"/ip", suite.testBasicGet)
	suite.run("concurrent-tunnels", strings.Replace(*targetURL, "http://", "https://", 1)+"/ip", suite.testConcurrent)

	suite.printResults(*jsonOut)
}

func (ts *TestSuite) run(name, testURL string, test func(string) TestResult) {
	logger.Debug("Running test: %s", name)
	result := test(testURL)
	result.Name = name
	result.URL = testURL
	ts.Results = append(ts.Results, result)
}

// testHealthCheck speaks raw TCP to verify the exact health response.
func (ts *TestSuite) testHealthCheck(string) TestResult {
	start := time.Now()

	conn, err := net.DialTimeout("tcp", ts.ProxyAddr, 5*time.Second)
	if err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Dial failed: %v", err)}
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("Error closing connection: %v", closeErr)
		}
	}()

	_, err = fmt.Fprintf(conn, "GET /health HTTP/1.1\r\nHost: %s\r\n\r\n", ts.ProxyAddr)
	if err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Write failed: %v", err)}
	}

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Deadline failed: %v", err)}
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Read failed: %v", err)}
	}

	alive := strings.Contains(string(body), "Proxy Server is Alive")
	return TestResult{
		Success:  alive,
		Duration: time.Since(start),
		Status:   200,
	}
}

func (ts *TestSuite) testBasicGet(testURL string) TestResult {
	start := time.Now()

	req, err := http.NewRequest(http.MethodGet, testURL, nil)
	if err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Failed to create request: %v", err)}
	}
	req.Header.Set("User-Agent", "durchgang-proxy-test/1.0")

	resp, err := ts.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return TestResult{Duration: duration, Error: fmt.Sprintf("Request failed: %v", err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TestResult{Duration: duration, Status: resp.StatusCode, Error: fmt.Sprintf("Failed to read response: %v", err)}
	}

	logger.Debug("Response for %s: %d bytes, status %d", testURL, len(body), resp.StatusCode)

	return TestResult{
		Success:  resp.StatusCode == http.StatusOK,
		Duration: duration,
		Status:   resp.StatusCode,
	}
}

func (ts *TestSuite) testPost(testURL string) TestResult {
	start := time.Now()

	postData := strings.NewReader("test=data&proxy=durchgang")
	req, err := http.NewRequest(http.MethodPost, testURL, postData)
	if err != nil {
		return TestResult{Duration: time.Since(start), Error: fmt.Sprintf("Failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "durchgang-proxy-test/1.0")

	resp, err := ts.Client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return TestResult{Duration: duration, Error: fmt.Sprintf("Request failed: %v", err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("Error closing response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TestResult{Duration: duration, Status: resp.StatusCode, Error: fmt.Sprintf("Failed to read response: %v", err)}
	}

	success := resp.StatusCode == http.StatusOK && strings.Contains(string(body), "test")
	return TestResult{
		Success:  success,
		Duration: duration,
		Status:   resp.StatusCode,
	}
}

// testConcurrent runs several tunneled requests in parallel to check
// that sessions do not interfere with each other.
func (ts *TestSuite) testConcurrent(testURL string) TestResult {
	start := time.Now()
	const workers = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ts.Client.Get(testURL)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = resp.Body.Close() }()
			if _, err := io.ReadAll(resp.Body); err != nil {
				errs <- err
				return
			}
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()
	close(errs)

	duration := time.Since(start)
	for err := range errs {
		return TestResult{Duration: duration, Error: fmt.Sprintf("Concurrent request failed: %v", err)}
	}

	return TestResult{
		Success:  true,
		Duration: duration,
		Status:   200,
	}
}

func (ts *TestSuite) printResults(asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ts.Results); err != nil {
			logger.Error("Failed to encode results: %v", err)
		}
	} else {
		passed := 0
		for _, r := range ts.Results {
			status := "FAIL"
			if r.Success {
				status = "PASS"
				passed++
			}
			fmt.Printf("%-20s %-5s %8s", r.Name, status, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Printf("  %s", r.Error)
			}
			fmt.Println()
		}
		fmt.Printf("\n%d/%d tests passed\n", passed, len(ts.Results))
	}

	for _, r := range ts.Results {
		if !r.Success {
			os.Exit(1)
		}
	}
}
