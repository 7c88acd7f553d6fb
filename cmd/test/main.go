package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
)

type TestClient struct {
	baseURL  string
	username string
	client   *http.Client
}

func NewTestClient(baseURL, username string) *TestClient {
	return &TestClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		// The full pipeline waits on the scraper actor and two model calls.
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the service")
	testType := flag.String("test", "all", "Test type: all, health, metrics, agent-card, full-service, a2a, rewrite")
	username := flag.String("username", "natgeo", "Instagram username for the pipeline tests")
	flag.Parse()

	client := NewTestClient(*baseURL, *username)

	printHeader("Restaurant Recommender - Smoke Tests")
	fmt.Printf("%sBase URL: %s%s\n", colorCyan, *baseURL, colorReset)
	fmt.Printf("%sUsername: @%s%s\n\n", colorCyan, *username, colorReset)

	tests := map[string]func() bool{
		"health":       client.testHealthCheck,
		"metrics":      client.testMetrics,
		"agent-card":   client.testAgentCard,
		"full-service": func() bool { _, ok := client.testFullService(); return ok },
		"a2a":          client.testA2A,
		"rewrite":      client.testRewrite,
	}

	if *testType == "all" {
		client.runAllTests()
		return
	}

	fn, ok := tests[*testType]
	if !ok {
		printError(fmt.Sprintf("Unknown test type: %s", *testType))
		fmt.Println("\nAvailable tests: all, health, metrics, agent-card, full-service, a2a, rewrite")
		os.Exit(1)
	}
	if !fn() {
		os.Exit(1)
	}
}

func (tc *TestClient) runAllTests() {
	tests := []struct {
		name string
		fn   func() bool
	}{
		{"Health Check", tc.testHealthCheck},
		{"Metrics", tc.testMetrics},
		{"Agent Card", tc.testAgentCard},
		{"Full Service and Rewrite", tc.testRewrite},
		{"A2A Task", tc.testA2A},
	}

	passed := 0
	failed := 0

	for _, test := range tests {
		if test.fn() {
			passed++
		} else {
			failed++
		}
		fmt.Println()
	}

	printHeader("Test Summary")
	fmt.Printf("%sPassed: %d%s\n", colorGreen, passed, colorReset)
	fmt.Printf("%sFailed: %d%s\n", colorRed, failed, colorReset)
	fmt.Printf("Total: %d\n", passed+failed)

	if failed > 0 {
		os.Exit(1)
	}
}

func (tc *TestClient) get(path string) (int, []byte, error) {
	fmt.Printf("GET %s%s\n", tc.baseURL, path)
	resp, err := tc.client.Get(tc.baseURL + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func (tc *TestClient) post(path string, payload interface{}) (int, []byte, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return 0, nil, err
	}
	fmt.Printf("POST %s%s\n", tc.baseURL, path)
	fmt.Printf("%sRequest:%s\n%s\n\n", colorYellow, colorReset, string(data))

	resp, err := tc.client.Post(tc.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func (tc *TestClient) testHealthCheck() bool {
	printTestHeader("Testing Health Check Endpoint")

	status, body, err := tc.get("/health")
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		return false
	}
	if string(body) != "OK" {
		printError(fmt.Sprintf("Expected body 'OK', got '%s'", string(body)))
		return false
	}

	printSuccess("Health check passed")
	return true
}

func (tc *TestClient) testMetrics() bool {
	printTestHeader("Testing Metrics Endpoint")

	status, body, err := tc.get("/metrics")
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		return false
	}
	for _, name := range []string{"pipeline_runs_total", "llm_requests_total"} {
		if !strings.Contains(string(body), name) {
			printError(fmt.Sprintf("Metric %s not exposed yet (run a pipeline first)", name))
			return false
		}
	}

	printSuccess("Metrics exposed")
	return true
}

func (tc *TestClient) testAgentCard() bool {
	printTestHeader("Testing Agent Card Endpoint")

	status, body, err := tc.get("/.well-known/agent.json")
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		fmt.Printf("Response: %s\n", string(body))
		return false
	}

	var agentCard map[string]interface{}
	if err := json.Unmarshal(body, &agentCard); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}

	for _, field := range []string{"name", "description", "url", "version", "capabilities", "skills"} {
		if _, ok := agentCard[field]; !ok {
			printError(fmt.Sprintf("Missing required field: %s", field))
			return false
		}
	}

	printSuccess("Agent card is valid")
	printJSON(body)
	return true
}

type fullServiceResponse struct {
	Username        string              `json:"username"`
	RunID           string              `json:"run_id"`
	Recommendations []map[string]string `json:"recommendations"`
	OutputFiles     map[string]string   `json:"output_files"`
	Error           string              `json:"error"`
}

func (tc *TestClient) testFullService() (*fullServiceResponse, bool) {
	printTestHeader("Testing Full Service Endpoint")

	status, body, err := tc.get(fmt.Sprintf("/instagram/%s/full-service?save_outputs=true", url.PathEscape(tc.username)))
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return nil, false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		fmt.Printf("Response: %s\n", string(body))
		return nil, false
	}

	var resp fullServiceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return nil, false
	}
	if resp.Error != "" {
		printError(fmt.Sprintf("Pipeline failed: %s", resp.Error))
		printJSON(body)
		return nil, false
	}

	printSuccess(fmt.Sprintf("Run %s produced %d recommendation(s)", resp.RunID, len(resp.Recommendations)))

	fmt.Printf("\n%sRecommendations:%s\n", colorGreen, colorReset)
	fmt.Println(strings.Repeat("=", 80))
	for i, rec := range resp.Recommendations {
		fmt.Printf("%d. %s (%s)\n   %s\n", i+1, rec["restaurant_name"], rec["restaurant_location"], rec["restaurant_description"])
	}
	fmt.Println(strings.Repeat("=", 80))

	if len(resp.OutputFiles) > 0 {
		fmt.Printf("\n%sOutput files:%s\n", colorPurple, colorReset)
		for stage, path := range resp.OutputFiles {
			fmt.Printf("%s: %s\n", stage, path)
		}
	}
	return &resp, true
}

// testRewrite runs the full service, likes the first recommendation,
// dislikes the rest and asks for a rewritten prompt.
func (tc *TestClient) testRewrite() bool {
	run, ok := tc.testFullService()
	if !ok {
		return false
	}
	fmt.Println()
	printTestHeader("Testing Prompt Rewrite Endpoint")

	feedback := make([]map[string]string, 0, len(run.Recommendations))
	for i, rec := range run.Recommendations {
		entry := map[string]string{}
		for k, v := range rec {
			entry[k] = v
		}
		entry["preference"] = "dislike"
		if i == 0 {
			entry["preference"] = "like"
		}
		feedback = append(feedback, entry)
	}

	status, body, err := tc.post("/rewrite", map[string]interface{}{
		"username":        run.Username,
		"recommendations": feedback,
		"output_files":    run.OutputFiles,
		"sample_feedback": len(feedback) == 0,
	})
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		fmt.Printf("Response: %s\n", string(body))
		return false
	}

	printSuccess("Prompt rewritten")
	printJSON(body)
	return true
}

func (tc *TestClient) testA2A() bool {
	printTestHeader("Testing A2A Recommender")

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("test-%d", time.Now().Unix()),
		"method":  "message/send",
		"params": map[string]interface{}{
			"message": map[string]interface{}{
				"kind": "message",
				"role": "user",
				"parts": []map[string]interface{}{
					{
						"kind": "text",
						"text": "@" + tc.username,
					},
				},
			},
			"configuration": map[string]interface{}{
				"blocking":            true,
				"acceptedOutputModes": []string{"text", "data"},
			},
		},
	}

	status, body, err := tc.post("/a2a/recommender", request)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		fmt.Printf("Response: %s\n", string(body))
		return false
	}

	var response struct {
		Error  interface{} `json:"error"`
		Result struct {
			Status struct {
				State   string `json:"state"`
				Message struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"message"`
			} `json:"status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	if response.Error != nil {
		printError("Request returned an error")
		printJSON(body)
		return false
	}
	if response.Result.Status.State != "completed" {
		printError(fmt.Sprintf("Expected state 'completed', got '%s'", response.Result.Status.State))
		printJSON(body)
		return false
	}

	printSuccess("A2A task completed successfully")
	fmt.Println(strings.Repeat("=", 80))
	for _, part := range response.Result.Status.Message.Parts {
		fmt.Println(part.Text)
	}
	fmt.Println(strings.Repeat("=", 80))
	return true
}

func printHeader(text string) {
	fmt.Printf("\n%s%s%s\n", colorBlue, strings.Repeat("=", len(text)+4), colorReset)
	fmt.Printf("%s= %s =%s\n", colorBlue, text, colorReset)
	fmt.Printf("%s%s%s\n\n", colorBlue, strings.Repeat("=", len(text)+4), colorReset)
}

func printTestHeader(text string) {
	fmt.Printf("%s[TEST] %s%s\n", colorCyan, text, colorReset)
	fmt.Println(strings.Repeat("-", 80))
}

func printSuccess(text string) {
	fmt.Printf("%s✓ %s%s\n", colorGreen, text, colorReset)
}

func printError(text string) {
	fmt.Printf("%s✗ %s%s\n", colorRed, text, colorReset)
}

func printJSON(data []byte) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		fmt.Printf("\n%sResponse:%s\n%s\n", colorYellow, colorReset, string(pretty))
	}
}
