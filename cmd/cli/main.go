package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	sessionID string
	language  string
	wait      bool
	pollEvery time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "runner-cli",
		Short: "CLI client for code-runner",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RUNNER_API_KEY"), "API key")

	// Session creation
	root.AddCommand(&cobra.Command{
		Use:   "session",
		Short: "Create a new code session",
		RunE:  runSession,
	})

	// Submit code
	runCmd := &cobra.Command{
		Use:   "run [code]",
		Short: "Submit code for execution (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSubmit,
	}
	runCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (required)")
	runCmd.Flags().StringVarP(&language, "language", "l", "python", "Language (python, javascript)")
	runCmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the execution reaches a terminal state")
	runCmd.Flags().DurationVar(&pollEvery, "poll-interval", 500*time.Millisecond, "Polling interval with --wait")
	runCmd.MarkFlagRequired("session")
	root.AddCommand(runCmd)

	// Execution status
	root.AddCommand(&cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show an execution's current state",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	})

	// List a session's executions
	root.AddCommand(&cobra.Command{
		Use:   "list [session-id]",
		Short: "List a session's executions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSession(_ *cobra.Command, _ []string) error {
	result, err := doJSON("POST", "/api/code-sessions", nil)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var code string
	if len(args) > 0 {
		code = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		code = string(data)
	}

	payload := map[string]any{
		"code":     code,
		"language": language,
	}
	result, err := doJSON("POST", "/api/code-sessions/"+sessionID+"/run", payload)
	if err != nil {
		return err
	}

	if !wait {
		printJSON(result)
		return nil
	}

	execID, ok := result["execution_id"].(string)
	if !ok {
		printJSON(result)
		return fmt.Errorf("submission rejected")
	}

	// Poll until terminal. The worker owns the timeout, so an upper bound
	// here only guards against a dead worker.
	deadline := time.Now().Add(2 * time.Minute)
	for {
		exec, err := doJSON("GET", "/api/executions/"+execID, nil)
		if err != nil {
			return err
		}
		status, _ := exec["status"].(string)
		if status != "QUEUED" && status != "RUNNING" {
			printJSON(exec)
			if status != "COMPLETED" {
				os.Exit(1)
			}
			return nil
		}
		if time.Now().After(deadline) {
			printJSON(exec)
			return fmt.Errorf("gave up waiting on execution %s", execID)
		}
		time.Sleep(pollEvery)
	}
}

func runStatus(_ *cobra.Command, args []string) error {
	result, err := doJSON("GET", "/api/executions/"+args[0], nil)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func runList(_ *cobra.Command, args []string) error {
	req, err := newRequest("GET", "/api/code-sessions/"+args[0]+"/executions", nil)
	if err != nil {
		return err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	result, err := doJSON("GET", "/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	printJSON(result)
	return nil
}

func doJSON(method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := newRequest(method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result, nil
}

func newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return req, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func printJSON(v any) {
	formatted, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(formatted))
}
