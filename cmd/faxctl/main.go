// Package main implements the faxctl CLI for manual operations against the faxd HTTP server.
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
	// serverURL is the base URL for the faxd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "faxctl",
	Short: "CLI for faxd HTTP server operations",
	Long: `faxctl is a command-line interface for interacting with the faxd HTTP server.
It provides commands for processing fax text, saving corrections, and checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "faxd server URL")
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(correctionsCmd)
	rootCmd.AddCommand(healthCmd)
}

// processCmd runs a document through the pipeline
var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process fax text from a file or stdin",
	Long: `Process OCR'd fax text through the faxd pipeline and print the
extracted fields as JSON.

Examples:
  # Process a file
  faxctl process fax.txt

  # Process from stdin
  pdftotext fax.pdf - | faxctl process -

  # Use a different server
  faxctl process --server http://localhost:9090 fax.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

var (
	correctField string
	correctValue string
)

// correctCmd saves an operator correction
var correctCmd = &cobra.Command{
	Use:   "correct [file]",
	Short: "Save a correction for a document",
	Long: `Save an operator correction for the document in the given file (or stdin).
Future documents similar to this one will have the field overridden.

Examples:
  # Correct the provider on a fax
  faxctl correct --field provider_name --value "Asim Ali" fax.txt

  # Correct the document type from stdin
  cat fax.txt | faxctl correct --field doc_type --value "Prior Authorization" -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCorrect,
}

// correctionsCmd lists stored corrections
var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "List stored corrections",
	RunE:  runListCorrections,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check faxd server health",
	Long: `Check the health status of the faxd HTTP server.

Examples:
  # Check health
  faxctl health

  # Check health on a different server
  faxctl health --server http://localhost:9090`,
	RunE: runHealth,
}

func init() {
	correctCmd.Flags().StringVar(&correctField, "field", "", "field to correct (patient_name, date_of_birth, provider_name, doc_type, doc_subtype, comment)")
	correctCmd.Flags().StringVar(&correctValue, "value", "", "corrected value")
	_ = correctCmd.MarkFlagRequired("field")
	_ = correctCmd.MarkFlagRequired("value")
}

// ProcessRequest matches internal/server ProcessRequest
type ProcessRequest struct {
	Text string `json:"text"`
}

// CorrectionRequest matches internal/server CorrectionRequest
type CorrectionRequest struct {
	Text  string `json:"text"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// CorrectionResponse matches internal/server CorrectionResponse
type CorrectionResponse struct {
	ID string `json:"id"`
}

// HealthResponse matches internal/server HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// readInput reads from the named file, or stdin when args is empty or "-".
func readInput(args []string) (string, error) {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(content) == 0 {
		return "", fmt.Errorf("no document text provided")
	}
	return string(content), nil
}

// postJSON sends a JSON request and returns the raw response body for
// statuses in wantStatus, or an error carrying the server's message.
func postJSON(path string, body any, timeout time.Duration, wantStatus int) ([]byte, error) {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		if readErr != nil {
			return nil, fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}
	return respBody, nil
}

// runProcess handles the process command
func runProcess(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return err
	}

	// Pipeline runs can take a while: four LLM calls plus correction lookups.
	respBody, err := postJSON("/api/v1/process", ProcessRequest{Text: text}, 5*time.Minute, http.StatusOK)
	if err != nil {
		return err
	}

	// Re-indent for the terminal
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

// runCorrect handles the correct command
func runCorrect(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return err
	}

	respBody, err := postJSON("/api/v1/corrections", CorrectionRequest{
		Text:  text,
		Field: correctField,
		Value: correctValue,
	}, 60*time.Second, http.StatusCreated)
	if err != nil {
		return err
	}

	var correctionResp CorrectionResponse
	if err := json.Unmarshal(respBody, &correctionResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Saved correction %s (%s = %q)\n", correctionResp.ID, correctField, correctValue)
	return nil
}

// runListCorrections handles the corrections command
func runListCorrections(cmd *cobra.Command, args []string) error {
	url := serverURL + "/api/v1/corrections"

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if readErr != nil {
		return fmt.Errorf("failed to read response: %w", readErr)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := serverURL + "/health"

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}
