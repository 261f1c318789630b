package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/models"
)

func newVerifyCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "verify <call-id>",
		Short: "Ask a running server to replay a recorded call and check its fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(addr, "/") + "/api/verify/" + args[0]
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				return fmt.Errorf("reach server: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}

			var result models.VerificationResult
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("decode verification result: %w", err)
			}

			fmt.Printf("Verification of %s: %s\n", result.ID, strings.ToUpper(result.Status))
			fmt.Printf("  Model:       %s (seed %d)\n", result.Model, result.Seed)
			fmt.Printf("  Recorded FP: %s\n", result.OriginalFingerprint)
			fmt.Printf("  Replayed FP: %s\n", result.VerificationFingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "address of a running verascope server")
	return cmd
}
