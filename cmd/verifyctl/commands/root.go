// Package commands implements verifyctl, the operator CLI for issuing
// identity tokens, reading verification status and checking proofs offline.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "verifyctl",
		Short: "Operate a valora-verify deployment",
		Long: `verifyctl issues identity tokens for testing, reports verification status
for an identity and checks stored proofs against a Groth16 verifying key.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("api-url", envOr("VERIFY_API_URL", "http://localhost:8080"), "valora-verify base URL")

	root.AddCommand(newTokenCommand(), newStatusCommand(), newProofCommand())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
