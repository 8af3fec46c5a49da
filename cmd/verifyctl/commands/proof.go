package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	registryadapter "github.com/smallbiznis/valora-verify/internal/adapter/registry"
	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/repository"
	"github.com/smallbiznis/valora-verify/internal/zk"
)

func newProofCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Work with stored proofs",
	}

	verify := &cobra.Command{
		Use:   "verify <payload.json>",
		Short: "Check a registry proof payload against a verifying key",
		Long: `verify reads a POST /v1/proofs payload and checks that the proof verifies and
that its public inputs bind the payload's identity, channel, claim and metrics.
The verifying key is read from --vk, or downloaded from the API when --vk is
not set.`,
		Args: cobra.ExactArgs(1),
		RunE: runProofVerify,
	}
	verify.Flags().String("vk", "", "path to a binary Groth16 verifying key")

	cmd.AddCommand(verify)
	return cmd
}

func runProofVerify(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	var payload registryadapter.ProofPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	verifier, err := loadVerifier(cmd)
	if err != nil {
		return err
	}

	req := payload.Request()
	if err := repository.CheckProof(verifier, req); err != nil {
		return fmt.Errorf("proof rejected: %w", err)
	}

	claim, _ := verification.ClaimTypeFromWireCode(req.ClaimTypeCode)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "proof valid\n")
	fmt.Fprintf(out, "  identity    : %s\n", req.Identity)
	fmt.Fprintf(out, "  channel     : %s\n", req.ChannelID)
	fmt.Fprintf(out, "  claim       : %s\n", claim)
	fmt.Fprintf(out, "  subscribers : %s\n", humanize.Comma(int64(req.SubscriberCount)))
	fmt.Fprintf(out, "  views       : %s\n", humanize.Comma(int64(req.ViewCount)))
	fmt.Fprintf(out, "  videos      : %s\n", humanize.Comma(int64(req.VideoCount)))
	return nil
}

func loadVerifier(cmd *cobra.Command) (*zk.Verifier, error) {
	path, _ := cmd.Flags().GetString("vk")
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open verifying key: %w", err)
		}
		defer f.Close()
		return zk.NewVerifier(f)
	}

	apiURL, _ := cmd.Flags().GetString("api-url")
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(apiURL, "/")+"/verify/zk/verifying-key", nil)
	if err != nil {
		return nil, err
	}
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("download verifying key: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download verifying key: API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("download verifying key: %w", err)
	}
	return zk.NewVerifier(bytes.NewReader(body))
}
