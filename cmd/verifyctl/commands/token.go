package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	"github.com/smallbiznis/valora-verify/internal/jwt"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <identity>",
		Short: "Issue an identity bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	cmd.Flags().String("secret", envOr("IDENTITY_TOKEN_SECRET", ""), "HS256 signing secret (at least 32 bytes)")
	cmd.Flags().String("issuer", envOr("IDENTITY_TOKEN_ISSUER", "valora"), "token issuer")
	cmd.Flags().String("name", "", "display name claim")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	issuer, _ := cmd.Flags().GetString("issuer")
	name, _ := cmd.Flags().GetString("name")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	identity := verification.IdentityRef(args[0])
	if identity.IsZero() {
		return fmt.Errorf("identity must not be empty")
	}

	gen, err := jwt.NewGenerator([]byte(secret), issuer, ttl)
	if err != nil {
		return fmt.Errorf("token generator: %w", err)
	}
	token, err := gen.Issue(cmd.Context(), identity, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
