package jwt_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
	customjwt "github.com/smallbiznis/valora-verify/internal/jwt"
)

var testSecret = []byte(strings.Repeat("s", 48))

func TestGeneratorRoundTrip(t *testing.T) {
	generator, err := customjwt.NewGenerator(testSecret, "https://id.valora.test", time.Hour)
	require.NoError(t, err)

	token, err := generator.Issue(context.Background(), "user-42", "Test User")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, claims, err := generator.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, verification.IdentityRef("user-42"), identity)
	require.Equal(t, "Test User", claims.Name)
}

func TestGeneratorRejectsForeignTokens(t *testing.T) {
	issuer, err := customjwt.NewGenerator(testSecret, "https://id.valora.test", time.Hour)
	require.NoError(t, err)
	other, err := customjwt.NewGenerator([]byte(strings.Repeat("o", 48)), "https://id.valora.test", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := customjwt.NewGenerator(testSecret, "https://elsewhere.test", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue(context.Background(), "user-42", "")
	require.NoError(t, err)

	_, _, err = other.Resolve(context.Background(), token)
	require.Error(t, err)
	_, _, err = wrongIssuer.Resolve(context.Background(), token)
	require.Error(t, err)
	_, _, err = issuer.Resolve(context.Background(), "not-a-token")
	require.Error(t, err)
}

func TestGeneratorValidation(t *testing.T) {
	_, err := customjwt.NewGenerator([]byte("short"), "iss", time.Hour)
	require.ErrorIs(t, err, customjwt.ErrWeakSecret)

	generator, err := customjwt.NewGenerator(testSecret, "iss", time.Hour)
	require.NoError(t, err)
	_, err = generator.Issue(context.Background(), "", "")
	require.ErrorIs(t, err, verification.ErrIdentityMissing)
}
