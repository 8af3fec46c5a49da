package zk

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

var (
	sharedOnce   sync.Once
	sharedProver *Groth16Prover
	sharedErr    error
)

func testProver(t *testing.T) *Groth16Prover {
	t.Helper()
	sharedOnce.Do(func() {
		sharedProver, sharedErr = NewGroth16Prover("", nil)
	})
	require.NoError(t, sharedErr)
	return sharedProver
}

func sampleWitness() verification.AccountWitness {
	return verification.AccountWitness{
		ChannelID:       "UC123",
		Title:           "Cooking",
		SubscriberCount: 1200,
		ViewCount:       45000,
		VideoCount:      37,
	}
}

func TestProver_RoundTrip(t *testing.T) {
	prover := testProver(t)

	for _, claim := range verification.AllClaimTypes() {
		t.Run(claim.String(), func(t *testing.T) {
			blob, err := prover.Generate(context.Background(), claim, sampleWitness(), "abc")
			require.NoError(t, err)
			require.NotEmpty(t, blob.Bytes)
			require.Len(t, blob.PublicInputs, PublicInputCount)
			for _, in := range blob.PublicInputs {
				require.Len(t, in, 32)
			}

			inputs, err := prover.Verify(blob.Bytes, blob.PublicInputs)
			require.NoError(t, err)

			code, _ := claim.WireCode()
			require.Equal(t, code, inputs.ClaimCode)
			require.Equal(t, IdentityHash("abc"), inputs.IdentityHash)
			require.Equal(t, ChannelHash("UC123"), inputs.ChannelHash)
			require.Equal(t, sampleWitness().Disclosed(claim), inputs.Thresholds)
		})
	}
}

func TestProver_TamperedInputsRejected(t *testing.T) {
	prover := testProver(t)
	blob, err := prover.Generate(context.Background(), verification.ClaimSubscriberCount, sampleWitness(), "abc")
	require.NoError(t, err)

	forged := PublicInputs{
		ClaimCode:    1,
		IdentityHash: IdentityHash("someone-else"),
		ChannelHash:  ChannelHash("UC123"),
		Thresholds:   verification.Metrics{SubscriberCount: 1200},
	}
	decoded, err := DecodePublicInputs(blob.PublicInputs)
	require.NoError(t, err)
	forged.Commitment = decoded.Commitment

	_, err = prover.Verify(blob.Bytes, forged.Encode())
	require.ErrorIs(t, err, ErrProofInvalid)
}

func TestProver_ThresholdAboveActualFails(t *testing.T) {
	prover := testProver(t)
	_, err := prover.prove(context.Background(), 1, "abc", sampleWitness(), verification.Metrics{SubscriberCount: 1201})
	require.ErrorIs(t, err, verification.ErrProofGenerationFailed)
}

func TestProver_RejectsUnknownClaim(t *testing.T) {
	prover := testProver(t)
	_, err := prover.Generate(context.Background(), verification.ClaimType(0), sampleWitness(), "abc")
	require.ErrorIs(t, err, verification.ErrProofGenerationFailed)
	require.ErrorIs(t, err, verification.ErrInvalidClaim)
}

func TestProver_CanceledContext(t *testing.T) {
	prover := testProver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := prover.Generate(ctx, verification.ClaimChannelOwnership, sampleWitness(), "abc")
	require.ErrorIs(t, err, verification.ErrProofGenerationFailed)
}

func TestVerifier_FromSerializedKey(t *testing.T) {
	prover := testProver(t)
	var buf bytes.Buffer
	require.NoError(t, prover.WriteVerifyingKey(&buf))

	verifier, err := NewVerifier(&buf)
	require.NoError(t, err)

	blob, err := prover.Generate(context.Background(), verification.ClaimCombined, sampleWitness(), "abc")
	require.NoError(t, err)
	_, err = verifier.Verify(blob.Bytes, blob.PublicInputs)
	require.NoError(t, err)
}

func TestNewGroth16Prover_PersistsKeys(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	first, err := NewGroth16Prover(dir, logger)
	require.NoError(t, err)
	ready := logs.FilterMessage("zk prover ready").All()
	require.Len(t, ready, 1)
	require.Equal(t, false, ready[0].ContextMap()["keys_loaded"])

	second, err := NewGroth16Prover(dir, logger)
	require.NoError(t, err)
	ready = logs.FilterMessage("zk prover ready").All()
	require.Len(t, ready, 2)
	require.Equal(t, true, ready[1].ContextMap()["keys_loaded"])

	blob, err := first.Generate(context.Background(), verification.ClaimViewCount, sampleWitness(), "abc")
	require.NoError(t, err)
	_, err = second.Verify(blob.Bytes, blob.PublicInputs)
	require.NoError(t, err)
}

func TestDecodePublicInputs_Validation(t *testing.T) {
	_, err := DecodePublicInputs(nil)
	require.ErrorIs(t, err, ErrInvalidPublicInputs)

	short := make([][]byte, PublicInputCount)
	for i := range short {
		short[i] = make([]byte, 31)
	}
	_, err = DecodePublicInputs(short)
	require.ErrorIs(t, err, ErrInvalidPublicInputs)

	valid := PublicInputs{
		ClaimCode:    9,
		IdentityHash: IdentityHash("a"),
		ChannelHash:  ChannelHash("b"),
		Commitment:   IdentityHash("c"),
	}.Encode()
	_, err = DecodePublicInputs(valid)
	require.ErrorIs(t, err, ErrInvalidPublicInputs)
}
