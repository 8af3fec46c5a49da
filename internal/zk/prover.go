package zk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

const (
	provingKeyFile   = "threshold.pk"
	verifyingKeyFile = "threshold.vk"
)

// ErrProofInvalid is returned when a proof does not verify.
var ErrProofInvalid = errors.New("zk: proof does not verify")

// Verifier checks proofs against a verifying key.
type Verifier struct {
	vk groth16.VerifyingKey
}

// NewVerifier reads a serialized verifying key.
func NewVerifier(r io.Reader) (*Verifier, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("zk: read verifying key: %w", err)
	}
	return &Verifier{vk: vk}, nil
}

// Verify checks the proof and returns its decoded public inputs.
func (v *Verifier) Verify(proofBytes []byte, publicInputs [][]byte) (PublicInputs, error) {
	inputs, err := DecodePublicInputs(publicInputs)
	if err != nil {
		return PublicInputs{}, err
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return PublicInputs{}, fmt.Errorf("%w: decode proof: %v", ErrProofInvalid, err)
	}

	public, err := frontend.NewWitness(inputs.assignment(), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return PublicInputs{}, fmt.Errorf("zk: public witness: %w", err)
	}

	if err := groth16.Verify(proof, v.vk, public); err != nil {
		return PublicInputs{}, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}
	return inputs, nil
}

// WriteVerifyingKey serializes the verifying key.
func (v *Verifier) WriteVerifyingKey(w io.Writer) error {
	_, err := v.vk.WriteTo(w)
	return err
}

// Groth16Prover generates threshold proofs for verified channels.
type Groth16Prover struct {
	*Verifier

	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	logger *zap.Logger
}

// NewGroth16Prover compiles the circuit and loads keys from keyDir, running a
// fresh setup when keyDir is empty or holds no keys yet.
func NewGroth16Prover(keyDir string, logger *zap.Logger) (*Groth16Prover, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gnarklogger.Disable()

	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &ThresholdCircuit{})
	if err != nil {
		return nil, fmt.Errorf("zk: compile circuit: %w", err)
	}

	pk, vk, loaded, err := loadKeys(keyDir)
	if err != nil {
		return nil, err
	}
	if !loaded {
		pk, vk, err = groth16.Setup(ccs)
		if err != nil {
			return nil, fmt.Errorf("zk: setup: %w", err)
		}
		if keyDir != "" {
			if err := saveKeys(keyDir, pk, vk); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("zk prover ready",
		zap.Int("constraints", ccs.GetNbConstraints()),
		zap.Bool("keys_loaded", loaded),
		zap.String("key_dir", keyDir),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Groth16Prover{
		Verifier: &Verifier{vk: vk},
		ccs:      ccs,
		pk:       pk,
		logger:   logger,
	}, nil
}

// Generate proves that witness backs claim for identity. The metrics the
// claim discloses become the proof's public thresholds.
func (p *Groth16Prover) Generate(ctx context.Context, claim verification.ClaimType, witness verification.AccountWitness, identity verification.IdentityRef) (verification.ProofBlob, error) {
	code, err := claim.WireCode()
	if err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: %w", verification.ErrProofGenerationFailed, err)
	}
	if witness.ChannelID == "" {
		return verification.ProofBlob{}, fmt.Errorf("%w: missing channel id", verification.ErrProofGenerationFailed)
	}
	return p.prove(ctx, code, identity, witness, witness.Disclosed(claim))
}

func (p *Groth16Prover) prove(ctx context.Context, code uint8, identity verification.IdentityRef, witness verification.AccountWitness, thresholds verification.Metrics) (verification.ProofBlob, error) {
	if err := ctx.Err(); err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: %w", verification.ErrProofGenerationFailed, err)
	}

	var saltElem fr.Element
	if _, err := saltElem.SetRandom(); err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: salt: %w", verification.ErrProofGenerationFailed, err)
	}
	salt := saltElem.BigInt(new(big.Int))

	inputs := PublicInputs{
		ClaimCode:    code,
		IdentityHash: IdentityHash(identity),
		ChannelHash:  ChannelHash(witness.ChannelID),
		Thresholds:   thresholds,
	}
	subs := new(big.Int).SetUint64(witness.SubscriberCount)
	views := new(big.Int).SetUint64(witness.ViewCount)
	videos := new(big.Int).SetUint64(witness.VideoCount)
	inputs.Commitment = commit(
		new(big.Int).SetUint64(uint64(code)),
		inputs.IdentityHash,
		inputs.ChannelHash,
		subs, views, videos, salt,
	)

	assignment := inputs.assignment()
	assignment.Subscribers = subs
	assignment.Views = views
	assignment.Videos = videos
	assignment.Salt = salt

	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: witness: %w", verification.ErrProofGenerationFailed, err)
	}

	start := time.Now()
	proof, err := groth16.Prove(p.ccs, p.pk, full)
	if err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: prove: %w", verification.ErrProofGenerationFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: %w", verification.ErrProofGenerationFailed, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return verification.ProofBlob{}, fmt.Errorf("%w: encode proof: %w", verification.ErrProofGenerationFailed, err)
	}

	p.logger.Debug("proof generated",
		zap.Uint8("claim_code", code),
		zap.Int("proof_bytes", buf.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return verification.ProofBlob{
		Bytes:        buf.Bytes(),
		PublicInputs: inputs.Encode(),
	}, nil
}

func loadKeys(dir string) (groth16.ProvingKey, groth16.VerifyingKey, bool, error) {
	if dir == "" {
		return nil, nil, false, nil
	}
	pkFile, err := os.Open(filepath.Join(dir, provingKeyFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("zk: open proving key: %w", err)
	}
	defer pkFile.Close()

	vkFile, err := os.Open(filepath.Join(dir, verifyingKeyFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("zk: open verifying key: %w", err)
	}
	defer vkFile.Close()

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkFile); err != nil {
		return nil, nil, false, fmt.Errorf("zk: read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(vkFile); err != nil {
		return nil, nil, false, fmt.Errorf("zk: read verifying key: %w", err)
	}
	return pk, vk, true, nil
}

func saveKeys(dir string, pk groth16.ProvingKey, vk groth16.VerifyingKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("zk: key dir: %w", err)
	}
	if err := writeKey(filepath.Join(dir, provingKeyFile), pk); err != nil {
		return err
	}
	return writeKey(filepath.Join(dir, verifyingKeyFile), vk)
}

func writeKey(path string, key io.WriterTo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("zk: create %s: %w", filepath.Base(path), err)
	}
	if _, err := key.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("zk: write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
