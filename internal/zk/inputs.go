package zk

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	fmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/smallbiznis/valora-verify/internal/domain/verification"
)

// PublicInputCount is the number of public inputs ThresholdCircuit exposes.
const PublicInputCount = 7

// ErrInvalidPublicInputs reports public inputs of the wrong count or size.
var ErrInvalidPublicInputs = errors.New("zk: invalid public inputs")

// PublicInputs is the decoded form of a proof's public inputs.
type PublicInputs struct {
	ClaimCode    uint8
	IdentityHash *big.Int
	ChannelHash  *big.Int
	Commitment   *big.Int
	Thresholds   verification.Metrics
}

// IdentityHash maps an identity reference into the scalar field.
func IdentityHash(identity verification.IdentityRef) *big.Int {
	return hashToField("identity:" + identity.String())
}

// ChannelHash maps a channel id into the scalar field.
func ChannelHash(channelID string) *big.Int {
	return hashToField("channel:" + channelID)
}

func hashToField(value string) *big.Int {
	sum := sha256.Sum256([]byte(value))
	var e fr.Element
	e.SetBytes(sum[:])
	return e.BigInt(new(big.Int))
}

// commit computes the MiMC commitment the circuit recomputes in-circuit.
func commit(values ...*big.Int) *big.Int {
	h := fmimc.NewMiMC()
	for _, v := range values {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		_, _ = h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int))
}

// Encode renders the public inputs as 32-byte big-endian field elements in
// circuit order.
func (p PublicInputs) Encode() [][]byte {
	values := []*big.Int{
		new(big.Int).SetUint64(uint64(p.ClaimCode)),
		p.IdentityHash,
		p.ChannelHash,
		p.Commitment,
		new(big.Int).SetUint64(p.Thresholds.SubscriberCount),
		new(big.Int).SetUint64(p.Thresholds.ViewCount),
		new(big.Int).SetUint64(p.Thresholds.VideoCount),
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		out[i] = b[:]
	}
	return out
}

// DecodePublicInputs parses encoded public inputs.
func DecodePublicInputs(raw [][]byte) (PublicInputs, error) {
	if len(raw) != PublicInputCount {
		return PublicInputs{}, fmt.Errorf("%w: want %d inputs, got %d", ErrInvalidPublicInputs, PublicInputCount, len(raw))
	}
	values := make([]*big.Int, len(raw))
	for i, b := range raw {
		if len(b) != fr.Bytes {
			return PublicInputs{}, fmt.Errorf("%w: input %d has %d bytes", ErrInvalidPublicInputs, i, len(b))
		}
		v := new(big.Int).SetBytes(b)
		if v.Cmp(fr.Modulus()) >= 0 {
			return PublicInputs{}, fmt.Errorf("%w: input %d out of field", ErrInvalidPublicInputs, i)
		}
		values[i] = v
	}
	for _, i := range []int{0, 4, 5, 6} {
		if !values[i].IsUint64() {
			return PublicInputs{}, fmt.Errorf("%w: input %d exceeds 64 bits", ErrInvalidPublicInputs, i)
		}
	}
	if values[0].Uint64() > maxClaimCode {
		return PublicInputs{}, fmt.Errorf("%w: claim code %d", ErrInvalidPublicInputs, values[0].Uint64())
	}
	return PublicInputs{
		ClaimCode:    uint8(values[0].Uint64()),
		IdentityHash: values[1],
		ChannelHash:  values[2],
		Commitment:   values[3],
		Thresholds: verification.Metrics{
			SubscriberCount: values[4].Uint64(),
			ViewCount:       values[5].Uint64(),
			VideoCount:      values[6].Uint64(),
		},
	}, nil
}

func (p PublicInputs) assignment() *ThresholdCircuit {
	return &ThresholdCircuit{
		ClaimCode:      p.ClaimCode,
		IdentityHash:   p.IdentityHash,
		ChannelHash:    p.ChannelHash,
		Commitment:     p.Commitment,
		MinSubscribers: p.Thresholds.SubscriberCount,
		MinViews:       p.Thresholds.ViewCount,
		MinVideos:      p.Thresholds.VideoCount,
	}
}
