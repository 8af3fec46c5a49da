// Package zk proves channel claims with a Groth16 circuit over BN254.
//
// The circuit shows that the prover knows channel counters committed to by a
// public MiMC commitment, bound to an identity and a channel, and that each
// counter is at least its public threshold. Thresholds for metrics a claim does
// not disclose are zero.
package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// counterBits bounds every private counter.
const counterBits = 64

// maxClaimCode is the highest wire code the circuit accepts.
const maxClaimCode = 4

// ThresholdCircuit declares public inputs first; gnark orders them by
// declaration and PublicInputs must follow the same order.
type ThresholdCircuit struct {
	ClaimCode      frontend.Variable `gnark:",public"`
	IdentityHash   frontend.Variable `gnark:",public"`
	ChannelHash    frontend.Variable `gnark:",public"`
	Commitment     frontend.Variable `gnark:",public"`
	MinSubscribers frontend.Variable `gnark:",public"`
	MinViews       frontend.Variable `gnark:",public"`
	MinVideos      frontend.Variable `gnark:",public"`

	Subscribers frontend.Variable `gnark:",secret"`
	Views       frontend.Variable `gnark:",secret"`
	Videos      frontend.Variable `gnark:",secret"`
	Salt        frontend.Variable `gnark:",secret"`
}

// Define implements frontend.Circuit.
func (c *ThresholdCircuit) Define(api frontend.API) error {
	api.AssertIsLessOrEqual(c.ClaimCode, maxClaimCode)

	for _, counter := range []frontend.Variable{c.Subscribers, c.Views, c.Videos} {
		api.ToBinary(counter, counterBits)
	}

	api.AssertIsLessOrEqual(c.MinSubscribers, c.Subscribers)
	api.AssertIsLessOrEqual(c.MinViews, c.Views)
	api.AssertIsLessOrEqual(c.MinVideos, c.Videos)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.ClaimCode, c.IdentityHash, c.ChannelHash, c.Subscribers, c.Views, c.Videos, c.Salt)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	return nil
}
