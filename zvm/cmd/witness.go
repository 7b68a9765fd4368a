package cmd

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethereum-optimism/zvm/zvm/r1cs"
)

// WitnessOutput is the variable assignment of a run, each element as 32
// big-endian bytes. Variables starts with the constant one.
type WitnessOutput struct {
	Public    []hexutil.Bytes `json:"public"`
	Variables []hexutil.Bytes `json:"variables"`
}

func encodeElements(elems []fr.Element) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(elems))
	for i := range elems {
		b := elems[i].Bytes()
		out[i] = b[:]
	}
	return out
}

func NewWitnessOutput(cs *r1cs.System) (*WitnessOutput, error) {
	public, err := cs.PublicAssignment()
	if err != nil {
		return nil, fmt.Errorf("failed to read public inputs: %w", err)
	}
	vars, err := cs.Assignment()
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment: %w", err)
	}
	return &WitnessOutput{Public: encodeElements(public), Variables: encodeElements(vars)}, nil
}
