package main

import (
	"github.com/empower1-labs/empower1-core/internal/core"
)

// noopVM is a placeholder for the opcode-level virtual machine, which is
// an external collaborator outside this repository's scope. It lets the
// execution harness dispatch ContractDeploy/ContractCall transactions
// without rejecting them outright: Deploy derives the conventional
// CREATE-style address from the deployer and their nonce and charges no
// gas beyond what the harness itself already accounts for; Call is a
// no-op.
type noopVM struct{}

func (noopVM) Deploy(deployer core.Address, nonce uint64, code []byte) (core.Address, uint64, error) {
	return core.ContractAddress(deployer, nonce), 0, nil
}

func (noopVM) Call(target core.Address, calldata []byte) (uint64, []byte, error) {
	return 0, nil, nil
}
