// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// chainConfig returns an always-latest-fork chain config: every hard fork
// is active from genesis, since the embedded interpreter always runs the
// current ruleset and there is no separate "EVM history" to replay (unlike
// an L1 client, which must support historical forks).
func chainConfig(chainID uint64) *params.ChainConfig {
	zero := big.NewInt(0)
	zeroTime := uint64(0)
	return &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(chainID),
		HomesteadBlock:      zero,
		EIP150Block:         zero,
		EIP155Block:         zero,
		EIP158Block:         zero,
		ByzantiumBlock:      zero,
		ConstantinopleBlock: zero,
		PetersburgBlock:     zero,
		IstanbulBlock:       zero,
		MuirGlacierBlock:    zero,
		BerlinBlock:         zero,
		LondonBlock:         zero,
		ShanghaiTime:        &zeroTime,
		CancunTime:          &zeroTime,
	}
}

func canTransfer(sdb vm.StateDB, addr common.Address, amount *uint256.Int) bool {
	return sdb.GetBalance(addr).Cmp(amount) >= 0
}

func transfer(sdb vm.StateDB, from, to common.Address, amount *uint256.Int) {
	sdb.SubBalance(from, amount, 0)
	sdb.AddBalance(to, amount, 0)
	if s, ok := sdb.(*StateDB); ok {
		s.AddTransfer(from, to, amount)
	}
}

func blockContext(hdr HeaderForExecution) vm.BlockContext {
	randao := hdr.PrevRandao
	return vm.BlockContext{
		CanTransfer: canTransfer,
		Transfer:    transfer,
		GetHash: func(n uint64) common.Hash {
			// Move has no native block-hash API to source this from; callers
			// that need historical block hashes must go through a Move
			// entry function instead (original_source/evm-ext/src/
			// native_evm_context.rs block_hash_ref: "not implemented").
			return common.Hash{}
		},
		Coinbase:    hdr.Coinbase,
		GasLimit:    hdr.GasLimit,
		BlockNumber: new(big.Int).SetUint64(hdr.Number),
		Time:        hdr.Timestamp,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int).SetUint64(hdr.BaseFee),
		BlobBaseFee: new(big.Int),
		Random:      &randao,
	}
}

// CallResult bundles the outcome of one embedded EVM call/create alongside
// the diff that must be merged back into the world trie when the enclosing
// Move transaction finalizes successfully.
type CallResult struct {
	ReturnData      []byte
	ContractAddress common.Address // set only by Create
	GasUsed         uint64
	Reverted        bool
	Diff            Diff
}

// Call executes a message call from caller to to, mirroring
// evm_transact_inner's Call branch in original_source/evm-ext/src/
// native_impl.rs: balance checks are still enforced by the interpreter
// (value must already have been verified available on the Move side via
// the base-token module, so NoBaseFee only disables the *gas*-fee balance
// check, not the value-transfer one).
func Call(resolver Resolver, hdr HeaderForExecution, chainID uint64, caller, to common.Address, value *uint256.Int, input []byte, gasLimit uint64) CallResult {
	sdb := NewStateDB(resolver)
	evm := vm.NewEVM(blockContext(hdr), sdb, chainConfig(chainID), vm.Config{NoBaseFee: true})
	evm.SetTxContext(vm.TxContext{Origin: caller, GasPrice: new(big.Int)})

	ret, leftover, err := evm.Call(vm.AccountRef(caller), to, input, gasLimit, value)
	return finish(sdb, ret, common.Address{}, gasLimit, leftover, err)
}

// CallDeposited runs a deposited transaction's native EVM call after
// crediting mintTo's balance by mint, the same "mint into the ledger before
// running the call" order op-geth's own deposit message processing uses
// (StateProcessor crediting msg.From with mint ahead of the inner call) —
// so a deposit's own mint is what funds the value it carries through the
// call, rather than requiring the caller to already hold a balance. A
// reverted call leaves no trace, since the overlay the mint was seeded into
// is discarded without ever reaching ExtractChanges.
func CallDeposited(resolver Resolver, hdr HeaderForExecution, chainID uint64, mintTo common.Address, mint *uint256.Int, caller, to common.Address, value *uint256.Int, input []byte, gasLimit uint64) CallResult {
	sdb := NewStateDB(resolver)
	if mint != nil && !mint.IsZero() {
		sdb.AddBalance(mintTo, mint, 0)
	}
	evm := vm.NewEVM(blockContext(hdr), sdb, chainConfig(chainID), vm.Config{NoBaseFee: true})
	evm.SetTxContext(vm.TxContext{Origin: caller, GasPrice: new(big.Int)})

	ret, leftover, err := evm.Call(vm.AccountRef(caller), to, input, gasLimit, value)
	return finish(sdb, ret, common.Address{}, gasLimit, leftover, err)
}

// Create executes a contract-creation call from caller, mirroring the
// Create branch of evm_transact_inner.
func Create(resolver Resolver, hdr HeaderForExecution, chainID uint64, caller common.Address, value *uint256.Int, code []byte, gasLimit uint64) CallResult {
	sdb := NewStateDB(resolver)
	evm := vm.NewEVM(blockContext(hdr), sdb, chainConfig(chainID), vm.Config{NoBaseFee: true})
	evm.SetTxContext(vm.TxContext{Origin: caller, GasPrice: new(big.Int)})

	ret, addr, leftover, err := evm.Create(vm.AccountRef(caller), code, gasLimit, value)
	return finish(sdb, ret, addr, gasLimit, leftover, err)
}

func finish(sdb *StateDB, ret []byte, contractAddr common.Address, gasLimit, leftover uint64, err error) CallResult {
	gasUsed := gasLimit - leftover
	result := CallResult{
		ReturnData:      ret,
		ContractAddress: contractAddr,
		GasUsed:         gasUsed,
		Reverted:        err != nil,
	}
	if err == nil {
		result.Diff = ExtractChanges(sdb)
	}
	return result
}
