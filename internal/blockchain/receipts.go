// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/primitives"
)

// BuildReceipt turns one transaction's execution outcome into a consensus
// receipt, the Go shape of original_source/blockchain/src/receipt/
// write.rs's ExtendedReceipt (minus the block-positioning fields: the
// caller, Builder.Append or AppendDeposited, sets BlockNumber and
// TransactionIndex on the returned receipt; block hash and timestamp are
// not stored on it). logsOffset is the running count of logs
// emitted by every transaction earlier in the block (Builder.Append's own
// accumulator, mirroring cumulativeGasUsed); it seeds each of this
// transaction's log.Index so indices stay contiguous across the whole
// block, per the `log_index = logs_offset + local_index` invariant.
func BuildReceipt(txHash common.Hash, outcome *execution.TransactionExecutionOutcome, txType byte, cumulativeGasUsed uint64, logsOffset uint64) *types.Receipt {
	status := types.ReceiptStatusFailed
	if outcome.Status {
		status = types.ReceiptStatusSuccessful
	}

	for i, log := range outcome.Logs {
		log.Index = uint(logsOffset) + uint(i)
	}

	receipt := &types.Receipt{
		Type:              txType,
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
		TxHash:            txHash,
		GasUsed:           outcome.GasUsed,
		Logs:              outcome.Logs,
	}
	receipt.Bloom = receiptBloom(receipt.Logs)

	if outcome.Deployment != nil {
		if ethAddr, ok := primitives.TryToEthAddress(outcome.Deployment.Address); ok {
			receipt.ContractAddress = ethAddr
		}
	}
	return receipt
}

// ExtendedReceipt pairs a consensus receipt with the block-positioning and
// sender/recipient fields an RPC eth_getTransactionReceipt response needs,
// mirroring ExtendedReceipt's fields in original_source/blockchain/src/
// receipt/write.rs.
type ExtendedReceipt struct {
	Receipt          *types.Receipt
	TransactionIndex uint64
	From             common.Address
	To               *common.Address

	BlockHash      common.Hash
	BlockNumber    uint64
	BlockTimestamp uint64

	// L2GasPrice is the effective gas price actually charged, which for an
	// EIP-1559 envelope may be below MaxFeePerGas (spec.md §4.3).
	L2GasPrice *big.Int
}
