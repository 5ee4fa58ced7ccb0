// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/actor"
	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/query"
)

// registerEthMethods binds the eth_* state-query and transaction-submission
// surface of spec.md §4.9 to reader (C8) and act (C9), none of which
// require the engine_* namespace's bearer token.
func (s *Server) registerEthMethods(reader *query.Reader, act *actor.Actor, chainID uint64) {
	s.register("eth_chainId", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		return hexutil.Uint64(chainID), nil
	})

	s.register("eth_blockNumber", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		return hexutil.Uint64(reader.HeadHeight()), nil
	})

	s.register("eth_gasPrice", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		block, _, err := reader.BlockByHeight(query.Latest)
		if err != nil || block.Header.BaseFee == nil {
			return (*hexutil.Big)(big.NewInt(0)), nil
		}
		return (*hexutil.Big)(block.Header.BaseFee), nil
	})

	s.register("eth_getBalance", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var addr common.Address
		if err := param(params, 0, &addr); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 1)
		if err != nil {
			return nil, err
		}
		balance, err := reader.Balance(ctx, addr, tag)
		if err != nil {
			return nil, err
		}
		return (*hexutil.Big)(balance), nil
	})

	s.register("eth_getTransactionCount", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var addr common.Address
		if err := param(params, 0, &addr); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 1)
		if err != nil {
			return nil, err
		}
		nonce, err := reader.Nonce(ctx, addr, tag)
		if err != nil {
			return nil, err
		}
		return hexutil.Uint64(nonce), nil
	})

	s.register("eth_sendRawTransaction", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var raw hexutil.Bytes
		if err := param(params, 0, &raw); err != nil {
			return nil, err
		}
		tx, kind, err := decodeRawTransaction(raw)
		if err != nil {
			return nil, err
		}
		if err := act.Send(ctx, actor.AddTransaction{Kind: kind, Tx: tx}); err != nil {
			return nil, err
		}
		return tx.Hash, nil
	})

	s.register("eth_getBlockByHash", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var hash common.Hash
		if err := param(params, 0, &hash); err != nil {
			return nil, err
		}
		var fullTx bool
		_ = optionalParam(params, 1, &fullTx)
		block, receipts, err := reader.BlockByHash(hash)
		if err != nil {
			return nil, err
		}
		return toBlockRPC(block, receipts, fullTx), nil
	})

	s.register("eth_getBlockByNumber", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		tag, err := parseHeightTagParam(params, 0)
		if err != nil {
			return nil, err
		}
		var fullTx bool
		_ = optionalParam(params, 1, &fullTx)
		block, receipts, err := reader.BlockByHeight(tag)
		if err != nil {
			return nil, err
		}
		return toBlockRPC(block, receipts, fullTx), nil
	})

	s.register("eth_getTransactionByHash", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var hash common.Hash
		if err := param(params, 0, &hash); err != nil {
			return nil, err
		}
		tx, block, err := reader.TransactionByHash(hash)
		if err != nil {
			return nil, err
		}
		return toTransactionRPC(tx, block), nil
	})

	s.register("eth_getTransactionReceipt", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var hash common.Hash
		if err := param(params, 0, &hash); err != nil {
			return nil, err
		}
		receipt, err := reader.ReceiptByTransactionHash(hash)
		if err != nil {
			return nil, err
		}
		return toReceiptRPC(receipt), nil
	})

	s.register("eth_estimateGas", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var req callRequestRPC
		if err := param(params, 0, &req); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 1)
		if err != nil {
			return nil, err
		}
		gas, err := reader.EstimateGas(req.toCallRequest(), tag)
		if err != nil {
			return nil, err
		}
		return hexutil.Uint64(gas), nil
	})

	s.register("eth_call", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var req callRequestRPC
		if err := param(params, 0, &req); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 1)
		if err != nil {
			return nil, err
		}
		out, reverted, err := reader.Call(req.toCallRequest(), tag)
		if err != nil {
			return nil, err
		}
		if reverted {
			return nil, errRevert(out)
		}
		return hexutil.Bytes(out), nil
	})

	s.register("eth_getProof", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var addr common.Address
		if err := param(params, 0, &addr); err != nil {
			return nil, err
		}
		var slots []common.Hash
		if err := param(params, 1, &slots); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 2)
		if err != nil {
			return nil, err
		}
		proof, err := reader.Proof(addr, slots, tag)
		if err != nil {
			return nil, err
		}
		return toProofRPC(proof), nil
	})

	s.register("eth_feeHistory", false, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var blockCount hexutil.Uint64
		if err := param(params, 0, &blockCount); err != nil {
			return nil, err
		}
		tag, err := parseHeightTagParam(params, 1)
		if err != nil {
			return nil, err
		}
		var percentiles []float64
		_ = optionalParam(params, 2, &percentiles)
		result := reader.FeeHistory(uint64(blockCount), tag, percentiles)
		return toFeeHistoryRPC(result), nil
	})
}

// parseHeightTagParam decodes the height/block-tag argument at position i,
// accepting either a quoted tag name ("latest", "earliest", "safe",
// "pending", "finalized") or a 0x-prefixed block number, defaulting to
// "latest" when the argument is altogether absent.
func parseHeightTagParam(params []json.RawMessage, i int) (query.HeightTag, error) {
	if i >= len(params) {
		return query.Latest, nil
	}
	var raw string
	if err := json.Unmarshal(params[i], &raw); err != nil {
		return query.HeightTag{}, err
	}
	switch strings.ToLower(raw) {
	case "", "latest":
		return query.Latest, nil
	case "earliest":
		return query.Earliest, nil
	case "safe":
		return query.Safe, nil
	case "pending":
		return query.Pending, nil
	case "finalized":
		return query.Finalized, nil
	default:
		n, err := hexutil.DecodeUint64(raw)
		if err != nil {
			return query.HeightTag{}, fmt.Errorf("rpc: invalid block tag %q: %w", raw, err)
		}
		return query.ByNumber(n), nil
	}
}

// callRequestRPC is the wire shape of an eth_call/eth_estimateGas
// transaction-call object.
type callRequestRPC struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (c callRequestRPC) toCallRequest() query.CallRequest {
	req := query.CallRequest{Value: big.NewInt(0)}
	if c.From != nil {
		req.From = *c.From
	}
	if c.To != nil {
		req.To = *c.To
	}
	if c.Value != nil {
		req.Value = (*big.Int)(c.Value)
	}
	req.Data = c.Data
	if len(req.Data) == 0 {
		req.Data = c.Input
	}
	return req
}

type blockRPC struct {
	Number        hexutil.Uint64 `json:"number"`
	Hash          common.Hash    `json:"hash"`
	ParentHash    common.Hash    `json:"parentHash"`
	StateRoot     common.Hash    `json:"stateRoot"`
	ReceiptsRoot  common.Hash    `json:"receiptsRoot"`
	Miner         common.Address `json:"miner"`
	GasLimit      hexutil.Uint64 `json:"gasLimit"`
	GasUsed       hexutil.Uint64 `json:"gasUsed"`
	Timestamp     hexutil.Uint64 `json:"timestamp"`
	BaseFeePerGas *hexutil.Big   `json:"baseFeePerGas,omitempty"`
	ExtraData     hexutil.Bytes  `json:"extraData"`
	Transactions  []interface{}  `json:"transactions"`
}

// toBlockRPC renders block as the eth_getBlockBy{Hash,Number} JSON shape.
// When fullTx is false, Transactions holds bare hashes; otherwise each
// entry is the full decoded transaction (eth_getBlockByHash/Number's
// "fullTx" flag, as in every go-ethereum-derived JSON-RPC server).
func toBlockRPC(block *blockchain.Block, receipts types.Receipts, fullTx bool) *blockRPC {
	out := &blockRPC{
		Number:        hexutil.Uint64(block.Number()),
		Hash:          block.Hash(),
		ParentHash:    block.Header.ParentHash,
		StateRoot:     block.Header.Root,
		ReceiptsRoot:  block.Header.ReceiptHash,
		Miner:         block.Header.Coinbase,
		GasLimit:      hexutil.Uint64(block.Header.GasLimit),
		GasUsed:       hexutil.Uint64(block.Header.GasUsed),
		Timestamp:     hexutil.Uint64(block.Header.Time),
		ExtraData:     block.Header.Extra,
		Transactions:  make([]interface{}, 0, len(block.Transactions)),
	}
	if block.Header.BaseFee != nil {
		out.BaseFeePerGas = (*hexutil.Big)(block.Header.BaseFee)
	}
	for i, hash := range block.Transactions {
		if !fullTx {
			out.Transactions = append(out.Transactions, hash)
			continue
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(block.RawTransactions[i]); err != nil {
			out.Transactions = append(out.Transactions, hash)
			continue
		}
		out.Transactions = append(out.Transactions, toTransactionRPC(&tx, block))
	}
	return out
}

type transactionRPC struct {
	Hash             common.Hash     `json:"hash"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Input            hexutil.Bytes   `json:"input"`
	Type             hexutil.Uint64  `json:"type"`
	ChainID          *hexutil.Big    `json:"chainId,omitempty"`
}

func toTransactionRPC(tx *types.Transaction, block *blockchain.Block) *transactionRPC {
	from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	out := &transactionRPC{
		Hash:     tx.Hash(),
		Nonce:    hexutil.Uint64(tx.Nonce()),
		From:     from,
		To:       tx.To(),
		Value:    (*hexutil.Big)(tx.Value()),
		Gas:      hexutil.Uint64(tx.Gas()),
		GasPrice: (*hexutil.Big)(tx.GasPrice()),
		Input:    tx.Data(),
		Type:     hexutil.Uint64(tx.Type()),
	}
	if tx.ChainId() != nil && tx.ChainId().Sign() != 0 {
		out.ChainID = (*hexutil.Big)(tx.ChainId())
	}
	if block != nil {
		hash := block.Hash()
		number := hexutil.Uint64(block.Number())
		out.BlockHash = &hash
		out.BlockNumber = &number
	}
	return out
}

type receiptRPC struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	ContractAddress   *common.Address `json:"contractAddress,omitempty"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	LogsBloom         types.Bloom     `json:"logsBloom"`
	Logs              []*types.Log    `json:"logs"`
	Status            hexutil.Uint64  `json:"status"`
	Type              hexutil.Uint64  `json:"type"`
}

func toReceiptRPC(r *blockchain.ExtendedReceipt) *receiptRPC {
	out := &receiptRPC{
		TransactionHash:   r.Receipt.TxHash,
		TransactionIndex:  hexutil.Uint64(r.TransactionIndex),
		BlockHash:         r.BlockHash,
		BlockNumber:       hexutil.Uint64(r.BlockNumber),
		From:              r.From,
		To:                r.To,
		CumulativeGasUsed: hexutil.Uint64(r.Receipt.CumulativeGasUsed),
		GasUsed:           hexutil.Uint64(r.Receipt.GasUsed),
		EffectiveGasPrice: (*hexutil.Big)(r.L2GasPrice),
		LogsBloom:         r.Receipt.Bloom,
		Logs:              r.Receipt.Logs,
		Status:            hexutil.Uint64(r.Receipt.Status),
		Type:              hexutil.Uint64(r.Receipt.Type),
	}
	if r.Receipt.ContractAddress != (common.Address{}) {
		addr := r.Receipt.ContractAddress
		out.ContractAddress = &addr
	}
	return out
}

type storageProofRPC struct {
	Key   common.Hash   `json:"key"`
	Value *hexutil.Big  `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

type accountProofRPC struct {
	Address      common.Address    `json:"address"`
	Balance      *hexutil.Big      `json:"balance"`
	CodeHash     common.Hash       `json:"codeHash"`
	Nonce        hexutil.Uint64    `json:"nonce"`
	StorageHash  common.Hash       `json:"storageHash"`
	AccountProof []hexutil.Bytes   `json:"accountProof"`
	StorageProof []storageProofRPC `json:"storageProof"`
}

func toProofRPC(p *query.AccountProof) *accountProofRPC {
	out := &accountProofRPC{
		Address:     p.Address,
		Balance:     (*hexutil.Big)(p.Balance),
		CodeHash:    p.CodeHash,
		Nonce:       hexutil.Uint64(p.Nonce),
		StorageHash: p.StorageHash,
	}
	for _, n := range p.AccountProof {
		out.AccountProof = append(out.AccountProof, n)
	}
	for _, sp := range p.StorageProof {
		entry := storageProofRPC{Key: sp.Key, Value: (*hexutil.Big)(sp.Value)}
		for _, n := range sp.Proof {
			entry.Proof = append(entry.Proof, n)
		}
		out.StorageProof = append(out.StorageProof, entry)
	}
	return out
}

type feeHistoryRPC struct {
	OldestBlock   hexutil.Uint64   `json:"oldestBlock"`
	BaseFeePerGas []*hexutil.Big   `json:"baseFeePerGas"`
	GasUsedRatio  []float64        `json:"gasUsedRatio"`
	Reward        [][]*hexutil.Big `json:"reward,omitempty"`
}

func toFeeHistoryRPC(r *query.FeeHistoryResult) *feeHistoryRPC {
	out := &feeHistoryRPC{OldestBlock: hexutil.Uint64(r.OldestBlock), GasUsedRatio: r.GasUsedRatio}
	for _, fee := range r.BaseFeePerGas {
		out.BaseFeePerGas = append(out.BaseFeePerGas, (*hexutil.Big)(fee))
	}
	for _, row := range r.Reward {
		var converted []*hexutil.Big
		for _, v := range row {
			converted = append(converted, (*hexutil.Big)(v))
		}
		out.Reward = append(out.Reward, converted)
	}
	return out
}
