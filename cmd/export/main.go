// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command export reads this node's canonical chain from a pebble data
// directory and writes it out as a length-prefixed stream of RLP-encoded
// go-ethereum blocks, for backup or for loading into tooling that speaks
// go-ethereum's block format directly.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/trie"
)

func main() {
	dataDir := flag.String("data-dir", "", "Path to the node's pebble data directory")
	output := flag.String("output", "blocks.rlp", "Output RLP file")
	flag.Parse()

	if *dataDir == "" {
		fmt.Println("Usage: export -data-dir /path/to/pebble -output blocks.rlp")
		os.Exit(1)
	}

	kv, err := trie.OpenPebble(*dataDir)
	if err != nil {
		fmt.Printf("failed to open data directory: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()

	repo := blockchain.NewRepository(kv)

	tip, _, err := repo.Latest()
	if err != nil {
		fmt.Printf("failed to find chain tip: %v\n", err)
		os.Exit(1)
	}
	tipHeight := tip.Number()
	fmt.Printf("tip block: height=%d hash=%s\n", tipHeight, tip.Hash())

	outFile, err := os.Create(*output)
	if err != nil {
		fmt.Printf("failed to create output file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = outFile.Close() }()

	fmt.Printf("exporting blocks 0 to %d...\n", tipHeight)
	exported := 0
	for height := uint64(0); height <= tipHeight; height++ {
		block, _, err := repo.ByHeight(height)
		if err != nil {
			fmt.Printf("warning: failed to read block %d: %v\n", height, err)
			continue
		}

		body := types.Body{}
		for _, raw := range block.RawTransactions {
			var tx types.Transaction
			if err := tx.UnmarshalBinary(raw); err != nil {
				fmt.Printf("warning: failed to decode tx in block %d: %v\n", height, err)
				continue
			}
			body.Transactions = append(body.Transactions, &tx)
		}
		gethBlock := types.NewBlockWithHeader(block.Header).WithBody(body)

		blockRLP, err := rlp.EncodeToBytes(gethBlock)
		if err != nil {
			fmt.Printf("warning: failed to encode block %d: %v\n", height, err)
			continue
		}

		var lengthBuf [4]byte
		binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(blockRLP)))
		if _, err := outFile.Write(lengthBuf[:]); err != nil {
			fmt.Printf("failed to write block %d length: %v\n", height, err)
			os.Exit(1)
		}
		if _, err := outFile.Write(blockRLP); err != nil {
			fmt.Printf("failed to write block %d: %v\n", height, err)
			os.Exit(1)
		}

		exported++
		if height%100 == 0 || height == tipHeight {
			fmt.Printf("exported block %d/%d\n", height, tipHeight)
		}
	}

	fmt.Printf("\nexported %d blocks to %s\n", exported, *output)
}
