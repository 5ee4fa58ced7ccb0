// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command verify_db opens a node's pebble data directory read-only and
// reports key-count/size statistics broken down by this node's own
// blockchain.Repository key families (header/canonical/body/receipts/
// tx-lookup/payload), as a quick sanity check after a migration or backup
// restore.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/luxfi/opmove/internal/trie"
)

// keyFamily names match the single-byte prefixes blockchain.Repository
// writes (internal/blockchain/repository.go); kept in sync by hand since
// the prefixes are unexported package internals, not a shared constant.
var keyFamily = map[byte]string{
	'H': "header",
	'N': "canonical (height->hash)",
	'B': "body",
	'X': "receipts",
	'L': "tx lookup",
	'P': "payload id -> hash",
}

func main() {
	dataDir := flag.String("data-dir", "", "Path to the node's pebble data directory")
	flag.Parse()

	if *dataDir == "" {
		fmt.Println("Usage: verify_db -data-dir /path/to/pebble")
		os.Exit(1)
	}

	kv, err := trie.OpenPebble(*dataDir)
	if err != nil {
		fmt.Printf("failed to open data directory: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = kv.Close() }()

	fmt.Printf("data directory opened: %s\n\n", *dataDir)

	iter := kv.NewIterator(nil, nil)
	defer iter.Release()

	keyCount := 0
	totalSize := int64(0)
	familyCounts := make(map[string]int)

	for iter.Next() {
		keyCount++
		key := iter.Key()
		value := iter.Value()
		totalSize += int64(len(key) + len(value))

		family := "unknown"
		if len(key) > 0 {
			if name, ok := keyFamily[key[0]]; ok {
				family = name
			}
		}
		familyCounts[family]++

		if keyCount <= 10 {
			keyHex := hex.EncodeToString(key)
			if len(keyHex) > 80 {
				keyHex = keyHex[:80] + "..."
			}
			fmt.Printf("key %d: %s (value: %d bytes)\n", keyCount, keyHex, len(value))
		}
	}
	if err := iter.Error(); err != nil {
		fmt.Printf("iterator error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== store statistics ===\n")
	fmt.Printf("total keys: %d\n", keyCount)
	fmt.Printf("total size: %d bytes (%.2f MB)\n", totalSize, float64(totalSize)/1024/1024)

	fmt.Printf("\n=== key families ===\n")
	for family, count := range familyCounts {
		fmt.Printf("%-26s %d keys\n", family, count)
	}
}
