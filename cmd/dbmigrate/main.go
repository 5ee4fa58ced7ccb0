// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command dbmigrate copies a node's pebble-backed key-value store from one
// data directory to another, batching writes the way the teacher's
// multi-backend migration tool did, narrowed to this node's single backend
// (internal/trie.OpenPebble — see DESIGN.md on why the teacher's
// luxfi/database/factory multi-backend abstraction was dropped).
// Intended use: copying a data dir onto new disk layout, or restoring a
// pebble store from a backup snapshot taken while the node was stopped.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/luxfi/opmove/internal/trie"
)

func main() {
	var (
		sourceDir = flag.String("source-dir", "", "Path to source pebble data directory")
		targetDir = flag.String("target-dir", "", "Path to target pebble data directory")
		batchSize = flag.Int("batch-size", 10000, "Number of key-value pairs to write per batch")
		verify    = flag.Bool("verify", true, "Verify migration by comparing key counts")
	)
	flag.Parse()

	if *sourceDir == "" || *targetDir == "" {
		fmt.Println("Usage: dbmigrate -source-dir <path> -target-dir <path> [-batch-size N] [-verify]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*targetDir), 0o755); err != nil {
		log.Fatalf("create target parent directory: %v", err)
	}

	fmt.Printf("opening source store at %s...\n", *sourceDir)
	src, err := trie.OpenPebble(*sourceDir)
	if err != nil {
		log.Fatalf("open source store: %v", err)
	}
	defer func() { _ = src.Close() }()

	fmt.Printf("opening target store at %s...\n", *targetDir)
	dst, err := trie.OpenPebble(*targetDir)
	if err != nil {
		log.Fatalf("open target store: %v", err)
	}
	defer func() { _ = dst.Close() }()

	fmt.Println("starting migration...")
	start := time.Now()

	keyCount := 0
	batch := dst.NewBatch()
	batchKeyCount := 0

	iter := src.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)

		if err := batch.Put(key, value); err != nil {
			log.Fatalf("put key: %v", err)
		}
		keyCount++
		batchKeyCount++

		if batchKeyCount >= *batchSize {
			if err := batch.Write(); err != nil {
				log.Fatalf("write batch: %v", err)
			}
			fmt.Printf("migrated %d keys...\n", keyCount)
			batch.Reset()
			batchKeyCount = 0
		}
	}
	if batchKeyCount > 0 {
		if err := batch.Write(); err != nil {
			log.Fatalf("write final batch: %v", err)
		}
	}
	if err := iter.Error(); err != nil {
		log.Fatalf("iterator error: %v", err)
	}

	duration := time.Since(start)
	fmt.Printf("\nmigration complete: %d keys in %v (%.2f keys/sec)\n", keyCount, duration, float64(keyCount)/duration.Seconds())

	if !*verify {
		return
	}
	fmt.Println("verifying migration...")
	verifyIter := dst.NewIterator(nil, nil)
	defer verifyIter.Release()
	verifyCount := 0
	for verifyIter.Next() {
		verifyCount++
	}
	if err := verifyIter.Error(); err != nil {
		log.Printf("warning: verification iterator error: %v", err)
		return
	}
	if verifyCount == keyCount {
		fmt.Printf("verification passed: %d keys in target store\n", verifyCount)
	} else {
		fmt.Printf("verification failed: expected %d keys, found %d\n", keyCount, verifyCount)
	}
}
