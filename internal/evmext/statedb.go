// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/luxfi/opmove/internal/primitives"
)

// accountState is the overlay's mutable view of one touched account. Fields
// mirror revm's Account/AccountInfo split from
// original_source/evm-ext/src/state_changes.rs, flattened into one struct
// since Go has no equivalent of revm's AccountStatus bitflags.
type accountState struct {
	exists     bool // the account existed in the base resolver
	loaded     bool // base state has been fetched into this overlay entry
	nonce      uint64
	balance    *uint256.Int
	codeHash   common.Hash
	code       []byte
	storage    map[common.Hash]common.Hash
	origStore  map[common.Hash]common.Hash
	storageRoot common.Hash // the account's StorageRoot as of load time, for slot fallthrough
	touched    bool
	destructed bool
	newContract bool
}

func newAccountState() *accountState {
	return &accountState{
		balance: new(uint256.Int),
		storage: make(map[common.Hash]common.Hash),
		origStore: make(map[common.Hash]common.Hash),
	}
}

// journalEntry undoes exactly one overlay mutation.
type journalEntry func(s *StateDB)

// StateDB implements github.com/ethereum/go-ethereum/core/vm.StateDB on top
// of a Resolver, capturing every account/storage mutation touched during a
// call into an in-memory overlay rather than writing through to the trie
// immediately — the Go analogue of wrapping a CacheDB around a
// ResolverBackedDB in original_source/evm-ext/src/native_evm_context.rs. The
// overlay is extracted into a Diff by ExtractChanges once the call
// completes; a reverted call simply never calls ExtractChanges.
type StateDB struct {
	resolver Resolver

	accounts map[common.Address]*accountState
	order    []common.Address // first-touched order, for deterministic diff iteration

	logs    []*types.Log
	refund  uint64

	journal []journalEntry

	accessAddrs map[common.Address]struct{}
	accessSlots map[common.Address]map[common.Hash]struct{}

	transfers []EthTransfer
}

// EthTransfer records a native-token movement observed inside the EVM, so
// the session can keep the Move base-token ledger and the EVM account
// balances consistent (original_source/evm-ext/src/events.rs EthTransfer).
type EthTransfer struct {
	From, To common.Address
	Amount   *uint256.Int
}

// NewStateDB opens a fresh overlay over resolver for a single top-level
// call/create. A new StateDB must be used per call: the overlay holds no
// persisted state of its own.
func NewStateDB(resolver Resolver) *StateDB {
	return &StateDB{
		resolver:    resolver,
		accounts:    make(map[common.Address]*accountState),
		accessAddrs: make(map[common.Address]struct{}),
		accessSlots: make(map[common.Address]map[common.Hash]struct{}),
	}
}

func (s *StateDB) account(addr common.Address) *accountState {
	a, ok := s.accounts[addr]
	if !ok {
		a = newAccountState()
		s.accounts[addr] = a
		s.order = append(s.order, addr)
	}
	if !a.loaded {
		s.load(addr, a)
	}
	return a
}

func (s *StateDB) load(addr common.Address, a *accountState) {
	a.loaded = true
	acc, err := s.resolver.GetAccount(addr)
	if err != nil || acc == nil {
		a.codeHash = primitives.EmptyCodeHash
		a.storageRoot = primitives.EmptyRoot
		return
	}
	a.exists = true
	a.nonce = acc.Nonce
	bal, overflow := uint256.FromBig(acc.Balance)
	if overflow {
		bal = new(uint256.Int)
	}
	a.balance = bal
	a.codeHash = acc.CodeHash
	a.storageRoot = acc.StorageRoot
}

// --- core/vm.StateDB ---

func (s *StateDB) CreateAccount(addr common.Address) {
	a := s.account(addr)
	prevExists, prevBal := a.exists, new(uint256.Int).Set(a.balance)
	s.journal = append(s.journal, func(s *StateDB) {
		a := s.accounts[addr]
		a.exists = prevExists
		a.balance = prevBal
	})
	a.exists = true
	a.touched = true
}

func (s *StateDB) CreateContract(addr common.Address) {
	a := s.account(addr)
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[addr].newContract = false })
	a.newContract = true
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	if amount.IsZero() {
		return
	}
	a := s.account(addr)
	prev := new(uint256.Int).Set(a.balance)
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[addr].balance = prev })
	a.balance = new(uint256.Int).Sub(a.balance, amount)
	a.touched = true
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	if amount.IsZero() {
		s.account(addr).touched = true
		return
	}
	a := s.account(addr)
	prev := new(uint256.Int).Set(a.balance)
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[addr].balance = prev })
	a.balance = new(uint256.Int).Add(a.balance, amount)
	a.touched = true
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return new(uint256.Int).Set(s.account(addr).balance)
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.account(addr).nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	a := s.account(addr)
	prev := a.nonce
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[addr].nonce = prev })
	a.nonce = nonce
	a.touched = true
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	return s.account(addr).codeHash
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	a := s.account(addr)
	if a.code != nil {
		return a.code
	}
	if a.codeHash == primitives.EmptyCodeHash || a.codeHash == (common.Hash{}) {
		return nil
	}
	code, err := s.resolver.GetCode(a.codeHash)
	if err != nil {
		return nil
	}
	a.code = code
	return code
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	a := s.account(addr)
	prevHash, prevCode := a.codeHash, a.code
	s.journal = append(s.journal, func(s *StateDB) {
		s.accounts[addr].codeHash = prevHash
		s.accounts[addr].code = prevCode
	})
	a.codeHash = crypto.Keccak256Hash(code)
	a.code = code
	a.touched = true
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) AddRefund(amount uint64) {
	prev := s.refund
	s.journal = append(s.journal, func(s *StateDB) { s.refund = prev })
	s.refund += amount
}

func (s *StateDB) SubRefund(amount uint64) {
	prev := s.refund
	s.journal = append(s.journal, func(s *StateDB) { s.refund = prev })
	if amount > s.refund {
		s.refund = 0
		return
	}
	s.refund -= amount
}

func (s *StateDB) GetRefund() uint64 { return s.refund }

func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	a := s.account(addr)
	if v, ok := a.origStore[key]; ok {
		return v
	}
	v, err := s.resolver.GetStorageSlot(a.storageRoot, ownerHash(addr), key)
	if err != nil || v == nil {
		return common.Hash{}
	}
	h := common.BigToHash(v)
	a.origStore[key] = h
	return h
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	a := s.account(addr)
	if v, ok := a.storage[key]; ok {
		return v
	}
	return s.GetCommittedState(addr, key)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) {
	a := s.account(addr)
	prev, had := a.storage[key]
	s.journal = append(s.journal, func(s *StateDB) {
		a := s.accounts[addr]
		if had {
			a.storage[key] = prev
		} else {
			delete(a.storage, key)
		}
	})
	a.storage[key] = value
	a.touched = true
}

func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	return s.account(addr).storageRoot
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	// Transient storage (EIP-1153) is not modeled: each MoveVM-dispatched
	// EVM call is its own top-level transaction from the interpreter's
	// point of view, so there is no cross-call transient state to share.
	return common.Hash{}
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {}

func (s *StateDB) SelfDestruct(addr common.Address) {
	a := s.account(addr)
	prev := a.destructed
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[addr].destructed = prev })
	a.destructed = true
	a.touched = true
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	return s.account(addr).destructed
}

func (s *StateDB) Selfdestruct6780(addr common.Address) {
	a := s.account(addr)
	if a.newContract {
		s.SelfDestruct(addr)
	}
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.account(addr).exists
}

func (s *StateDB) Empty(addr common.Address) bool {
	a := s.account(addr)
	return !a.exists || (a.nonce == 0 && a.balance.IsZero() &&
		(a.codeHash == primitives.EmptyCodeHash || a.codeHash == (common.Hash{})))
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	_, ok := s.accessAddrs[addr]
	return ok
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOk := s.AddressInAccessList(addr)
	slots, ok := s.accessSlots[addr]
	if !ok {
		return addrOk, false
	}
	_, slotOk := slots[slot]
	return addrOk, slotOk
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	if _, ok := s.accessAddrs[addr]; ok {
		return
	}
	s.journal = append(s.journal, func(s *StateDB) { delete(s.accessAddrs, addr) })
	s.accessAddrs[addr] = struct{}{}
}

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.AddAddressToAccessList(addr)
	slots, ok := s.accessSlots[addr]
	if !ok {
		slots = make(map[common.Hash]struct{})
		s.accessSlots[addr] = slots
	}
	if _, ok := slots[slot]; ok {
		return
	}
	s.journal = append(s.journal, func(s *StateDB) { delete(s.accessSlots[addr], slot) })
	slots[slot] = struct{}{}
}

func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	s.accessAddrs = make(map[common.Address]struct{})
	s.accessSlots = make(map[common.Address]map[common.Hash]struct{})
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, p := range precompiles {
		s.AddAddressToAccessList(p)
	}
	if rules.IsEIP2929 {
		s.AddAddressToAccessList(coinbase)
	}
	for _, el := range txAccesses {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
}

func (s *StateDB) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i](s)
	}
	s.journal = s.journal[:id]
}

func (s *StateDB) Snapshot() int { return len(s.journal) }

func (s *StateDB) AddLog(log *types.Log) {
	s.journal = append(s.journal, func(s *StateDB) { s.logs = s.logs[:len(s.logs)-1] })
	s.logs = append(s.logs, log)
}

func (s *StateDB) AddPreimage(hash common.Hash, preimage []byte) {}

// AddTransfer records a native-token movement for the session's Move/EVM
// balance reconciliation (original_source/evm-ext/src/events.rs
// EthTransferLog). It is not part of core/vm.StateDB; call.go's transfer
// hook invokes it directly for every value transfer the interpreter makes,
// zero-value ones included.
func (s *StateDB) AddTransfer(from, to common.Address, amount *uint256.Int) {
	s.transfers = append(s.transfers, EthTransfer{From: from, To: to, Amount: new(uint256.Int).Set(amount)})
}

func (s *StateDB) Transfers() []EthTransfer { return s.transfers }

func (s *StateDB) Logs() []*types.Log { return s.logs }

// ownerHash is the trie "owner" handle OpenStorageTrie expects: keccak256 of
// the account's tagged trie key, matching internal/trie's StorageTrie
// convention.
func ownerHash(addr common.Address) common.Hash {
	return primitives.TrieKey(primitives.TaggedEvmKey(addr))
}
