// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/luxfi/opmove/internal/actor"
	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/mempool"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/query"
	"github.com/luxfi/opmove/internal/testutils"
	"github.com/luxfi/opmove/internal/trie"
)

const testJWTSecretHex = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

func newTestServer(t *testing.T) (*Server, *movevm.FakeVM) {
	t.Helper()
	fake := movevm.NewFakeVM()
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	resolver := evmext.NewStoreResolver(store, kv)
	repo := blockchain.NewRepository(kv)
	pool := mempool.New(mempool.Config{MaxGlobal: 1000, MaxPerAccount: 100})
	view := query.NewView(&query.Snapshot{Height: 0, Store: store, KV: kv, Repo: repo, Accounts: fake, BaseToken: fake})

	cfg := actor.Config{
		ChainID:         1337,
		GasMultiplier:   1,
		L1:              feemodel.L1Config{BaseFee: uint256.NewInt(0), BlobBaseFee: uint256.NewInt(0)},
		FeeParams:       feemodel.DefaultParams(),
		InitialBaseFee:  big.NewInt(1_000_000_000),
		DefaultGasLimit: 30_000_000,
	}
	a := actor.New(fake, fake, fake, store, kv, resolver, repo, pool, view, cfg, 8)

	genesisHeader := blockchain.AssembleHeader(blockchain.HeaderInput{Number: 0, GasLimit: cfg.DefaultGasLimit, BaseFee: cfg.InitialBaseFee, StateRoot: store.Root()}, nil, nil, 0)
	genesisBlock := &blockchain.Block{Header: genesisHeader, Value: new(big.Int)}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	require.NoError(t, a.Send(context.Background(), actor.GenesisUpdate{Block: genesisBlock}))

	reader := query.NewReader(view)
	api := actor.NewAPI(a, reader)

	secret, err := hex.DecodeString(testJWTSecretHex)
	require.NoError(t, err)

	s := NewServer(zap.NewNop(), secret)
	s.registerEthMethods(reader, a, cfg.ChainID)
	s.registerEngineMethods(api)
	return s, fake
}

func doRequest(t *testing.T, s *Server, method string, params []interface{}, bearer string) rpcResponse {
	t.Helper()
	paramsJSON := make([]json.RawMessage, len(params))
	for i, p := range params {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		paramsJSON[i] = raw
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: paramsJSON})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChainIDMethod(t *testing.T) {
	s, _ := newTestServer(t)
	resp := doRequest(t, s, "eth_chainId", nil, "")
	require.Nil(t, resp.Error)
	require.Equal(t, "0x539", resp.Result)
}

func TestUnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	resp := doRequest(t, s, "eth_bogus", nil, "")
	require.NotNil(t, resp.Error)
	require.EqualValues(t, codeInvalidMethod, resp.Error.Code)
}

func TestSendRawTransactionAccepted(t *testing.T) {
	s, fake := newTestServer(t)
	ctx := context.Background()

	key := testutils.NewKey(t)
	sender := primitives.ToMoveAddress(key.Address)
	require.NoError(t, fake.CreateIfAbsent(ctx, sender))
	require.NoError(t, fake.Mint(ctx, sender, big.NewInt(1_000_000_000_000)))

	to := common.HexToAddress("0xfeed")
	unsigned := types.NewTx(&types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(2_000_000_000), Gas: 21_000, To: &to, Value: big.NewInt(10)})
	tx, err := types.SignTx(unsigned, types.HomesteadSigner{}, key.PrivateKey)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	resp := doRequest(t, s, "eth_sendRawTransaction", []interface{}{"0x" + common.Bytes2Hex(raw)}, "")
	require.Nil(t, resp.Error)
	require.Equal(t, tx.Hash().Hex(), resp.Result)
}

func TestEngineMethodRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"engine_getPayloadV3","params":["0x0000000000000000"]}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEngineMethodAcceptsValidToken(t *testing.T) {
	s, _ := newTestServer(t)
	secret, err := hex.DecodeString(testJWTSecretHex)
	require.NoError(t, err)

	claims := jwt.MapClaims{"iat": time.Now().Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	resp := doRequest(t, s, "engine_getPayloadV3", []interface{}{"0x0000000000000000"}, signed)
	require.NotNil(t, resp.Error)
	require.EqualValues(t, codeUnknownPayload, resp.Error.Code)
}
