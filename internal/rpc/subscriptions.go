// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// newHeads subscriptions: the only eth_subscribe channel spec.md §4.9
// names. A websocket connection drives one JSON-RPC call stream the same
// as the HTTP surface, but additionally accepts eth_subscribe/
// eth_unsubscribe and pushes unsolicited eth_subscription notifications,
// fed by query.View.Publish's event.Feed — grounded on
// eth/catalyst/simulated_beacon.go's withdrawalQueue fan-out shape and on
// luxfi-evm's own gorilla/websocket-backed RPC transport.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	json2 "github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"

	"github.com/luxfi/opmove/internal/query"
)

var upgrader = websocket.Upgrader{
	// Same-origin checks are the caller's reverse proxy's job; this node
	// has no browser-facing origin of its own to restrict to.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  wsSubscribeData `json:"params"`
}

type wsSubscribeData struct {
	Subscription string      `json:"subscription"`
	Result       interface{} `json:"result"`
}

// ServeWS upgrades r into a websocket connection and serves JSON-RPC calls
// plus eth_subscribe/eth_unsubscribe over it until the client disconnects.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	sess := newWSSession(conn, s)
	defer sess.close()
	sess.serve()
}

// wsSession is one client connection: its own subscription set and a
// write mutex (writeMu) that serializes the writes made by the read loop
// and by every subscription goroutine, since gorilla/websocket
// connections are not safe for concurrent writes from multiple goroutines.
type wsSession struct {
	conn   *websocket.Conn
	server *Server

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]func()
	next uint64
}

func newWSSession(conn *websocket.Conn, s *Server) *wsSession {
	return &wsSession{conn: conn, server: s, subs: make(map[string]func())}
}

func (sess *wsSession) serve() {
	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			sess.writeError(nil, &json2.Error{Code: -32700, Message: "parse error"})
			continue
		}
		sess.handle(req)
	}
}

func (sess *wsSession) handle(req rpcRequest) {
	switch req.Method {
	case "eth_subscribe":
		sess.subscribe(req)
		return
	case "eth_unsubscribe":
		sess.unsubscribe(req)
		return
	}

	handler, ok := sess.server.handlers[req.Method]
	if !ok {
		sess.writeError(req.ID, &json2.Error{Code: -32601, Message: fmt.Sprintf("method %s not found", req.Method)})
		return
	}
	result, err := handler(context.Background(), req.Params)
	if err != nil {
		sess.writeError(req.ID, &json2.Error{Code: -32000, Message: err.Error()})
		return
	}
	sess.writeResult(req.ID, result)
}

func (sess *wsSession) subscribe(req rpcRequest) {
	var kind string
	if err := param(req.Params, 0, &kind); err != nil || kind != "newHeads" {
		sess.writeError(req.ID, &json2.Error{Code: -32602, Message: "only the newHeads subscription channel is supported"})
		return
	}

	sess.mu.Lock()
	sess.next++
	id := hexutil.Uint64(sess.next).String()
	sess.mu.Unlock()

	ch := make(chan *query.Snapshot, 16)
	unsub := sess.server.view.Subscribe(ch)

	stop := make(chan struct{})
	go func() {
		defer unsub.Unsubscribe()
		for {
			select {
			case snap, ok := <-ch:
				if !ok {
					return
				}
				block, _, err := snap.Repo.ByHeight(snap.Height)
				if err != nil {
					continue
				}
				sess.notify(id, toBlockRPC(block, nil, false))
			case <-stop:
				return
			}
		}
	}()

	sess.mu.Lock()
	sess.subs[id] = func() { close(stop) }
	sess.mu.Unlock()

	sess.writeResult(req.ID, id)
}

func (sess *wsSession) unsubscribe(req rpcRequest) {
	var id string
	if err := param(req.Params, 0, &id); err != nil {
		sess.writeError(req.ID, &json2.Error{Code: -32602, Message: "invalid subscription id"})
		return
	}
	sess.mu.Lock()
	stop, ok := sess.subs[id]
	delete(sess.subs, id)
	sess.mu.Unlock()
	if ok {
		stop()
	}
	sess.writeResult(req.ID, ok)
}

func (sess *wsSession) notify(subID string, result interface{}) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.WriteJSON(wsNotification{
		JSONRPC: "2.0",
		Method:  "eth_subscription",
		Params:  wsSubscribeData{Subscription: subID, Result: result},
	})
}

func (sess *wsSession) writeResult(id json.RawMessage, result interface{}) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (sess *wsSession) writeError(id json.RawMessage, wsErr *json2.Error) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.WriteJSON(rpcResponse{JSONRPC: "2.0", ID: id, Error: wsErr})
}

func (sess *wsSession) close() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, stop := range sess.subs {
		stop()
	}
	_ = sess.conn.Close()
}

