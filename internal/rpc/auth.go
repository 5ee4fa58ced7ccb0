// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	errMissingBearerToken      = errors.New("rpc: missing bearer token")
	errUnexpectedSigningMethod = errors.New("rpc: unexpected JWT signing method")
	errMissingIatClaim         = errors.New("rpc: JWT missing iat claim")
	errStaleToken              = errors.New("rpc: JWT iat claim outside the allowed clock skew")
)

// jwtClockSkew bounds how far a token's iat claim may drift from wall
// clock, mirroring the 5-second window go-ethereum's own Engine-API JWT
// middleware enforces (catalyst/api.go's jwtHandler).
const jwtClockSkew = 5 * time.Second

// checkBearerToken validates the Authorization: Bearer <jwt> header spec §6
// requires on every engine_* call: an HS256 token signed with secret whose
// iat claim falls within jwtClockSkew of now. server.go calls this inline
// once it knows a request's method falls in the engine_ namespace, rather
// than gating at the net/http layer, since method dispatch here only
// happens after the JSON-RPC envelope is parsed (see server.go).
func checkBearerToken(r *http.Request, secret []byte) error {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return errMissingBearerToken
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return secret, nil
	})
	if err != nil {
		return err
	}

	iat, ok := claims["iat"]
	if !ok {
		return errMissingIatClaim
	}
	seconds, ok := iat.(float64)
	if !ok {
		return errMissingIatClaim
	}
	issued := time.Unix(int64(seconds), 0)
	if drift := time.Since(issued); drift > jwtClockSkew || drift < -jwtClockSkew {
		return errStaleToken
	}
	return nil
}
