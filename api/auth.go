package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
)

const (
	// TimestampHeader carries the unix time in milliseconds the request was
	// signed at.
	TimestampHeader = "X-Timestamp"
	// SignatureHeader carries the signature of AuthMessage.
	SignatureHeader = "X-Signature"
	// MaxRequestAge is how far a request timestamp may be from the server
	// clock, in both directions. A signed request is accepted once within
	// that window.
	MaxRequestAge = 5 * time.Minute
	// maxBodySize bounds the body read by the authentication middleware.
	maxBodySize = 4 << 20
)

type callerKey struct{}

// AuthMessage returns the payload a caller signs to authenticate a request:
// the method, the path, the timestamp and the keccak hash of the body.
func AuthMessage(method, path string, timestamp int64, body []byte) []byte {
	return []byte(fmt.Sprintf("%s %s\n%d\n%x", method, path, timestamp, ethereum.HashRaw(body)))
}

// authenticated recovers the caller address from the request signature and
// stores it in the request context.
func (a *API) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts, err := strconv.ParseInt(r.Header.Get(TimestampHeader), 10, 64)
		if err != nil {
			ErrMissingAuth.With("missing timestamp").Write(w)
			return
		}
		signedAt := time.UnixMilli(ts)
		age := a.now().Sub(signedAt)
		if age > MaxRequestAge || age < -MaxRequestAge {
			ErrMissingAuth.Withf("timestamp %d out of window", ts).Write(w)
			return
		}
		signature, err := types.HexStringToHexBytes(r.Header.Get(SignatureHeader))
		if err != nil || len(signature) == 0 {
			ErrMissingAuth.With("missing signature").Write(w)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			ErrMalformedBody.WithErr(err).Write(w)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		msg := AuthMessage(r.Method, r.URL.Path, ts, body)
		caller, err := ethereum.AddrFromSignature(msg, signature)
		if err != nil {
			ErrInvalidSignature.WithErr(err).Write(w)
			return
		}
		// the digest covers the signed content and not the signature, which
		// could be altered into another valid one
		digest := ethereum.HashRaw(append(caller.Bytes(), msg...))
		if err := a.storage.ConsumeRequest(digest, signedAt.Add(MaxRequestAge)); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				ErrMissingAuth.With("request already used").Write(w)
				return
			}
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// callerFrom returns the authenticated caller of the request.
func callerFrom(r *http.Request) (common.Address, bool) {
	caller, ok := r.Context().Value(callerKey{}).(common.Address)
	return caller, ok
}

// pruneRequests periodically forgets the consumed requests whose timestamp
// left the accepted window, until ctx is done.
func (a *API) pruneRequests(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.storage.PruneRequests(a.now())
			if err != nil {
				log.Warnw("failed to prune consumed requests", "error", err.Error())
				continue
			}
			if n > 0 {
				log.Debugw("pruned consumed requests", "count", n)
			}
		}
	}
}
