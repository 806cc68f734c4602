package api

import (
	"net/http"

	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/log"
)

// info returns the identities of the service
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &Info{
		Admin:     a.engine.Admin(),
		ContextID: a.engine.ContextID(),
		Signer:    a.runtime.Signer(),
		Scheme:    a.runtime.PublicParams().Scheme,
	})
}

// fheKeys returns the public parameters clients encrypt with
// GET /fhe/keys
func (a *API) fheKeys(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, a.runtime.PublicParams())
}

// registerInput imports client ciphertexts and attests their handles
// POST /fhe/inputs
func (a *API) registerInput(w http.ResponseWriter, r *http.Request) {
	raw := &fhe.RawInput{}
	if err := decodeBody(r, raw); err != nil {
		httpWriteError(w, err)
		return
	}
	in, err := a.runtime.RegisterInput(r.Context(), raw)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	log.Debugw("input registered", "owner", raw.Owner.Hex(), "handles", len(in.Handles))
	httpWriteJSON(w, in)
}

// userDecrypt serves a signed decryption request
// POST /fhe/decrypt
func (a *API) userDecrypt(w http.ResponseWriter, r *http.Request) {
	req := &fhe.DecryptionRequest{}
	if err := decodeBody(r, req); err != nil {
		httpWriteError(w, err)
		return
	}
	res, err := a.runtime.UserDecrypt(r.Context(), req)
	if err != nil {
		httpWriteError(w, err)
		return
	}
	httpWriteJSON(w, res)
}
