package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/storage"
	"github.com/vocdoni/skillrating/types"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// httpWriteError maps errors returned by the engine and the runtime to their
// API error and writes it.
func httpWriteError(w http.ResponseWriter, err error) {
	var apiErr Error
	if errors.As(err, &apiErr) {
		apiErr.Write(w)
		return
	}
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		apiErr = ErrUnauthorized
	case errors.Is(err, engine.ErrInvalidRound):
		apiErr = ErrInvalidRound
	case errors.Is(err, engine.ErrNotAMember):
		apiErr = ErrNotAMember
	case errors.Is(err, engine.ErrSelfRating):
		apiErr = ErrSelfRating
	case errors.Is(err, engine.ErrDuplicateRating):
		apiErr = ErrDuplicateRating
	case errors.Is(err, engine.ErrWeightsNotSet):
		apiErr = ErrWeightsNotSet
	case errors.Is(err, engine.ErrNoRatings):
		apiErr = ErrNoRatings
	case errors.Is(err, storage.ErrNotFound):
		apiErr = ErrAggregateNotFound
	case errors.Is(err, fhe.ErrInvalidProof), errors.Is(err, fhe.ErrInvalidInput), errors.Is(err, fhe.ErrUnknownHandle):
		apiErr = ErrInvalidInput
	case errors.Is(err, fhe.ErrNotAllowed), errors.Is(err, fhe.ErrExpiredAuthorization),
		errors.Is(err, fhe.ErrReplayedRequest), errors.Is(err, fhe.ErrInvalidSignature):
		apiErr = ErrDecryptionNotAllowed
	case errors.Is(err, engine.ErrCapabilityFailure):
		apiErr = ErrCapabilityFailure
	case errors.Is(err, engine.ErrTooManySubscribers):
		apiErr = ErrTooManySubscribers
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apiErr.Because(err).Write(w)
}

// decodeBody decodes the JSON request body into out.
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return ErrMalformedBody.Withf("could not decode request body: %v", err)
	}
	return nil
}

// urlRound parses the round id URL parameter.
func urlRound(r *http.Request) (types.RoundID, error) {
	round, err := types.ParseRoundID(chi.URLParam(r, RoundURLParam))
	if err != nil {
		return types.NoRound, ErrMalformedRoundID.WithErr(err)
	}
	return round, nil
}

// urlAddress parses an address URL parameter.
func urlAddress(r *http.Request, param string) (common.Address, error) {
	s := chi.URLParam(r, param)
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrMalformedAddress.Withf("%q", s)
	}
	return common.HexToAddress(s), nil
}

// requireCaller returns the authenticated caller of the request.
func requireCaller(r *http.Request) (common.Address, error) {
	caller, ok := callerFrom(r)
	if !ok {
		return common.Address{}, ErrMissingAuth
	}
	return caller, nil
}
