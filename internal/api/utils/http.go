package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
	"github.com/Marketen/exitbus-verifier/internal/clproof"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
	"github.com/Marketen/exitbus-verifier/internal/merkle"
	"github.com/Marketen/exitbus-verifier/internal/requests"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error { return e.cause }

// HTTPError create an error with http status code.
func HTTPError(cause error, status int) error {
	return &httpError{
		cause:  cause,
		status: status,
	}
}

// BadRequest convenience method to create http bad request error.
func BadRequest(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusBadRequest,
	}
}

// NotFound convenience method to create http not found error.
func NotFound(cause error) error {
	return &httpError{
		cause:  cause,
		status: http.StatusNotFound,
	}
}

// rejections are caller mistakes or proofs that do not hold.
var rejections = []error{
	clproof.ErrUnsupportedSlot,
	clproof.ErrInvalidBlockHeader,
	clproof.ErrInvalidGIndex,
	clproof.ErrProofVerificationFailed,
	merkle.ErrProofLengthMismatch,
	merkle.ErrInvalidGIndex,
	merkle.ErrIndexOutOfRange,
	domain.ErrRootNotFound,
	ports.ErrNotCanonical,
	requests.ErrUnsupportedRequestsDataFormat,
	requests.ErrInvalidRequestsDataLength,
	requests.ErrInvalidRequestsDataSortOrder,
	requests.ErrInvalidModuleID,
	requests.ErrInvalidNodeOperatorID,
	requests.ErrKeyIndexOutOfRange,
	requests.ErrTooManyExitRequestsInReport,
	requests.ErrMalformedPubkeysArray,
	services.ErrExitHashAlreadySubmitted,
	services.ErrRequestsAlreadyDelivered,
	services.ErrRequestsNotDelivered,
	services.ErrNoExitDataIndexes,
	services.ErrExitDataIndexOutOfRange,
	services.ErrInvalidExitDataIndexSortOrder,
	services.ErrExitRequestWitnessMismatch,
	exitlimit.ErrTooLargeExitsPerFrame,
	exitlimit.ErrTooLargeMaxExitRequestsLimit,
	exitlimit.ErrZeroFrameDuration,
}

// StatusOf maps an error returned by the services to a response status.
func StatusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, ports.ErrNotFound),
		errors.Is(err, services.ErrExitHashNotSubmitted),
		errors.Is(err, services.ErrUnknownLimiter):
		return http.StatusNotFound
	case errors.Is(err, services.ErrExitRequestsLimit),
		errors.Is(err, exitlimit.ErrExitRequestsLimitExceeded):
		return http.StatusTooManyRequests
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// HandlerFunc like http.HandlerFunc, but it returns an error.
// The response status is chosen by StatusOf.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc convert HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			http.Error(w, err.Error(), StatusOf(err))
		}
	}
}

// content types
const (
	JSONContentType = "application/json; charset=utf-8"
)

// ParseJSON parse a JSON object using strict mode.
func ParseJSON(r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// WriteJSON response an object in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj interface{}) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// M shortcut for type map[string]interface{}.
type M map[string]interface{}
