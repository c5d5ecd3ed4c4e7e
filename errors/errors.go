// Package errors defines the closed set of error kinds the pipeline and
// intake API classify failures into, plus the JSON HTTP error helpers the
// intake API uses to report them.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/vodcompress/log"
)

// Kind is the closed set of machine-readable error kinds a job or API call
// can fail with.
type Kind string

const (
	FileNotFound      Kind = "FileNotFound"
	FileTooLarge       Kind = "FileTooLarge"
	DurationTooLong    Kind = "DurationTooLong"
	InvalidCodec       Kind = "InvalidCodec"
	InvalidContainer   Kind = "InvalidContainer"
	VideoCorrupted     Kind = "VideoCorrupted"
	DownloadFailed     Kind = "DownloadFailed"
	DownloadRejected   Kind = "DownloadRejected"
	TranscodeFailed    Kind = "TranscodeFailed"
	BrokerUnavailable  Kind = "BrokerUnavailable"
	Unauthorized       Kind = "Unauthorized"
	ValidationError    Kind = "ValidationError"
	RateLimited        Kind = "RateLimited"
	InternalError      Kind = "InternalError"
)

// fatalKinds immediately fail a pipeline attempt; anything else encountered
// mid-attempt (a single rendition failing, HLS failing, thumbnail failing)
// is a partial failure that gets logged and absorbed.
var fatalKinds = map[Kind]bool{
	FileNotFound:     true,
	FileTooLarge:     true,
	DurationTooLong:  true,
	InvalidCodec:     true,
	InvalidContainer: true,
	VideoCorrupted:   true,
	DownloadRejected: true,
}

// JobError is a pipeline-classified error: a Kind plus the underlying cause.
type JobError struct {
	Kind Kind
	Err  error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error { return e.Err }

// NewJobError classifies err under kind.
func NewJobError(kind Kind, err error) *JobError {
	return &JobError{Kind: kind, Err: err}
}

// IsFatal reports whether err (or any JobError it wraps) is one of the
// kinds that must short-circuit a pipeline attempt rather than be absorbed.
func IsFatal(err error) bool {
	var jerr *JobError
	if errors.As(err, &jerr) {
		return fatalKinds[jerr.Kind]
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to InternalError if err
// isn't a classified JobError.
func KindOf(err error) Kind {
	var jerr *JobError
	if errors.As(err, &jerr) {
		return jerr.Kind
	}
	return InternalError
}

// Unretriable wraps err so that backoff.Retry gives up immediately instead
// of retrying it, following the same backoff.PermanentError primitive the
// teacher uses for non-transient failures (e.g. a 4xx from a remote probe).
func Unretriable(err error) error {
	return backoff.Permanent(err)
}

// IsUnretriable reports whether err was wrapped with Unretriable.
func IsUnretriable(err error) bool {
	var permErr *backoff.PermanentError
	return errors.As(err, &permErr)
}

// apiResponse is the JSON body every intake API error response carries,
// per the {status, message, code, error?} contract.
type apiResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    Kind   `json:"code"`
	Error   string `json:"error,omitempty"`
}

func writeHTTPError(w http.ResponseWriter, msg string, status int, code Kind, err error) {
	resp := apiResponse{Status: status, Message: msg, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
}

func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) {
	writeHTTPError(w, msg, http.StatusUnauthorized, Unauthorized, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) {
	writeHTTPError(w, msg, http.StatusBadRequest, ValidationError, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) {
	writeHTTPError(w, msg, http.StatusNotFound, FileNotFound, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, msg string, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeHTTPError(w, msg, http.StatusTooManyRequests, RateLimited, nil)
}

func WriteHTTPServiceUnavailable(w http.ResponseWriter, msg string, err error) {
	writeHTTPError(w, msg, http.StatusServiceUnavailable, BrokerUnavailable, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) {
	writeHTTPError(w, msg, http.StatusInternalServerError, InternalError, err)
}
