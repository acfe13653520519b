package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/apperr"
)

// Envelope is the body shape shared by every service in the shop, including the
// external inventory service.
type Envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type response struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, code int, message string, data any) {
	WriteJSON(w, code, response{Status: StatusSuccess, Message: message, Data: data})
}

// Error renders err with the status that matches its kind. Internal errors never
// leak their message.
func Error(w http.ResponseWriter, err error) {
	status := StatusFromKind(apperr.KindOf(err))
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "an unexpected error occurred"
	}
	WriteJSON(w, status, response{Status: StatusError, Code: apperr.CodeOf(err), Message: msg})
}

func StatusFromKind(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body, rejecting unknown fields and trailing garbage.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.ErrInvalidInput.With("invalid json body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.ErrInvalidInput.With("invalid json body: trailing data")
	}
	return nil
}

// DecodeOptional is Decode for endpoints whose body may be absent.
func DecodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperr.ErrInvalidInput.With("read body: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return Decode(r, dst)
}

// ReadEnvelope parses a response from another shop service. Non-success envelopes
// are turned back into typed errors using their code.
func ReadEnvelope(body io.Reader) (Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		return Envelope{}, err
	}
	if env.Status == StatusError {
		return env, apperr.FromCode(env.Code, env.Message)
	}
	return env, nil
}
