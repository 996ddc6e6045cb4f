package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/erazemk/knjiznica/internal/ledger"
	"github.com/erazemk/knjiznica/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listResponse struct {
	Data       any              `json:"data"`
	Pagination store.Pagination `json:"pagination"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a failure response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, messageResponse{Success: false, Message: message})
}

// jsonMessage writes a success response that carries no entity.
func jsonMessage(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, messageResponse{Success: true, Message: message})
}

// decodeJSON decodes a JSON request body into target and validates it.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errInvalidBody
	}
	return validate.Struct(target)
}

var errInvalidBody = errors.New("invalid request body")

// writeDecodeError reports a decodeJSON failure.
func writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		jsonError(w, http.StatusBadRequest, validationMessage(verrs))
		return
	}
	jsonError(w, http.StatusBadRequest, errInvalidBody.Error())
}

// writeLedgerError maps a ledger failure to its HTTP status. Anything that is
// not a rule violation is logged and reported as an internal error.
func writeLedgerError(w http.ResponseWriter, err error, action string) {
	var le *ledger.Error
	if !errors.As(err, &le) {
		slog.Error("failed to "+action, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusBadRequest
	switch le.Kind {
	case ledger.NotFound:
		status = http.StatusNotFound
	case ledger.Unauthorized:
		status = http.StatusForbidden
	case ledger.Conflict:
		status = http.StatusConflict
	}
	jsonError(w, status, le.Message)
}

// pathID parses the named path value as an ID, writing a 400 if it is not one.
func pathID(w http.ResponseWriter, r *http.Request, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		jsonError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

// queryPage reads the page and limit query parameters.
func queryPage(r *http.Request) store.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return store.Page{Page: page, Limit: limit}
}

// queryInt64 reads an optional integer query parameter.
func queryInt64(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// queryTime reads an optional date (2006-01-02) or RFC 3339 timestamp. A bare
// date used as an upper bound covers the whole day.
func queryTime(r *http.Request, name string, endOfDay bool) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
