package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

const defaultMaxBodyBytes = 1 << 20

// respondJSON writes v with the given status code.
func (a *API) respondJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warnw("Failed to encode response", "error", err, "request_id", requestID(r))
	}
}

// respondMessage writes {"message": msg}.
func (a *API) respondMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	a.respondJSON(w, r, status, map[string]string{"message": msg})
}

// writeError writes {"error": message} and logs the underlying error. For
// 5xx statuses the message is always generic.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	fields := []interface{}{"status_code", status, "path", r.URL.Path, "request_id", requestID(r)}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if status >= http.StatusInternalServerError {
		a.logger.Errorw(message, fields...)
		message = "Internal server error"
	} else {
		a.logger.Debugw(message, fields...)
	}
	a.respondJSON(w, r, status, map[string]string{"error": message})
}

func requestID(r *http.Request) string {
	id, _ := GetRequestID(r.Context())
	return id
}

func (a *API) maxBodyBytes() int64 {
	if a.config.Server.MaxBodyBytes > 0 {
		return a.config.Server.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

// decodeJSONBody decodes the request body into dst with the configured size
// limit, rejecting unknown fields. On failure it writes the response and
// returns false.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes())
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(dst)
	if err == nil {
		return true
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesError):
		a.writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large", err)
	case errors.As(err, &syntaxError):
		a.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err)
	case errors.As(err, &unmarshalTypeError):
		a.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid type for field '%s': expected %s, got %s", unmarshalTypeError.Field, unmarshalTypeError.Type, unmarshalTypeError.Value), err)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		a.writeError(w, r, http.StatusBadRequest, "JSON contains "+strings.TrimPrefix(err.Error(), "json: "), err)
	case errors.Is(err, io.EOF):
		a.writeError(w, r, http.StatusBadRequest, "Request body is required", err)
	default:
		a.writeError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error(), err)
	}
	return false
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// clientIP returns the connecting address without its port.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
