package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/aes67-nmos/internal/aes67d"
	"github.com/ManuGH/aes67-nmos/internal/connection"
)

// errorBody is the NMOS error schema shared by IS-04 and IS-05.
type errorBody struct {
	Code  int     `json:"code"`
	Error string  `json:"error"`
	Debug *string `json:"debug"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string, debug string) {
	body := errorBody{Code: code, Error: msg}
	if debug != "" {
		body.Debug = &debug
	}
	writeJSON(w, code, body)
}

// writeOperationError maps controller and daemon failures onto the NMOS
// error envelope.
func writeOperationError(w http.ResponseWriter, err error) {
	var daemonErr *aes67d.DaemonError
	switch {
	case errors.Is(err, connection.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid staged parameters", err.Error())
	case errors.Is(err, connection.ErrModeNotImplemented):
		writeError(w, http.StatusNotImplemented, "activation mode not implemented", err.Error())
	case errors.As(err, &daemonErr):
		writeError(w, http.StatusInternalServerError, "daemon operation failed", daemonErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
