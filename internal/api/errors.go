package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	respond "github.com/qaintel/eventmemory/internal/api/respond"
	"github.com/qaintel/eventmemory/internal/api/validate"
	"github.com/qaintel/eventmemory/internal/model"
)

const maxBodyBytes = 1 << 20

var (
	errBadK         = fmt.Errorf("k must be between 1 and %d", validate.MaxLimit)
	errBadMaxEvents = fmt.Errorf("max_events must be between 1 and %d", validate.MaxEventsCap)
)

// writeServiceError maps domain sentinels to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrConflict):
		respond.WriteConflict(w, err.Error())
	default:
		log.Error().Stack().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		respond.WriteInternalError(w, "internal error")
	}
}

// decodeJSON reads a JSON body into v. An empty body is accepted when
// allowEmpty is set and leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid JSON: %v", err)
	}
	return nil
}
