package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/bornholm/uitester/internal/task"
)

const maxRequestBodySize = 1 << 20

// writeJSONResponse writes the envelope with an HTTP status mirroring its
// code.
func writeJSONResponse(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(Envelope{Code: code, Msg: msg, Data: data}); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeSuccess(w http.ResponseWriter, msg string, data any) {
	writeJSONResponse(w, http.StatusOK, msg, data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONResponse(w, code, msg, nil)
}

func (h *Handler) handleInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	h.logger.ErrorContext(r.Context(), message, slogx.Error(errors.WithStack(err)))
	writeError(w, http.StatusInternalServerError, message)
}

// handleTaskError maps launcher errors to envelope codes.
func (h *Handler) handleTaskError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, suite.ErrNotFound):
		writeError(w, http.StatusNotFound, errorMessage(err))
	case errors.Is(err, task.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, errorMessage(err))
	case errors.Is(err, task.ErrInvalidRequest), errors.Is(err, task.ErrNotRunning):
		writeError(w, http.StatusBadRequest, errorMessage(err))
	default:
		h.handleInternalError(w, r, err, message)
	}
}

// errorMessage returns the outermost message of err, without the stack.
func errorMessage(err error) string {
	var invalid *task.InvalidRequestError
	if errors.As(err, &invalid) {
		return invalid.Error()
	}

	return err.Error()
}

func (h *Handler) parseJSONRequest(r *http.Request, dest any) error {
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return errors.New("Content-Type must be application/json")
		}
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))

	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return errors.Errorf("invalid JSON: %v", err)
	}

	if err := h.validate.Struct(dest); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			field := validationErrors[0]
			return errors.Errorf("%s is %s", field.Field(), field.Tag())
		}

		return errors.WithStack(err)
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.Errorf("invalid '%s' parameter '%s'", name, raw)
	}

	return value, nil
}
