package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/timekeep/internal/engine"
)

// A single validator instance is used, because it caches struct parsing.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Response is the body of every non-2xx reply.
type Response struct {
	Message string  `json:"message"`
	Code    string  `json:"code,omitempty"`
	Errors  []Error `json:"errors,omitempty"`
}

// Error is a validation failure scoped to one request field.
type Error struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// write outputs a JSON body with the given status.
func write(rw http.ResponseWriter, status int, response any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(response); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_, _ = rw.Write(buf.Bytes())
}

// read decodes and validates a JSON body. On failure it writes the error
// response and returns false. An empty body decodes as the zero value.
func read(rw http.ResponseWriter, r *http.Request, value any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil && !errors.Is(err, io.EOF) {
		write(rw, http.StatusBadRequest, Response{
			Message: fmt.Sprintf("read body: %s", err.Error()),
		})
		return false
	}
	err := validate.Struct(value)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]Error, 0, len(validationErrors))
		for _, ve := range validationErrors {
			apiErrors = append(apiErrors, Error{
				Field:  ve.Field(),
				Detail: fmt.Sprintf("Validation failed for tag %q with value: \"%v\"", ve.Tag(), ve.Value()),
			})
		}
		write(rw, http.StatusBadRequest, Response{
			Message: "Validation failed",
			Code:    string(engine.ErrCodeValidation),
			Errors:  apiErrors,
		})
		return false
	}
	if err != nil {
		write(rw, http.StatusInternalServerError, Response{
			Message: fmt.Sprintf("validation: %s", err.Error()),
		})
		return false
	}
	return true
}

// writeError maps engine errors onto status codes.
func writeError(rw http.ResponseWriter, err error) {
	var ee *engine.Error
	switch {
	case errors.As(err, &ee) && ee.Code == engine.ErrCodeValidation:
		write(rw, http.StatusBadRequest, Response{Message: ee.Message, Code: string(ee.Code)})
	case errors.As(err, &ee) && ee.Code == engine.ErrCodeUnauthorized:
		write(rw, http.StatusForbidden, Response{Message: ee.Message, Code: string(ee.Code)})
	default:
		write(rw, http.StatusInternalServerError, Response{Message: "internal error"})
	}
}
