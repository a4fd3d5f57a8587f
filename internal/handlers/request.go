package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its struct tags. An empty
// body is treated as an empty object.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperror.InvalidInput("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.InvalidInput("invalid request body")
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperror.InvalidInput(fmt.Sprintf("%s is required", field))
	case "min", "gte":
		return apperror.InvalidInput(fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "max", "lte":
		return apperror.InvalidInput(fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	case "oneof":
		return apperror.InvalidInput(fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	}
	return apperror.InvalidInput(fmt.Sprintf("%s is invalid", field))
}

// idParam parses a positive numeric URL parameter.
func idParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.InvalidInput(fmt.Sprintf("invalid %s", name))
	}
	return uint(id), nil
}

// optionalIDQuery parses an optional numeric query parameter; empty or
// "root" means the scope root.
func optionalIDQuery(r *http.Request, name string) (*uint, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" || raw == "root" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return nil, apperror.InvalidInput(fmt.Sprintf("invalid %s", name))
	}
	v := uint(id)
	return &v, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.InvalidInput(fmt.Sprintf("invalid %s", name))
	}
	return v, nil
}
