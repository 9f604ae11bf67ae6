package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level, concurrency-safe validator instance used to
// check scalar request values (instance ids, EX seconds) that don't warrant
// a full struct.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON request body into dst. It enforces a max body size.
// Used for the body-encoded command array (dispatch parses the raw
// json.RawMessage elements itself, since command arguments are
// heterogeneous and not a fixed struct shape).
func Decode(r *http.Request, dst any) error {
	const maxBody = 1 << 20 // 1 MiB

	body := http.MaxBytesReader(nil, r.Body, maxBody)
	defer body.Close()

	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("request body too large (max 1 MiB)")
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON value")
	}

	return nil
}

// ValidateUUID reports whether s is a well-formed UUID, without pulling in
// a parse-and-discard just to check shape.
func ValidateUUID(s string) bool {
	return validate.Var(s, "required,uuid") == nil
}

// ValidateNonNegativeInt reports whether n is zero or positive, used to
// bound-check the EX= query parameter before it reaches Redis.
func ValidateNonNegativeInt(n int) bool {
	return validate.Var(n, "gte=0") == nil
}
