// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `LoadFrom` calls `validateStruct` after unmarshalling and defaulting.
// Any validation error aborts startup, so the binary never runs with
// partial or malformed configuration.
//
// Cross-field rules that tags cannot express live in `crossCheck`.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	return crossCheck(c)
}

func crossCheck(c *Config) error {
	if c.Database.MaxIdle > c.Database.MaxOpen {
		return errors.New("database.max_idle exceeds database.max_open")
	}
	if c.Auth.CookieSecure && strings.HasPrefix(c.HTTP.FrontendBaseURL, "http:") {
		return errors.New("auth.cookie_secure requires an https frontend_base_url")
	}
	return nil
}
