// Package boundary runs best-effort side calls whose failure must not propagate.
package boundary

import (
	"fmt"
	"log/slog"
)

// Run calls fn, converting a panic into an error. Failures are logged at WARN
// with the given attributes and returned so the caller can record a status flag.
func Run(logger *slog.Logger, name string, fn func() error, attrs ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
		if err != nil && logger != nil {
			logger.Warn(name+" failed", append(attrs, "error", err)...)
		}
	}()
	return fn()
}
