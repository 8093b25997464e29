// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package errutil

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Classified is implemented by errors that carry a kind and a machine-readable
// code, such as the auth service's tagged errors.
type Classified interface {
	error
	ErrorKind() string
	ErrorCode() string
}

// LogError logs an error with structured context.
// For classified errors it logs the kind and code. For oops errors anywhere in
// the chain it logs the oops code and context. Otherwise it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context, so trace correlation applies.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}

// Attrs returns the structured attributes describing err.
func Attrs(err error) []any {
	attrs := []any{"error", err.Error()}

	var classified Classified
	if errors.As(err, &classified) {
		attrs = append(attrs, "kind", classified.ErrorKind())
		if code := classified.ErrorCode(); code != "" {
			attrs = append(attrs, "error_code", code)
		}
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	return attrs
}
