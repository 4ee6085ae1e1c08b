package modlog

import (
	"context"
	"errors"

	"github.com/apexion-ai/threadbot/internal/dispatch"
)

// Multi sends every report to each log in order. A failing log does not
// stop the others; all errors are joined.
type Multi []dispatch.ModerationLog

func (m Multi) Flagged(ctx context.Context, r dispatch.Report) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Flagged(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) Blocked(ctx context.Context, r dispatch.Report) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Blocked(ctx, r))
	}
	return errors.Join(errs...)
}
