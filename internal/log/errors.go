package log

import (
	"context"
	"errors"

	"budgetbook/internal/core"
)

// ErrorType classifies err into one of the ErrorType* categories.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrDenied), errors.Is(err, core.ErrForbidden):
		return ErrorTypeDenied
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrFieldNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrFieldExists), errors.Is(err, core.ErrInvitationPending):
		return ErrorTypeConflict
	case errors.Is(err, core.ErrPartialMigration):
		return ErrorTypePartial
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidCurrency), errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidColor), errors.Is(err, core.ErrInvalidFieldType),
		errors.Is(err, core.ErrOutOfRange):
		return ErrorTypeValidation
	}
	return ErrorTypeInternal
}
