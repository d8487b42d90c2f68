package domain

import (
	"github.com/go-playground/validator/v10"

	perr "histshard/internal/platform/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateNotification checks a notification wholesale before any blob
// is touched. One malformed entry rejects the whole notification.
func ValidateNotification(n Notification) error {
	if err := validate.Struct(n); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "notification rejected")
	}
	return nil
}
