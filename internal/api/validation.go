package api

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"amsdb/internal/dberr"
)

var keyCharsRegex = regexp.MustCompile(`^\w+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// letters, digits and underscore only
	_ = v.RegisterValidation("keychars", func(fl validator.FieldLevel) bool {
		return keyCharsRegex.MatchString(fl.Field().String())
	})
	return v
}

// keyRequest is the URI of every per-key route.
type keyRequest struct {
	DB  string `uri:"db" validate:"required,max=64,keychars"`
	Key string `uri:"key" validate:"required,max=255,keychars"`
}

// dbRequest is the URI of every per-database route.
type dbRequest struct {
	DB string `uri:"db" validate:"required,max=64,keychars"`
}

// scanQuery holds the query parameters of the scan route.
type scanQuery struct {
	From   string `form:"from" validate:"omitempty,max=255"`
	Prefix string `form:"prefix" validate:"omitempty,max=255,excluded_with=From"`
	Limit  int    `form:"limit" validate:"min=0,max=10000"`
}

// ValidateName checks a database name.
func ValidateName(name string) error {
	return validationError("api.validate_name", validate.Var(name, "required,max=64,keychars"))
}

// ValidateKey checks a key as accepted by the HTTP front end.
func ValidateKey(key string) error {
	return validationError("api.validate_key", validate.Var(key, "required,max=255,keychars"))
}

func validateRequest(req any) error {
	return validationError("api.validate_request", validate.Struct(req))
}

// validationError turns validator errors into one readable validation error.
func validationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dberr.Validation(op, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if field == "" {
			field = "value"
		}
		if fe.Param() != "" {
			msgs = append(msgs, field+" failed "+fe.Tag()+"="+fe.Param())
		} else {
			msgs = append(msgs, field+" failed "+fe.Tag())
		}
	}
	return dberr.Validationf(op, "%s", strings.Join(msgs, "; "))
}
