package library

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	isbnPattern  = regexp.MustCompile(`^\d{10}(\d{3})?$`)
	phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)
)

// NewValidator returns a validator with the library's custom tags registered:
// isbn_digits (10 or 13 digits, no checksum) and phone.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isbn_digits", func(fl validator.FieldLevel) bool {
		return isbnPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

var validate = NewValidator()

// ValidISBN reports whether isbn is 10 or 13 ASCII digits.
func ValidISBN(isbn string) bool { return isbnPattern.MatchString(isbn) }

// ValidPhone reports whether phone matches the accepted loose E.164 form.
func ValidPhone(phone string) bool { return phonePattern.MatchString(phone) }

// Validate runs the tag rules and converts the first failure to a ValidationError.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate")
	}
	fe := verrs[0]
	return validationError(fe.Field(), ruleMessage(fe))
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "isbn_digits":
		return "ISBN must be 10 or 13 digits"
	case "phone":
		return `phone number must be entered in the format "+999999999"`
	default:
		return "failed " + fe.Tag() + " rule"
	}
}

// checkCopies enforces 1 <= total and 0 <= available <= total.
func checkCopies(total, available int) error {
	if total < 1 {
		return validationError("total_copies", "total copies must be at least 1")
	}
	if available < 0 {
		return validationError("available_copies", "available copies cannot be negative")
	}
	if available > total {
		return validationError("available_copies", "available copies cannot be greater than total copies")
	}
	return nil
}
