package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrValidation matches every *Error via errors.Is.
var ErrValidation = errors.New("validation_error")

const (
	MaxNotesLength  = 500
	MaxReasonLength = 200
)

// PaymentMethods is the closed set of accepted payment methods.
var PaymentMethods = []string{"cash", "card", "bank_transfer", "online", "check"}

// Error reports the first invalid field of a request.
type Error struct {
	Field  string
	Reason string
}

func New(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *Error) Is(target error) bool {
	return target == ErrValidation
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
		_ = v.RegisterValidation("snowflake", isSnowflake)
		v.RegisterAlias("payment_method", "oneof="+strings.Join(PaymentMethods, " "))
		validate = v
	})
	return validate
}

// decimalValue lets numeric tags (gt, gte) apply to decimal amounts.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func isSnowflake(fl validator.FieldLevel) bool {
	id, err := snowflake.ParseString(strings.TrimSpace(fl.Field().String()))
	return err == nil && id > 0
}

// Struct validates v and converts the first failure into an *Error.
func Struct(v interface{}) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return New(fe.Field(), reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "snowflake":
		return "must be a valid identifier"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "payment_method":
		return "must be one of " + strings.Join(PaymentMethods, ", ")
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

// ParseID parses a snowflake identifier, reporting failures against field.
func ParseID(field, value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, New(field, "must be a valid identifier")
	}
	return id, nil
}

// ParseOptionalID is ParseID for fields that may be blank.
func ParseOptionalID(field, value string) (snowflake.ID, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return ParseID(field, value)
}
