package factory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Categories are the market categories the factory accepts from marketctl.
var Categories = []string{"crypto", "sports", "entertainment", "politics", "gaming", "other"}

// timeNow is replaced in tests.
var timeNow = time.Now

// CreateRequest is the input of CreateMarket.
type CreateRequest struct {
	Question       string    `validate:"required,min=10,max=500"`
	Category       string    `validate:"required,oneof=crypto sports entertainment politics gaming other"`
	ResolutionTime time.Time `validate:"required,future"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.After(timeNow())
	})
	return v
}

// Normalize trims the question and lower-cases the category.
func (r CreateRequest) Normalize() CreateRequest {
	r.Question = strings.TrimSpace(r.Question)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	return r
}

// Validate checks r and reports every failing field. The error wraps
// domain.ErrInvalidInput.
func (r CreateRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("factory: validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("factory: %s: %w", strings.Join(msgs, "; "), domain.ErrInvalidInput)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return strings.ToLower(fe.Field()) + " is required"
	case "min", "max":
		return "question must be 10 to 500 characters"
	case "oneof":
		return "category must be one of " + strings.Join(Categories, ", ")
	case "future":
		return "resolution time must be in the future"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
