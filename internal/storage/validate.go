package storage

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// FeedbackInput is the intake shape for new feedback. Sentiment and
// confidence default to zero, which is inside both valid ranges.
type FeedbackInput struct {
	ID         string    `json:"id"`
	Text       string    `json:"text" validate:"required"`
	Category   Category  `json:"category" validate:"required,oneof=health infrastructure safety other"`
	Sentiment  float64   `json:"sentiment" validate:"gte=-1,lte=1"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	Timestamp  time.Time `json:"timestamp"`
	Embedding  []byte    `json:"-"`
}

// ValidationResult reports every violation at once so callers can
// surface them together. Invalid input is a value, not an error.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

var feedbackValidator = validator.New()

// ValidateFeedback checks a feedback submission: non-empty text, a known
// category, sentiment in [-1, 1] and confidence in [0, 1].
func ValidateFeedback(in FeedbackInput) ValidationResult {
	err := feedbackValidator.Struct(in)
	if err == nil {
		return ValidationResult{IsValid: true, Errors: []string{}}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationResult{Errors: []string{err.Error()}}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return ValidationResult{Errors: msgs}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Text":
		return "text must not be empty"
	case "Category":
		return "category must be one of: health, infrastructure, safety, other"
	case "Sentiment":
		return "sentiment must be between -1 and 1"
	case "Confidence":
		return "confidence must be between 0 and 1"
	default:
		return fe.Field() + " is invalid"
	}
}
