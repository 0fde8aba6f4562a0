package scanner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"StratLab/internal/domain/models"
)

var validate = validator.New()

// Validate applies defaults to s and rejects it when required parts are missing or malformed.
// An unnamed strategy takes its ID as name. Callers that must not see s change pass a Clone.
func Validate(s *models.Strategy) error {
	if s == nil {
		return &models.ValidationError{Fields: []models.FieldError{{Field: "strategy", Message: "strategy is required"}}}
	}
	if err := defaults.Set(s); err != nil {
		return fmt.Errorf("apply strategy defaults: %w", err)
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate strategy: %w", err)
	}
	out := &models.ValidationError{Fields: make([]models.FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Strategy.")
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out.Fields = append(out.Fields, models.FieldError{Field: field, Message: "failed " + msg})
	}
	return out
}
