package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	var errs ValidationErrors
	if err := bv.validate.Struct(s); err != nil {
		errs = append(errs, ToValidationErrors(err)...)
	}

	switch req := s.(type) {
	case *QuestionCreateRequest:
		errs = append(errs, bv.validateCorrectAnswer(req.Variants, req.CorrectAnswer)...)
	case QuestionCreateRequest:
		errs = append(errs, bv.validateCorrectAnswer(req.Variants, req.CorrectAnswer)...)
	case *QuestionUpdateRequest:
		if req.Text != nil && strings.TrimSpace(*req.Text) == "" {
			errs = append(errs, ValidationError{Field: "text", Rule: "required", Message: "text is required"})
		}
	}

	return errs
}

// ValidateQuestion checks a question as it would be stored, after a partial
// update has been merged onto it.
func (bv *BusinessValidator) ValidateQuestion(q *models.Question) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, ValidationError{Field: "text", Rule: "required", Message: "text is required"})
	}

	variants := q.Variants()
	if len(variants) == 0 {
		errs = append(errs, ValidationError{Field: "variants", Rule: "required", Message: "variants is required"})
		return errs
	}

	inputs := make([]VariantInput, 0, len(variants))
	for _, v := range variants {
		inputs = append(inputs, VariantInput{Letter: v.Letter, Text: v.Text})
	}
	errs = append(errs, bv.validateCorrectAnswer(inputs, q.CorrectAnswer)...)
	return errs
}

func (bv *BusinessValidator) validateCorrectAnswer(variants []VariantInput, correct string) ValidationErrors {
	if correct == "" || len(variants) == 0 {
		return nil
	}
	for _, v := range variants {
		if v.Letter == correct {
			return nil
		}
	}
	return ValidationErrors{{
		Field:   "correct_answer",
		Message: "correct answer must match one of the variants",
		Value:   correct,
		Rule:    "correct_in_variants",
	}}
}

// registerBusinessRules registers custom validation rules
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("variant_letter", func(fl validator.FieldLevel) bool {
		return models.IsVariantLetter(fl.Field().String())
	})

	bv.validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	bv.validate.RegisterValidation("unique_letters", func(fl validator.FieldLevel) bool {
		variants, ok := fl.Field().Interface().([]VariantInput)
		if !ok {
			return false
		}
		seen := make(map[string]struct{}, len(variants))
		for _, v := range variants {
			if _, dup := seen[v.Letter]; dup {
				return false
			}
			seen[v.Letter] = struct{}{}
		}
		return true
	})
}
