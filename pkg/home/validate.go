package home

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prismon/audio-janitor/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report yaml key names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("knownrule", func(fl validator.FieldLevel) bool {
		return models.IsKnownRule(fl.Field().String())
	})
	v.RegisterStructValidation(validateRules, models.RuleConfiguration{})
	v.RegisterStructValidation(validateWeighted, models.WeightedConfig{})

	return v
}

func validateRules(sl validator.StructLevel) {
	rules := sl.Current().Interface().(models.RuleConfiguration)
	if (rules.Ordered == nil) == (rules.Weighted == nil) {
		sl.ReportError(rules.Ordered, "duplicateRules", "DuplicateRules", "onepolicy", "")
	}
	if rules.ConfidenceThreshold < 0 || rules.ConfidenceThreshold > models.MaxConfidence {
		sl.ReportError(rules.ConfidenceThreshold, "confidenceThreshold", "ConfidenceThreshold", "confidence", "")
	}
}

func validateWeighted(sl validator.StructLevel) {
	w := sl.Current().Interface().(models.WeightedConfig)
	if w.Weights.Sum() != 100 {
		sl.ReportError(w.Weights, "weights", "Weights", "sum100", "")
	}
}

// Validate checks a config and returns one error listing every problem
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s %s", fieldPath(e), friendlyMessage(e)))
	}
	sort.Strings(messages)
	return errors.New(strings.Join(messages, "; "))
}

// fieldPath drops the root struct name from the namespace
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "knownrule":
		return "must be one of: " + strings.Join(models.KnownRules, " ")
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "unique":
		return "must not contain duplicates"
	case "sum100":
		return "must sum to 100"
	case "onepolicy":
		return "must configure exactly one policy"
	case "confidence":
		return fmt.Sprintf("must be between 0 and %d", models.MaxConfidence)
	default:
		return "is invalid"
	}
}
