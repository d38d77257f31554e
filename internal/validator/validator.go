package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/util"
)

// Validator checks profiles and posts before they cross a collaborator
// boundary. Errors name fields by their JSON keys.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("linkedin_profile", func(fl validator.FieldLevel) bool {
		return util.IsProfileURL(fl.Field().String())
	})
	return &Validator{validate: v}
}

// ValidateProfile rejects profiles without a LinkedIn profile or organization URL.
func (v *Validator) ValidateProfile(p models.Profile) error {
	return v.check("profile", p)
}

// ValidatePost rejects posts without a usable URL or with negative counts.
func (v *Validator) ValidatePost(p models.Post) error {
	return v.check("post", p)
}

func (v *Validator) check(kind string, s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid %s: %s", kind, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fmt.Sprintf("%s %q is not a URL", fe.Field(), fe.Value())
	case "linkedin_profile":
		return fmt.Sprintf("%s %q is not a LinkedIn profile URL", fe.Field(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
