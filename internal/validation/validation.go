// Package validation checks user-entered forms before anything is sent to the API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/models"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
)

const minPasswordLength = 8

// FieldErrors maps a form field's JSON name to its message.
type FieldErrors map[string]string

// Validator wraps validator.Validate with the portal's custom tags.
type Validator struct {
	validate *validator.Validate
}

// New builds a validator with the role, announcement_type and strong_password tags registered.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.ParseRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("announcement_type", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementType(strings.ToUpper(fl.Field().String())) {
		case models.AnnouncementGeneral, models.AnnouncementEvent, models.AnnouncementUrgent:
			return true
		default:
			return false
		}
	})
	_ = v.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Struct validates form and returns a VALIDATION_ERROR carrying field messages, or nil.
func (v *Validator) Struct(form interface{}) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form")
	}
	fields := FieldErrors{}
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return appErrors.Validation("", fields)
}

// Fields extracts field messages from an error returned by Struct.
func Fields(err error) FieldErrors {
	var e *appErrors.Error
	if !errors.As(err, &e) || len(e.Fields) == 0 {
		return nil
	}
	return FieldErrors(e.Fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "Passwords do not match."
	case "strong_password":
		return fmt.Sprintf("Password must be at least %d characters and contain a letter and a digit.", minPasswordLength)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has at most %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is at most %s.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value is at least %s.", fe.Param())
	case "announcement_type":
		return "Select a valid announcement type."
	case "role":
		return "Select a valid role."
	default:
		return "Invalid value."
	}
}

func strongPassword(pw string) bool {
	if len([]rune(pw)) < minPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// LoginForm is the sign-in form.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Request converts the form to its wire payload.
func (f LoginForm) Request() dto.LoginRequest {
	return dto.LoginRequest{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// SignupForm is the account creation form.
type SignupForm struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,strong_password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=150"`
	LastName        string `json:"last_name" validate:"required,max=150"`
	YearOfStudy     *int   `json:"year_of_study" validate:"omitempty,min=1,max=8"`
	Major           string `json:"major" validate:"omitempty,max=100"`
}

func (f SignupForm) Request() dto.RegisterRequest {
	return dto.RegisterRequest{
		Email:       strings.TrimSpace(f.Email),
		Password:    f.Password,
		FirstName:   strings.TrimSpace(f.FirstName),
		LastName:    strings.TrimSpace(f.LastName),
		YearOfStudy: f.YearOfStudy,
		Major:       strings.TrimSpace(f.Major),
	}
}

// PasswordResetForm requests a reset email.
type PasswordResetForm struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetConfirmForm completes a reset.
type PasswordResetConfirmForm struct {
	Token           string `json:"token" validate:"required"`
	UID             string `json:"uid" validate:"required"`
	Password        string `json:"password" validate:"required,strong_password"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

func (f PasswordResetConfirmForm) Request() dto.PasswordResetConfirmRequest {
	return dto.PasswordResetConfirmRequest{Token: f.Token, UID: f.UID, Password: f.Password}
}

// AnnouncementForm creates or edits an announcement.
type AnnouncementForm struct {
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"required"`
	Type     string `json:"type" validate:"required,announcement_type"`
	IsPinned bool   `json:"is_pinned"`
}

func (f AnnouncementForm) Input() dto.AnnouncementInput {
	pinned := f.IsPinned
	return dto.AnnouncementInput{
		Title:    strings.TrimSpace(f.Title),
		Content:  f.Content,
		Type:     strings.ToUpper(f.Type),
		IsPinned: &pinned,
	}
}

// RoleForm names a role, e.g. to preview where it lands after sign-in.
type RoleForm struct {
	Role string `json:"role" validate:"required,role"`
}
