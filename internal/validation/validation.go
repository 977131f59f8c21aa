package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/autoscripty/internal/domain"
)

// Script payload limits, counted in runes after trimming surrounding whitespace.
const (
	TitleMinLength = 3
	TitleMaxLength = 100
	TextMinLength  = 10
)

// Password limits for sign-up and sign-in requests. The provider applies its
// own password policy on top of these.
const (
	PasswordMinLength = 6
	PasswordMaxLength = 72
)

var validate = validator.New()

// NormalizeScript trims the title and text the way they are stored.
func NormalizeScript(input domain.ScriptInput) domain.ScriptInput {
	return domain.ScriptInput{
		Title: strings.TrimSpace(input.Title),
		Text:  strings.TrimSpace(input.Text),
	}
}

// ValidateScript checks every constraint of a script payload and returns a
// *domain.ValidationError listing all violations, title first. The input is
// validated after trimming.
func ValidateScript(input domain.ScriptInput) error {
	input = NormalizeScript(input)

	var issues []domain.ValidationIssue

	titleLen := utf8.RuneCountInString(input.Title)
	if titleLen < TitleMinLength {
		issues = append(issues, domain.ValidationIssue{
			Field:   "title",
			Message: fmt.Sprintf("title must be at least %d characters", TitleMinLength),
		})
	}
	if titleLen > TitleMaxLength {
		issues = append(issues, domain.ValidationIssue{
			Field:   "title",
			Message: fmt.Sprintf("title must be at most %d characters", TitleMaxLength),
		})
	}

	if utf8.RuneCountInString(input.Text) < TextMinLength {
		issues = append(issues, domain.ValidationIssue{
			Field:   "text",
			Message: fmt.Sprintf("text must be at least %d characters", TextMinLength),
		})
	}

	if len(issues) > 0 {
		return &domain.ValidationError{Issues: issues}
	}
	return nil
}

// ValidateCredentials checks an email/password pair before it is sent to the
// provider.
func ValidateCredentials(email, password string) error {
	var issues []domain.ValidationIssue

	email = strings.TrimSpace(email)
	if email == "" {
		issues = append(issues, domain.ValidationIssue{Field: "email", Message: "email is required"})
	} else if err := validate.Var(email, "email"); err != nil {
		issues = append(issues, domain.ValidationIssue{Field: "email", Message: "email must be a valid email address"})
	}

	switch {
	case password == "":
		issues = append(issues, domain.ValidationIssue{Field: "password", Message: "password is required"})
	case len(password) < PasswordMinLength:
		issues = append(issues, domain.ValidationIssue{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", PasswordMinLength),
		})
	case len(password) > PasswordMaxLength:
		issues = append(issues, domain.ValidationIssue{
			Field:   "password",
			Message: fmt.Sprintf("password must be %d bytes or less", PasswordMaxLength),
		})
	}

	if len(issues) > 0 {
		return &domain.ValidationError{Issues: issues}
	}
	return nil
}
