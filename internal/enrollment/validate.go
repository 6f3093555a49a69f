package enrollment

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgRequired   = "please fill all required fields"
	msgScreenshot = "please upload payment screenshot"
	msgPhone      = "phone must be exactly 10 digits"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// JoinForm is what a student fills in to request a seat in a class.
type JoinForm struct {
	Name          string `json:"name" form:"name" validate:"required"`
	Phone         string `json:"phone" form:"phone" validate:"required,phone10"`
	RollNumber    string `json:"rollNumber" form:"rollNumber" validate:"required"`
	Gender        string `json:"gender" form:"gender" validate:"required"`
	TransactionID string `json:"transactionId" form:"transactionId" validate:"required"`
}

func (f JoinForm) trimmed() JoinForm {
	return JoinForm{
		Name:          strings.TrimSpace(f.Name),
		Phone:         strings.TrimSpace(f.Phone),
		RollNumber:    strings.TrimSpace(f.RollNumber),
		Gender:        strings.TrimSpace(f.Gender),
		TransactionID: strings.TrimSpace(f.TransactionID),
	}
}

// ValidationError reports form problems found before any remote call.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(keys, ", "))
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// validateForm checks the form and the presence of a screenshot.
// Missing fields take precedence over a missing screenshot, which takes
// precedence over a malformed phone number.
func validateForm(v *validator.Validate, f JoinForm, hasScreenshot bool) error {
	fields := map[string]string{}
	missing, badPhone := false, false

	if err := v.Struct(f); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				missing = true
				fields[fe.Field()] = "is required"
			case "phone10":
				badPhone = true
				fields[fe.Field()] = msgPhone
			default:
				fields[fe.Field()] = "is invalid"
			}
		}
	}
	if !hasScreenshot {
		fields["screenshot"] = msgScreenshot
	}
	if len(fields) == 0 {
		return nil
	}

	msg := msgPhone
	switch {
	case missing:
		msg = msgRequired
	case !hasScreenshot:
		msg = msgScreenshot
	case !badPhone:
		msg = "invalid join form"
	}
	return &ValidationError{Message: msg, Fields: fields}
}
