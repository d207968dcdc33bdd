// Package validator plugs go-playground/validator into echo and holds the
// request bodies it validates.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dac-governance/internal/model"
)

// ValidationErrors wraps the validator's ValidationErrors.
type ValidationErrors []playgroundvalidator.FieldError

// CustomValidator wraps go-playground/validator.
type CustomValidator struct {
	validator *playgroundvalidator.Validate
}

// New creates the echo.Validator used by the server.  Field names in
// errors follow the json, param or query tag.
func New() echo.Validator {
	v := playgroundvalidator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "param", "query"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("role_name", validateRoleName)
	_ = v.RegisterValidation("election_type", validateElectionType)
	return &CustomValidator{validator: v}
}

func validateRoleName(fl playgroundvalidator.FieldLevel) bool {
	_, err := model.ParseRoleName(fl.Field().String())
	return err == nil
}

func validateElectionType(fl playgroundvalidator.FieldLevel) bool {
	_, ok := model.ParseElectionType(fl.Field().String())
	return ok
}

// Validate implements echo.Validator.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		var validationErrors playgroundvalidator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return ValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

// Error implements the error interface for ValidationErrors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var fields []string
	for _, err := range ve {
		fields = append(fields, err.Field())
	}
	return fmt.Sprintf("validation failed on fields: %s", strings.Join(fields, ", "))
}

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	Password      string  `json:"password" validate:"required,min=8"`
	DisplayName   string  `json:"displayName" validate:"max=255"`
	InstitutionID *uint64 `json:"institutionId"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// VoteUpdateRequest is the body of PUT /v1/vote.
type VoteUpdateRequest struct {
	VoteIDs   []uint64 `json:"voteIds" validate:"required,min=1,dive,gt=0"`
	Vote      *bool    `json:"vote" validate:"required"`
	Rationale string   `json:"rationale" validate:"max=4000"`
}

// RationaleUpdateRequest is the body of PUT /v1/vote/rationale.
type RationaleUpdateRequest struct {
	VoteIDs   []uint64 `json:"voteIds" validate:"required,min=1,dive,gt=0"`
	Rationale string   `json:"rationale" validate:"max=4000"`
}

// DarRequest is the body of POST /v1/dar and POST /v1/dar/draft.  A
// draft may reference an existing draft by ReferenceID.
type DarRequest struct {
	ReferenceID  string   `json:"referenceId" validate:"omitempty,uuid"`
	DatasetIDs   []uint64 `json:"datasetIds" validate:"required,min=1,dive,gt=0"`
	ProjectTitle string   `json:"projectTitle" validate:"required,max=512"`
	Rationale    string   `json:"rationale" validate:"max=4000"`
}

// LibraryCardRequest is the body of POST /v1/libraryCard.
type LibraryCardRequest struct {
	UserID        uint64 `json:"userId" validate:"required,gt=0"`
	InstitutionID uint64 `json:"institutionId" validate:"required,gt=0"`
	EraCommonsID  string `json:"eraCommonsId" validate:"max=255"`
}

// RoleParams are the parameters of the user role endpoints.  A zero
// DacID means no DAC scope.
type RoleParams struct {
	UserID uint64 `param:"userId" validate:"required,gt=0"`
	Role   string `param:"role" validate:"required,role_name"`
	DacID  uint64 `query:"dacId"`
}

// ElectionParams are the parameters of POST /v1/election/:type.
type ElectionParams struct {
	Type        string `param:"type" validate:"required,election_type"`
	ReferenceID string `query:"referenceId" validate:"required"`
	DatasetID   uint64 `query:"datasetId"`
}
