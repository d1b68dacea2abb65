package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
)

type (
	nameQuery struct {
		Name string `query:"name" json:"name" validate:"required,notblank,max=100"`
	}

	membershipQuery struct {
		SubjectID string `query:"subjectId" json:"subjectId" validate:"required,notblank"`
		GradeID   string `query:"gradeId" json:"gradeId" validate:"required,notblank"`
	}
)

var queryBinder = new(echo.DefaultBinder)

// bindQuery binds the query string to data and validates it.
func bindQuery(ctx echo.Context, validate *validator.Validate, data interface{}) error {
	if err := queryBinder.BindQueryParams(ctx, data); err != nil {
		return core.NewValidationError(errors.Wrap(err, "binding query params"))
	}
	return validate.Struct(data)
}
