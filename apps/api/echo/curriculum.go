package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core/curriculum"
)

// envelope is the body of every successful response.
type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respond(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, envelope{Code: code, Message: "success", Data: data})
}

type curriculumApi struct {
	svc      *curriculum.Service
	validate *validator.Validate
}

func registerCurriculumAPI(g *echo.Group, svc *curriculum.Service, validate *validator.Validate) {
	api := curriculumApi{
		svc:      svc,
		validate: validate,
	}

	g.GET("/gradesSubjects", api.gradesSubjects)
	g.GET("/listSubjectsOfGrades", api.listSubjectsOfGrades)

	g.POST("/createGrade", api.createGrade)
	g.PUT("/updateGrade/:id", api.updateGrade)
	g.DELETE("/deleteGrade/:id", api.deleteGrade)

	g.POST("/createSubject", api.createSubject)
	g.PUT("/updateSubject/:id", api.updateSubject)
	g.DELETE("/deleteSubject/:id", api.deleteSubject)

	g.POST("/assignSubjectToGrade", api.assignSubject)
	g.DELETE("/removeSubjectFromGrade", api.removeSubject)
}

// Handlers

func (api *curriculumApi) gradesSubjects(ctx echo.Context) error {
	snap, err := api.svc.Snapshot(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "fetching grades and subjects")
	}
	return respond(ctx, http.StatusOK, snap)
}

func (api *curriculumApi) listSubjectsOfGrades(ctx echo.Context) error {
	grades, err := api.svc.ListSubjectsOfGrades(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing subjects of grades")
	}
	return respond(ctx, http.StatusOK, grades)
}

func (api *curriculumApi) createGrade(ctx echo.Context) error {
	var data nameQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	grade, err := api.svc.CreateGrade(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating grade")
	}
	return respond(ctx, http.StatusCreated, grade)
}

func (api *curriculumApi) updateGrade(ctx echo.Context) error {
	var data nameQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	if err := api.svc.UpdateGrade(ctx.Request().Context(), ctx.Param("id"), data.Name); err != nil {
		return errors.Wrap(err, "updating grade")
	}
	return respond(ctx, http.StatusOK, true)
}

func (api *curriculumApi) deleteGrade(ctx echo.Context) error {
	if err := api.svc.DeleteGrade(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return respond(ctx, http.StatusOK, true)
}

func (api *curriculumApi) createSubject(ctx echo.Context) error {
	var data nameQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	subject, err := api.svc.CreateSubject(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return respond(ctx, http.StatusCreated, subject)
}

func (api *curriculumApi) updateSubject(ctx echo.Context) error {
	var data nameQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	if err := api.svc.UpdateSubject(ctx.Request().Context(), ctx.Param("id"), data.Name); err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return respond(ctx, http.StatusOK, true)
}

func (api *curriculumApi) deleteSubject(ctx echo.Context) error {
	if err := api.svc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return respond(ctx, http.StatusOK, true)
}

func (api *curriculumApi) assignSubject(ctx echo.Context) error {
	var data membershipQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	if err := api.svc.AssignSubject(ctx.Request().Context(), data.SubjectID, data.GradeID); err != nil {
		return errors.Wrap(err, "assigning subject")
	}
	return respond(ctx, http.StatusOK, true)
}

func (api *curriculumApi) removeSubject(ctx echo.Context) error {
	var data membershipQuery
	if err := bindQuery(ctx, api.validate, &data); err != nil {
		return err
	}
	if err := api.svc.UnassignSubject(ctx.Request().Context(), data.SubjectID, data.GradeID); err != nil {
		return errors.Wrap(err, "removing subject from grade")
	}
	return respond(ctx, http.StatusOK, true)
}
