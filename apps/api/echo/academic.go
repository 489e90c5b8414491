package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/academic"
)

type academicApi struct {
	svc      academic.ServiceInterface
	validate *validator.Validate
}

func registerAcademicAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc academic.ServiceInterface, validate *validator.Validate) {
	api := academicApi{svc: svc, validate: validate}

	cg := g.Group("/classes", jwt)
	cg.POST("", api.createClass, staffMiddleware())
	cg.GET("", api.queryClasses, staffMiddleware())
	cg.GET("/:id", api.retrieveClass, staffMiddleware())
	cg.PUT("/:id", api.updateClass, staffMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())

	gg := g.Group("/grades", jwt)
	gg.POST("", api.recordGrade, teacherMiddleware())
	gg.GET("", api.queryGrades, teacherMiddleware())
	gg.DELETE("/:id", api.destroyGrade, staffMiddleware())
}

func (api *academicApi) createClass(ctx echo.Context) error {
	var data academic.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.CreateClass(data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *academicApi) queryClasses(ctx echo.Context) error {
	filter := new(academic.ClassFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.SchoolClass{})
	}
	filter.Clean()

	classes, err := api.svc.QueryClasses(filter)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []academic.SchoolClass{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *academicApi) retrieveClass(ctx echo.Context) error {
	cls, err := api.svc.GetClassByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *academicApi) updateClass(ctx echo.Context) error {
	var data academic.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.UpdateClass(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *academicApi) destroyClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *academicApi) recordGrade(ctx echo.Context) error {
	var data academic.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grade, err := api.svc.RecordGrade(data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, grade)
}

func (api *academicApi) queryGrades(ctx echo.Context) error {
	filter := new(academic.GradeFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Grade{})
	}

	grades, err := api.svc.QueryGrades(filter)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []academic.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *academicApi) destroyGrade(ctx echo.Context) error {
	if err := api.svc.DeleteGrade(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
