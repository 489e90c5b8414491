package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/student"
)

type studentApi struct {
	svc      student.ServiceInterface
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc student.ServiceInterface, validate *validator.Validate) {
	api := studentApi{svc: svc, validate: validate}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create, staffMiddleware())
	sg.GET("", api.query, staffMiddleware())

	dg := sg.Group("/:id", staffMiddleware())
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.GET("/guardians", api.queryGuardians)
	dg.POST("/guardians", api.addGuardian)

	sg.DELETE("/guardians/:id", api.removeGuardian, staffMiddleware())
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	stu, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, stu)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	stu, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	orig, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := data.Validate(orig, api.validate, api.svc); err != nil {
		return err
	}

	stu, err := api.svc.Update(orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) queryGuardians(ctx echo.Context) error {
	guardians, err := api.svc.Guardians(ctx.Param("id"))
	if err != nil {
		return err
	}
	if guardians == nil {
		guardians = []student.Guardian{}
	}
	return ctx.JSON(http.StatusOK, guardians)
}

func (api *studentApi) addGuardian(ctx echo.Context) error {
	var data student.NewGuardian
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGuardian")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grd, err := api.svc.AddGuardian(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, grd)
}

func (api *studentApi) removeGuardian(ctx echo.Context) error {
	if err := api.svc.RemoveGuardian(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
