package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/billing"
)

type billingApi struct {
	svc      billing.ServiceInterface
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc billing.ServiceInterface, validate *validator.Validate) {
	api := billingApi{svc: svc, validate: validate}

	pg := g.Group("/plans", jwt)
	pg.POST("", api.createPlan, financeMiddleware())
	pg.GET("", api.queryPlans, staffMiddleware())
	pg.GET("/:id", api.retrievePlan, staffMiddleware())
	pg.PUT("/:id", api.updatePlan, financeMiddleware())
	pg.DELETE("/:id", api.deactivatePlan, financeMiddleware())

	eg := g.Group("/enrollments", jwt)
	eg.POST("", api.enroll, financeMiddleware())
	eg.GET("", api.queryEnrollments, staffMiddleware())
	eg.GET("/:id", api.retrieveEnrollment, staffMiddleware())
	eg.DELETE("/:id", api.cancelEnrollment, financeMiddleware())

	ig := g.Group("/installments", jwt)
	ig.GET("", api.queryInstallments, staffMiddleware())
	ig.GET("/:id", api.retrieveInstallment, staffMiddleware())
	ig.POST("/:id/payment", api.registerPayment, financeMiddleware())
	ig.PUT("/:id/amount", api.reviseAmount, financeMiddleware())
}

// Plans

func (api *billingApi) createPlan(ctx echo.Context) error {
	var data billing.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	plan, err := api.svc.CreatePlan(data)
	if err != nil {
		return errors.Wrap(err, "creating plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *billingApi) queryPlans(ctx echo.Context) error {
	filter := new(billing.PlanFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []billing.Plan{})
	}
	filter.Clean()

	plans, err := api.svc.QueryPlans(filter)
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []billing.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *billingApi) retrievePlan(ctx echo.Context) error {
	plan, err := api.svc.GetPlanByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *billingApi) updatePlan(ctx echo.Context) error {
	var data billing.UpdatePlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlan")
	}

	orig, err := api.svc.GetPlanByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	if err := data.Validate(orig, api.validate, api.svc); err != nil {
		return err
	}

	plan, err := api.svc.UpdatePlan(orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *billingApi) deactivatePlan(ctx echo.Context) error {
	plan, err := api.svc.DeactivatePlan(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, plan)
}

// Enrollments

func (api *billingApi) enroll(ctx echo.Context) error {
	var data billing.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.svc.Enroll(data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *billingApi) queryEnrollments(ctx echo.Context) error {
	filter := new(billing.EnrollmentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []billing.Enrollment{})
	}

	enrollments, err := api.svc.QueryEnrollments(filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []billing.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *billingApi) retrieveEnrollment(ctx echo.Context) error {
	enr, err := api.svc.GetEnrollmentByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *billingApi) cancelEnrollment(ctx echo.Context) error {
	enr, err := api.svc.CancelEnrollment(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

// Installments

func (api *billingApi) queryInstallments(ctx echo.Context) error {
	filter := new(billing.InstallmentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []billing.Installment{})
	}

	installments, err := api.svc.QueryInstallments(filter)
	if err != nil {
		return errors.Wrap(err, "querying installments")
	}
	if installments == nil {
		installments = []billing.Installment{}
	}
	return ctx.JSON(http.StatusOK, installments)
}

func (api *billingApi) retrieveInstallment(ctx echo.Context) error {
	inst, err := api.svc.GetInstallmentByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *billingApi) registerPayment(ctx echo.Context) error {
	var data billing.Payment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Payment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	inst, err := api.svc.RegisterPayment(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *billingApi) reviseAmount(ctx echo.Context) error {
	var data billing.AmountRevision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AmountRevision")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	inst, err := api.svc.ReviseUpcomingAmount(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}
