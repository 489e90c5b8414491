package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/expense"
)

type expenseApi struct {
	svc      expense.ServiceInterface
	validate *validator.Validate
}

func registerExpenseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc expense.ServiceInterface, validate *validator.Validate) {
	api := expenseApi{svc: svc, validate: validate}

	eg := g.Group("/expenses", jwt)
	eg.POST("", api.create, financeMiddleware())
	eg.GET("", api.query, staffMiddleware())
	eg.GET("/:id", api.retrieve, staffMiddleware())
	eg.PUT("/:id", api.update, financeMiddleware())
	eg.POST("/:id/pay", api.markPaid, financeMiddleware())
	eg.DELETE("/:id", api.cancel, financeMiddleware())
}

func (api *expenseApi) create(ctx echo.Context) error {
	var data expense.NewExpense
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExpense")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	exp, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating expense")
	}
	return ctx.JSON(http.StatusCreated, exp)
}

func (api *expenseApi) query(ctx echo.Context) error {
	filter := new(expense.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []expense.Expense{})
	}
	filter.Clean()

	expenses, err := api.svc.Query(filter)
	if err != nil {
		return errors.Wrap(err, "querying expenses")
	}
	if expenses == nil {
		expenses = []expense.Expense{}
	}
	return ctx.JSON(http.StatusOK, expenses)
}

func (api *expenseApi) retrieve(ctx echo.Context) error {
	exp, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (api *expenseApi) update(ctx echo.Context) error {
	var data expense.UpdateExpense
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateExpense")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	exp, err := api.svc.Update(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (api *expenseApi) markPaid(ctx echo.Context) error {
	exp, err := api.svc.MarkPaid(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, exp)
}

func (api *expenseApi) cancel(ctx echo.Context) error {
	exp, err := api.svc.Cancel(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, exp)
}
