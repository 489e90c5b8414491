package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/dashboard"
)

// defaultDelinquentsTop caps the delinquents ranking when no limit is given.
const defaultDelinquentsTop = 10

type dashboardApi struct {
	svc dashboard.ServiceInterface
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc dashboard.ServiceInterface) {
	api := dashboardApi{svc: svc}

	dg := g.Group("/dashboard", jwt, staffMiddleware())
	dg.GET("", api.summary)
	dg.GET("/delinquents", api.delinquents)
	dg.GET("/trend", api.revenueTrend)
	dg.GET("/history", api.annualHistory)
}

func (api *dashboardApi) summary(ctx echo.Context) error {
	summary, err := api.svc.Summary()
	if err != nil {
		return errors.Wrap(err, "computing dashboard summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *dashboardApi) delinquents(ctx echo.Context) error {
	top := defaultDelinquentsTop
	if val := ctx.QueryParam("top"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			top = n
		}
	}

	delinquents, err := api.svc.Delinquents(top)
	if err != nil {
		return errors.Wrap(err, "ranking delinquents")
	}
	if delinquents == nil {
		delinquents = []dashboard.Delinquent{}
	}
	return ctx.JSON(http.StatusOK, delinquents)
}

func (api *dashboardApi) revenueTrend(ctx echo.Context) error {
	trend, err := api.svc.RevenueTrend()
	if err != nil {
		return errors.Wrap(err, "computing revenue trend")
	}
	return ctx.JSON(http.StatusOK, trend)
}

func (api *dashboardApi) annualHistory(ctx echo.Context) error {
	var year int
	if val := ctx.QueryParam("year"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = n
	}

	history, err := api.svc.AnnualHistory(year)
	if err != nil {
		return errors.Wrap(err, "computing annual history")
	}
	return ctx.JSON(http.StatusOK, history)
}
