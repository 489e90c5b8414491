package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/expense"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		// Shutdown receives a signal whenever an unrecoverable error is caught.
		Shutdown chan os.Signal

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc      user.ServiceInterface
		StudentSvc   student.ServiceInterface
		AcademicSvc  academic.ServiceInterface
		BillingSvc   billing.ServiceInterface
		ExpenseSvc   expense.ServiceInterface
		DashboardSvc dashboard.ServiceInterface
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	debug := core.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts.UserSvc, s.opts.Validate, s.opts.Translator)
	registerStudentAPI(v1, jwt, s.opts.StudentSvc, s.opts.Validate)
	registerAcademicAPI(v1, jwt, s.opts.AcademicSvc, s.opts.Validate)
	registerBillingAPI(v1, jwt, s.opts.BillingSvc, s.opts.Validate)
	registerExpenseAPI(v1, jwt, s.opts.ExpenseSvc, s.opts.Validate)
	registerDashboardAPI(v1, jwt, s.opts.DashboardSvc)
}

// signalShutdown notifies main that the server should be gracefully stopped.
func (s *server) signalShutdown() {
	if s.opts.Shutdown != nil {
		s.opts.Shutdown <- syscall.SIGTERM
	}
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Shule API!")
}
