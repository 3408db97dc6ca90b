package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/koboledger/kobo"
	"github.com/koboledger/kobo/api/middleware"
	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/internal/apierror"
)

type Api struct {
	kobo   *kobo.Kobo
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/auth/register", a.RegisterUser)
	router.POST("/auth/login", a.LoginUser)

	protected := router.Group("/", middleware.BearerAuthMiddleware())

	protected.GET("/accounts/me", a.GetMyAccounts)
	protected.POST("/accounts", a.CreateAccount)
	protected.GET("/accounts/:number", a.GetAccount)
	protected.GET("/accounts/:number/balance", a.GetBalance)
	protected.GET("/accounts/:number/transactions", a.GetTransactionHistory)
	protected.POST("/accounts/:number/deposit", a.Deposit)
	protected.POST("/accounts/:number/withdraw", a.Withdraw)

	protected.POST("/transfers", a.Transfer)

	protected.GET("/admin/accounts", a.GetAllAccounts)
	protected.PUT("/admin/accounts/:number/status", a.SetAccountStatus)
	protected.GET("/admin/transactions/:id", a.GetLedgerEntry)

	return a.router
}

func NewAPI(k *kobo.Kobo) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{kobo: k, router: r}
}

// handleError maps a service error to its HTTP status and writes the JSON
// error body.
func handleError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		logrus.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
