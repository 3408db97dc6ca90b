package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	model2 "github.com/koboledger/kobo/api/model"
)

func (a Api) CreateAccount(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var newAccount model2.CreateAccount
	if err := c.ShouldBindJSON(&newAccount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newAccount.ValidateCreateAccount(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	account, err := a.kobo.CreateAccount(c.Request.Context(), caller.UserID, newAccount.AccountType, decimal.Zero)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

func (a Api) GetMyAccounts(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	accounts, err := a.kobo.GetMyAccounts(c.Request.Context(), caller)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, accounts)
}

func (a Api) GetAccount(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	account, err := a.kobo.GetAccountDetails(c.Request.Context(), caller, c.Param("number"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (a Api) GetBalance(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	number := c.Param("number")
	balance, err := a.kobo.GetBalance(c.Request.Context(), caller, number)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"number": number, "balance": balance})
}

func (a Api) GetTransactionHistory(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	history, err := a.kobo.GetTransactionHistory(c.Request.Context(), caller, c.Param("number"), from, to, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

func (a Api) GetAllAccounts(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	accounts, err := a.kobo.ListAllAccounts(c.Request.Context(), caller, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, accounts)
}

func (a Api) SetAccountStatus(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var update model2.UpdateAccountStatus
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := update.ValidateUpdateAccountStatus(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	account, err := a.kobo.SetAccountStatus(c.Request.Context(), caller, c.Param("number"), update.Status)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please format '" + name + "' as RFC3339 (e.g., 2026-01-02T15:04:05Z)"})
		return time.Time{}, false
	}
	return t, true
}
