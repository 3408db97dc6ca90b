package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/koboledger/kobo"
	model2 "github.com/koboledger/kobo/api/model"
	"github.com/koboledger/kobo/api/middleware"
)

func callerOrAbort(c *gin.Context) (kobo.CallerIdentity, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing caller identity"})
		return kobo.CallerIdentity{}, false
	}
	return caller, true
}

func (a Api) Deposit(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var op model2.LedgerOperation
	if err := c.ShouldBindJSON(&op); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := op.ValidateLedgerOperation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	entry, err := a.kobo.Deposit(c.Request.Context(), caller, c.Param("number"), op.Amount, op.Description)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (a Api) Withdraw(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var op model2.LedgerOperation
	if err := c.ShouldBindJSON(&op); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := op.ValidateLedgerOperation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	entry, err := a.kobo.Withdraw(c.Request.Context(), caller, c.Param("number"), op.Amount, op.Description)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (a Api) Transfer(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var transfer model2.CreateTransfer
	if err := c.ShouldBindJSON(&transfer); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := transfer.ValidateCreateTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	receipt, err := a.kobo.Transfer(c.Request.Context(), caller, transfer.FromAccountNumber,
		transfer.ToAccountNumber, transfer.Amount, transfer.Description)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

func (a Api) GetLedgerEntry(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	entry, err := a.kobo.GetLedgerEntry(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}
