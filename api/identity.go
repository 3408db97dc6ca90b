package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/koboledger/kobo/api/model"
)

func (a Api) RegisterUser(c *gin.Context) {
	var newUser model2.RegisterUser
	if err := c.ShouldBindJSON(&newUser); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newUser.ValidateRegisterUser(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	user, account, err := a.kobo.RegisterUser(c.Request.Context(), newUser.Username, newUser.Email,
		newUser.Password, newUser.FirstName, newUser.LastName, newUser.AccountType)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user, "account": account})
}

func (a Api) LoginUser(c *gin.Context) {
	var login model2.LoginUser
	if err := c.ShouldBindJSON(&login); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := login.ValidateLoginUser(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	token, user, err := a.kobo.AuthenticateUser(c.Request.Context(), login.Username, login.Password)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
