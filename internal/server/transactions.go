package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	transactiondomain "github.com/smallbiznis/studioledger/internal/transaction/domain"
)

func (s *Server) CreateSubscriptionWithPayment(c *gin.Context) {
	var req transactiondomain.CreateSubscriptionWithPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.transactionSvc.CreateSubscriptionWithPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
