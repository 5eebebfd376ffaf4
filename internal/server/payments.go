package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	transactiondomain "github.com/smallbiznis/studioledger/internal/transaction/domain"
)

func (s *Server) RecordPayment(c *gin.Context) {
	var req paymentdomain.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentReceipt(c *gin.Context) {
	receipt, err := s.paymentSvc.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := io.ReadAll(receipt.Body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, "application/pdf", body)
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req transactiondomain.ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.PaymentID = c.Param("id")

	resp, err := s.transactionSvc.ProcessRefund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
