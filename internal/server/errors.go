package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
	obslogger "github.com/smallbiznis/studioledger/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	plandomain "github.com/smallbiznis/studioledger/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/studioledger/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/studioledger/internal/transaction/domain"
	"github.com/smallbiznis/studioledger/internal/validation"
	"go.uber.org/zap"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound = errors.New("not_found")
	ErrInternal = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			obslogger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("error_code", payload.Code),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return validation.New("request", "malformed request body")
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{plandomain.ErrPlanNotFound, http.StatusNotFound},
	{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound},
	{memberdomain.ErrMemberNotFound, http.StatusNotFound},
	{paymentdomain.ErrPaymentNotFound, http.StatusNotFound},
	{ErrNotFound, http.StatusNotFound},
	{memberdomain.ErrMemberEmailTaken, http.StatusConflict},
	{subscriptiondomain.ErrInactiveSubscription, http.StatusConflict},
	{subscriptiondomain.ErrInvalidTransition, http.StatusConflict},
	{subscriptiondomain.ErrNoSessionsRemaining, http.StatusConflict},
	{subscriptiondomain.ErrStateConflict, http.StatusConflict},
	{subscriptiondomain.ErrCreditMismatch, http.StatusUnprocessableEntity},
	{paymentdomain.ErrRefundExceedsRefundable, http.StatusUnprocessableEntity},
	{paymentdomain.ErrCannotRefundARefund, http.StatusUnprocessableEntity},
	{ErrRateLimited, http.StatusTooManyRequests},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Code:    ErrInternal.Error(),
			Message: "internal server error",
		}
	}

	var vErr *validation.Error
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Code:    validation.ErrValidation.Error(),
			Message: vErr.Error(),
			Field:   vErr.Field,
		}
	}

	var txErr *transactiondomain.Error
	if errors.As(err, &txErr) {
		return http.StatusInternalServerError, errorPayload{
			Code:    transactiondomain.ErrTransactionFailed.Error(),
			Message: txErr.Error(),
		}
	}

	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.err) {
			return candidate.status, errorPayload{
				Code:    candidate.err.Error(),
				Message: err.Error(),
			}
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Code:    ErrInternal.Error(),
		Message: "internal server error",
	}
}

func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Code
}
