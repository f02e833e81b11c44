package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/checkout"
	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/payment"
)

// errorBody is the uniform error payload. Display tells the browser how
// to surface the failure: "modal" blocks the flow, "toast" does not.
func errorBody(kind apiclient.Kind, message string) gin.H {
	display := "toast"
	if kind == apiclient.KindServer || kind == apiclient.KindAuthorization {
		display = "modal"
	}
	return gin.H{"error": gin.H{
		"kind":    kind,
		"message": message,
		"display": display,
	}}
}

// respondError maps service errors onto HTTP statuses and the uniform
// payload the storefront pages know how to render.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrStockExceeded):
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "requested quantity exceeds available stock"))
	case errors.Is(err, domain.ErrLineNotFound), errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(apiclient.KindNotFound, err.Error()))
	case errors.Is(err, domain.ErrCartExpired):
		c.JSON(http.StatusConflict, errorBody(apiclient.KindValidation, "cart session expired, please reload"))
	case errors.Is(err, checkout.ErrFormInvalid), errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, err.Error()))
	case errors.Is(err, payment.ErrCardExpired):
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "card expiry date is in the past"))
	case errors.Is(err, payment.ErrMaxResends):
		c.JSON(http.StatusConflict, errorBody(apiclient.KindValidation, "code resend limit reached, the order was cancelled"))
	case errors.Is(err, payment.ErrIllegalTransition):
		c.JSON(http.StatusConflict, errorBody(apiclient.KindValidation, err.Error()))
	case errors.Is(err, payment.ErrNoPendingOrder):
		c.JSON(http.StatusGone, errorBody(apiclient.KindNotFound, "no payment in progress"))
	default:
		respondAPIError(c, err)
	}
}

func respondAPIError(c *gin.Context, err error) {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, errorBody(apiclient.KindServer, "unexpected error"))
		return
	}

	switch apiErr.Kind {
	case apiclient.KindValidation:
		body := errorBody(apiclient.KindValidation, apiErr.Message)
		if f := apiclient.PaymentFailureOf(err); f != apiclient.PaymentUnknown {
			body["error"].(gin.H)["paymentFailure"] = f
		}
		c.JSON(http.StatusBadRequest, body)
	case apiclient.KindAuthorization:
		c.JSON(http.StatusUnauthorized, errorBody(apiclient.KindAuthorization, "session expired, please log in again"))
	case apiclient.KindNotFound:
		c.JSON(http.StatusNotFound, errorBody(apiclient.KindNotFound, apiErr.Message))
	case apiclient.KindNetwork, apiclient.KindTimeout:
		c.JSON(http.StatusBadGateway, errorBody(apiErr.Kind, "backend unreachable, please retry"))
	default:
		c.JSON(http.StatusBadGateway, errorBody(apiclient.KindServer, "backend error"))
	}
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
