package httpserver

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/checkout"
	"bassinshop-storefront/internal/domain"
	"bassinshop-storefront/internal/payment"
)

const (
	ctxDeviceID = "deviceID"
	ctxBundle   = "bundle"
)

type handlers struct {
	reg    *bundleRegistry
	logger *log.Logger
}

func currentBundle(c *gin.Context) *bundle {
	return c.MustGet(ctxBundle).(*bundle)
}

func currentDevice(c *gin.Context) string {
	return c.MustGet(ctxDeviceID).(string)
}

// --- auth ---

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

// login stores the bearer token and migrates the anonymous cart into the
// authenticated account.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "token is required"))
		return
	}

	b := currentBundle(c)
	b.session.SetBearer(req.Token)

	if err := b.cart.MigrateSessionCart(c.Request.Context()); err != nil {
		// Login itself succeeded; the cart stays session-scoped and the
		// next login attempt retries the migration.
		h.logger.Printf("cart migration after login: %v", err)
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "cartMigrated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "cartMigrated": true})
}

func (h *handlers) logout(c *gin.Context) {
	b := currentBundle(c)
	b.session.ClearBearer()
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

// --- cart ---

func (h *handlers) getCart(c *gin.Context) {
	b := currentBundle(c)
	cart, err := b.cart.LoadCart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// streamCart pushes every cart revision to the browser as server-sent
// events, starting with the current one.
func (h *handlers) streamCart(c *gin.Context) {
	b := currentBundle(c)
	updates := b.cart.Subscribe(c.Request.Context())

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		cart, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("cart", cart)
		return true
	})
}

func (h *handlers) addItem(c *gin.Context) {
	var req apiclient.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "invalid add-item payload"))
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	b := currentBundle(c)
	if err := b.cart.AddItem(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.cart.Current())
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *handlers) updateQuantity(c *gin.Context) {
	lineID, ok := lineIDParam(c)
	if !ok {
		return
	}
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "invalid quantity payload"))
		return
	}

	b := currentBundle(c)
	if err := b.cart.UpdateQuantity(c.Request.Context(), lineID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.cart.Current())
}

func (h *handlers) removeItem(c *gin.Context) {
	lineID, ok := lineIDParam(c)
	if !ok {
		return
	}
	b := currentBundle(c)
	if err := b.cart.Remove(c.Request.Context(), lineID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.cart.Current())
}

func (h *handlers) clearCart(c *gin.Context) {
	b := currentBundle(c)
	if err := b.cart.Clear(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.cart.Current())
}

func (h *handlers) migrateCart(c *gin.Context) {
	b := currentBundle(c)
	if err := b.cart.MigrateSessionCart(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b.cart.Current())
}

// --- checkout ---

type checkoutRequest struct {
	Client   checkout.ClientForm   `json:"client"`
	Delivery checkout.DeliveryForm `json:"livraison"`
}

// placeOrder validates the forms, creates the pending order and opens a
// payment flow for the device.
func (h *handlers) placeOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "invalid checkout payload"))
		return
	}

	b := currentBundle(c)
	cart := b.cart.Current()
	order, err := b.checkout.PlaceOrder(c.Request.Context(), cart, req.Client, req.Delivery)
	if err != nil {
		respondError(c, err)
		return
	}

	// A still-pending previous checkout on this device is abandoned:
	// Finalize before Begin so its record purge cannot clobber the new
	// flow's pending-order record.
	if prev, ok := h.reg.flows.Get(currentDevice(c)); ok {
		if ferr := prev.Finalize(c.Request.Context(), "superseded by a new checkout"); ferr != nil {
			h.logger.Printf("finalize superseded flow: %v", ferr)
		}
	}

	flow := payment.NewFlow(b.api, b.store, h.logger)
	if err := flow.Begin(c.Request.Context(), order); err != nil {
		respondError(c, err)
		return
	}
	h.reg.flows.Put(currentDevice(c), flow)

	totals := b.checkout.ComputeTotals(cart)
	c.JSON(http.StatusCreated, gin.H{
		"order":  order,
		"totals": totals,
		"state":  flow.State(),
	})
}

// --- payment ---

func (h *handlers) deviceFlow(c *gin.Context) (*payment.Flow, bool) {
	flow, ok := h.reg.flows.Get(currentDevice(c))
	if !ok {
		// A reload may have dropped the in-memory flow; try the store.
		b := currentBundle(c)
		flow = payment.NewFlow(b.api, b.store, h.logger)
		if err := flow.Resume(c.Request.Context()); err != nil {
			respondError(c, err)
			return nil, false
		}
		h.reg.flows.Put(currentDevice(c), flow)
		if flow.State() == payment.StateCodeSent {
			h.startCountdown(flow)
		}
	}
	return flow, true
}

// startCountdown drives the auto-resend-on-expiry loop while a code is
// outstanding. Countdown exits on its own when the flow turns terminal;
// the server context bounds it otherwise.
func (h *handlers) startCountdown(flow *payment.Flow) {
	go func() {
		for range flow.Countdown(h.reg.ctx) {
		}
	}()
}

func (h *handlers) submitCard(c *gin.Context) {
	var card domain.CardDetails
	if err := c.ShouldBindJSON(&card); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "invalid card payload"))
		return
	}

	flow, ok := h.deviceFlow(c)
	if !ok {
		return
	}
	tx, err := flow.SubmitCard(c.Request.Context(), card)
	if err != nil {
		respondError(c, err)
		return
	}
	h.startCountdown(flow)
	c.JSON(http.StatusOK, gin.H{
		"transactionId":    tx.ID,
		"state":            flow.State(),
		"remainingSeconds": int(flow.Remaining().Seconds()),
	})
}

type verifyRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

func (h *handlers) verifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "code must be 6 digits"))
		return
	}

	flow, ok := h.deviceFlow(c)
	if !ok {
		return
	}
	b := currentBundle(c)
	reference, err := flow.Verify(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	// Payment confirmed: the cart is consumed by the order.
	if cerr := b.cart.Clear(c.Request.Context()); cerr != nil {
		h.logger.Printf("clear cart after payment: %v", cerr)
	}
	h.reg.flows.Remove(currentDevice(c))
	c.JSON(http.StatusOK, gin.H{
		"reference":   reference,
		"orderNumber": flow.OrderNumber(),
		"state":       flow.State(),
	})
}

func (h *handlers) resendCode(c *gin.Context) {
	flow, ok := h.deviceFlow(c)
	if !ok {
		return
	}
	if err := flow.Resend(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":            flow.State(),
		"remainingSeconds": int(flow.Remaining().Seconds()),
	})
}

func (h *handlers) remaining(c *gin.Context) {
	flow, ok := h.deviceFlow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":            flow.State(),
		"remainingSeconds": int(flow.Remaining().Seconds()),
	})
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

// abandon is the explicit leave signal from the browser. Finalize is
// idempotent, so duplicate signals for the same flow are harmless.
func (h *handlers) abandon(c *gin.Context) {
	var req abandonRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "checkout abandoned"
	}

	flow, ok := h.reg.flows.Get(currentDevice(c))
	if !ok {
		// The beacon may arrive after a restart dropped the in-memory
		// flow; the persisted record still names the pending order.
		b := currentBundle(c)
		flow = payment.NewFlow(b.api, b.store, h.logger)
		err := flow.Resume(c.Request.Context())
		if errors.Is(err, payment.ErrNoPendingOrder) {
			c.JSON(http.StatusOK, gin.H{"state": payment.StateCancelled})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
	}
	if err := flow.Finalize(c.Request.Context(), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	h.reg.flows.Remove(currentDevice(c))
	c.JSON(http.StatusOK, gin.H{"state": flow.State()})
}

func lineIDParam(c *gin.Context) (int64, bool) {
	id, err := parseInt64(c.Param("lineId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(apiclient.KindValidation, "invalid line id"))
		return 0, false
	}
	return id, true
}
