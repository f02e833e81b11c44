package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bassinshop-storefront/internal/domain"
)

// fakeBackend emulates the commerce REST API: session and bearer scoped
// carts, order creation and the payment verification protocol.
type fakeBackend struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	nextCart  int64
	nextLine  int64
	nextOrder int64
	cancelled []string
	resends   int

	// verifyMessage, when set, makes /payments/verify fail 400 with it.
	verifyMessage string

	// promoUntil, when set, attaches a 25% promotion ending then to
	// every standard line added.
	promoUntil time.Time
}

type catalogEntry struct {
	nom   string
	price float64
	stock int
}

var fakeCatalog = map[int64]catalogEntry{
	1: {nom: "Bassin rond", price: 200, stock: 5},
	2: {nom: "Bassin carre", price: 120, stock: 2},
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{carts: make(map[string]*domain.Cart)}
}

// owner returns the cart key for the request: the bearer token when
// present, otherwise the session id.
func (f *fakeBackend) owner(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return "user:" + auth
	}
	return "sess:" + c.GetHeader("X-Session-ID")
}

func (f *fakeBackend) server() *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.GET("/cart", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		cart, ok := f.carts[f.owner(c)]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "cart not found"})
			return
		}
		c.JSON(http.StatusOK, cart)
	})

	r.POST("/cart", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextCart++
		cart := &domain.Cart{ID: f.nextCart, Lines: []domain.CartLine{}}
		f.carts[f.owner(c)] = cart
		c.JSON(http.StatusCreated, cart)
	})

	r.POST("/cart/items", func(c *gin.Context) {
		var req struct {
			BassinID      int64                 `json:"bassinId"`
			Quantity      int                   `json:"quantity"`
			IsCustomized  bool                  `json:"isCustomized"`
			Customization *domain.Customization `json:"customization"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		cart := f.cartFor(c)
		entry, ok := fakeCatalog[req.BassinID]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "bassin not found"})
			return
		}
		f.nextLine++
		line := domain.CartLine{
			ID:           f.nextLine,
			BassinID:     req.BassinID,
			Nom:          entry.nom,
			Quantity:     req.Quantity,
			PrixOriginal: entry.price,
			Stock:        entry.stock,
		}
		if req.IsCustomized {
			line.IsCustomized = true
			line.Customization = req.Customization
			line.Status = domain.CartStatusSurCommande
		} else if !f.promoUntil.IsZero() {
			line.Promotion = &domain.Promotion{
				ID:            9,
				TauxReduction: 0.25,
				DateDebut:     time.Now().Add(-time.Hour),
				DateFin:       f.promoUntil,
			}
			line.RefreshPromotion(time.Now())
		}
		cart.Lines = append(cart.Lines, line)
		cart.RecomputeTotal()
		c.JSON(http.StatusOK, cart)
	})

	r.PUT("/cart/items/:id/quantity", func(c *gin.Context) {
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		cart := f.cartFor(c)
		id, _ := parseInt64(c.Param("id"))
		line := cart.FindLine(id)
		if line == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "line not found"})
			return
		}
		line.Quantity = req.Quantity
		cart.RecomputeTotal()
		c.JSON(http.StatusOK, cart)
	})

	r.DELETE("/cart/items/:id", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		cart := f.cartFor(c)
		id, _ := parseInt64(c.Param("id"))
		cart.RemoveLine(id)
		cart.RecomputeTotal()
		c.JSON(http.StatusOK, cart)
	})

	r.DELETE("/cart", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.carts, f.owner(c))
		c.Status(http.StatusNoContent)
	})

	r.POST("/cart/migrate", func(c *gin.Context) {
		var req struct {
			SessionID string `json:"sessionId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		cart, ok := f.carts["sess:"+req.SessionID]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "cart not found"})
			return
		}
		delete(f.carts, "sess:"+req.SessionID)
		f.carts[f.owner(c)] = cart
		c.JSON(http.StatusOK, cart)
	})

	r.POST("/orders", func(c *gin.Context) {
		var req struct {
			Total float64 `json:"montantTotal"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextOrder++
		c.JSON(http.StatusCreated, domain.Order{
			ID:     f.nextOrder,
			Number: fmt.Sprintf("CMD-2026-%04d", f.nextOrder),
			Status: domain.OrderStatusPending,
			Total:  req.Total,
		})
	})

	r.DELETE("/orders/:number/cancel", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled = append(f.cancelled, c.Param("number"))
		c.Status(http.StatusNoContent)
	})

	r.POST("/payments/initiate", func(c *gin.Context) {
		c.JSON(http.StatusOK, domain.Transaction{ID: 99, Status: "PENDING"})
	})

	r.GET("/payments/code-expiry/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"expiresAt": time.Now().Add(5 * time.Minute)})
	})

	r.POST("/payments/resend-code", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.resends++
		c.Status(http.StatusNoContent)
	})

	r.POST("/payments/verify", func(c *gin.Context) {
		f.mu.Lock()
		msg := f.verifyMessage
		f.mu.Unlock()
		if msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": msg})
			return
		}
		c.JSON(http.StatusOK, gin.H{"validated": true, "reference": "PAY-REF-001"})
	})

	return httptest.NewServer(r)
}

// cartFor returns the caller's cart, creating one implicitly the way the
// real backend does on item insertion. Caller holds f.mu.
func (f *fakeBackend) cartFor(c *gin.Context) *domain.Cart {
	key := f.owner(c)
	cart, ok := f.carts[key]
	if !ok {
		f.nextCart++
		cart = &domain.Cart{ID: f.nextCart, Lines: []domain.CartLine{}}
		f.carts[key] = cart
	}
	return cart
}

func (f *fakeBackend) cancelledOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeBackend) setVerifyFailure(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyMessage = msg
}

func (f *fakeBackend) setPromotionUntil(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoUntil = t
}
