package httpserver

import (
	"context"
	"log"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const deviceCookie = "bassin_device"

// buildRouter wires routes for the storefront API. ctx bounds the
// background work spawned per device bundle.
func buildRouter(ctx context.Context, logger *log.Logger, deps Deps) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}
	if len(deps.AllowedOrigins) == 0 || slices.Contains(deps.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = deps.AllowedOrigins
	}
	if err := corsCfg.Validate(); err != nil {
		return nil, err
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Store))

	reg := newBundleRegistry(ctx, deps)
	h := &handlers{reg: reg, logger: logger}

	api := router.Group("/api")
	api.Use(deviceMiddleware(reg))
	{
		api.POST("/auth/login", h.login)
		api.POST("/auth/logout", h.logout)

		api.GET("/cart", h.getCart)
		api.GET("/cart/stream", h.streamCart)
		api.POST("/cart/items", h.addItem)
		api.PUT("/cart/items/:lineId/quantity", h.updateQuantity)
		api.DELETE("/cart/items/:lineId", h.removeItem)
		api.DELETE("/cart", h.clearCart)
		api.POST("/cart/migrate", h.migrateCart)

		api.POST("/checkout", h.placeOrder)

		api.POST("/payment/card", h.submitCard)
		api.POST("/payment/verify", h.verifyCode)
		api.POST("/payment/resend", h.resendCode)
		api.GET("/payment/remaining", h.remaining)
		api.POST("/payment/abandon", h.abandon)
	}

	return router, nil
}

// deviceMiddleware pins each browser to a device id cookie so every
// request lands on the same per-device service bundle.
func deviceMiddleware(reg *bundleRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID, err := c.Cookie(deviceCookie)
		if err != nil || deviceID == "" {
			deviceID = uuid.NewString()
			c.SetCookie(deviceCookie, deviceID, 0, "/", "", false, true)
		}
		c.Set(ctxDeviceID, deviceID)
		c.Set(ctxBundle, reg.forDevice(deviceID))
		c.Next()
	}
}
