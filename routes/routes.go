package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	config "github.com/phillip/membership-portal-go/config"
	controllers "github.com/phillip/membership-portal-go/controllers"
	ledger "github.com/phillip/membership-portal-go/ledger"
	middleware "github.com/phillip/membership-portal-go/middleware"
	paystack "github.com/phillip/membership-portal-go/paystack"
	reconcile "github.com/phillip/membership-portal-go/reconcile"
)

type Dependencies struct {
	Engine   *reconcile.Engine
	Store    ledger.Store
	Verifier *paystack.SignatureVerifier
	Logger   *logrus.Logger
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, deps Dependencies) {
	// public
	r.GET("/health", controllers.Health(cfg))

	// gateway callback, authenticated by signature
	r.POST("/payments/webhook", controllers.PaystackWebhook(deps.Engine, deps.Verifier, deps.Logger))

	// protected
	auth := middleware.AuthMiddleware(cfg)

	payments := r.Group("/payments")
	payments.Use(auth)
	{
		payments.POST("/verify", controllers.VerifyPayment(deps.Engine, deps.Logger))
		payments.GET("", controllers.ListPayments(deps.Store, deps.Logger))
		payments.GET("/:reference", controllers.GetPayment(deps.Store, deps.Logger))
	}
}
