package httpserver

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
	orderrepo "storefront/internal/repository/order"
	ordersvc "storefront/internal/service/order"
)

// Deps carries the services the router dispatches to. They are interfaces so
// handler tests can stub them.
type Deps struct {
	Resolver IdentityResolver
	Carts    CartService
	Orders   OrderService
}

type IdentityResolver interface {
	FindActive(ctx context.Context, id domain.Identity) (*domain.Cart, error)
	EnsureActive(ctx context.Context, id domain.Identity, currency string) (*domain.Cart, error)
}

type CartService interface {
	Get(ctx context.Context, cartID int64) (*domain.Cart, error)
	Add(ctx context.Context, cartID, productID int64, quantity float64, unitPrice *float64) (*domain.Cart, error)
	Set(ctx context.Context, cartID, productID int64, quantity float64, unitPrice *float64) (*domain.Cart, error)
	Remove(ctx context.Context, cartID, productID int64) (*domain.Cart, error)
	Clear(ctx context.Context, cartID int64) (*domain.Cart, error)
	Cancel(ctx context.Context, cartID int64) error
}

type OrderService interface {
	Create(ctx context.Context, in ordersvc.CreateInput) (*domain.Order, error)
	Get(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, f orderrepo.ListFilter) ([]domain.Order, error)
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, pool *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if deps.Resolver == nil || deps.Carts == nil || deps.Orders == nil {
		return nil, errors.New("httpserver: missing dependencies")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:    []string{"Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(pool))

	router.GET("/cart", getActiveCartHandler(logger, deps))
	router.POST("/cart", ensureCartHandler(logger, deps))
	router.GET("/cart/:id", getCartHandler(logger, deps))
	router.PATCH("/cart/:id", patchCartHandler(logger, deps))
	router.DELETE("/cart/:id", cancelCartHandler(logger, deps))

	router.GET("/orders", listOrdersHandler(logger, deps))
	router.POST("/orders", createOrderHandler(logger, deps))
	router.GET("/orders/:id", getOrderHandler(logger, deps))

	return router, nil
}
