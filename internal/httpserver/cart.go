package httpserver

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront/internal/domain"
)

func getActiveCartHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIdentityParams(c, c.Query("user_id"), c.Query("guest_key"))
		if !ok {
			return
		}
		cart, err := deps.Resolver.FindActive(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondData(c, http.StatusOK, cart)
	}
}

type ensureCartRequest struct {
	UserID   *int64 `json:"user_id"`
	GuestKey string `json:"guest_key"`
	Currency string `json:"currency"`
}

func ensureCartHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ensureCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, "request body must be valid JSON")
			return
		}

		var id domain.Identity
		if req.UserID != nil {
			if *req.UserID <= 0 {
				respondInvalid(c, "user_id must be a positive integer")
				return
			}
			id.UserID = req.UserID
		}
		if key := strings.TrimSpace(req.GuestKey); key != "" {
			parsed, err := uuid.Parse(key)
			if err != nil {
				respondInvalid(c, "guest_key must be a valid UUID")
				return
			}
			s := parsed.String()
			id.GuestKey = &s
		}

		cart, err := deps.Resolver.EnsureActive(c.Request.Context(), id, req.Currency)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondData(c, http.StatusOK, cart)
	}
}

func getCartHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cartID, ok := parsePathID(c, "cart id")
		if !ok {
			return
		}
		cart, err := deps.Carts.Get(c.Request.Context(), cartID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondData(c, http.StatusOK, cart)
	}
}

type patchCartRequest struct {
	Action    string   `json:"action"`
	ProductID int64    `json:"product_id"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

func patchCartHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cartID, ok := parsePathID(c, "cart id")
		if !ok {
			return
		}
		var req patchCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, "request body must be valid JSON")
			return
		}

		ctx := c.Request.Context()
		var cart *domain.Cart
		var err error
		switch strings.ToLower(strings.TrimSpace(req.Action)) {
		case "add":
			if req.Quantity == nil {
				respondInvalid(c, "quantity is required")
				return
			}
			cart, err = deps.Carts.Add(ctx, cartID, req.ProductID, *req.Quantity, req.UnitPrice)
		case "set":
			if req.Quantity == nil {
				respondInvalid(c, "quantity is required")
				return
			}
			cart, err = deps.Carts.Set(ctx, cartID, req.ProductID, *req.Quantity, req.UnitPrice)
		case "remove":
			cart, err = deps.Carts.Remove(ctx, cartID, req.ProductID)
		case "clear":
			cart, err = deps.Carts.Clear(ctx, cartID)
		default:
			respondInvalid(c, "action must be one of add, set, remove, clear")
			return
		}
		if err != nil {
			respondError(c, logger, err)
			return
		}
		respondData(c, http.StatusOK, cart)
	}
}

func cancelCartHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cartID, ok := parsePathID(c, "cart id")
		if !ok {
			return
		}
		if err := deps.Carts.Cancel(c.Request.Context(), cartID); err != nil {
			respondError(c, logger, err)
			return
		}
		respondData(c, http.StatusOK, gin.H{"id": cartID, "status": domain.StatusCancelled})
	}
}

func parsePathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondInvalid(c, what+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseIdentityParams validates the identity query parameters. Presence with
// a malformed value is a client error; a valid value is passed through.
func parseIdentityParams(c *gin.Context, rawUserID, rawGuestKey string) (domain.Identity, bool) {
	var id domain.Identity
	if v := strings.TrimSpace(rawUserID); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			respondInvalid(c, "user_id must be a positive integer")
			return id, false
		}
		id.UserID = &n
	}
	if v := strings.TrimSpace(rawGuestKey); v != "" {
		key, err := uuid.Parse(v)
		if err != nil {
			respondInvalid(c, "guest_key must be a valid UUID")
			return id, false
		}
		s := key.String()
		id.GuestKey = &s
	}
	return id, true
}
