package httpserver

import (
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	orderrepo "storefront/internal/repository/order"
	ordersvc "storefront/internal/service/order"
)

// Order list and detail return the resource directly, without the envelope.

func listOrdersHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := orderrepo.ListFilter{
			CustomerType:  c.Query("customer_type"),
			PaymentMethod: c.Query("payment_method"),
		}
		if v := c.Query("limit"); v != "" {
			f.Limit, _ = strconv.Atoi(v)
		}
		if v := c.Query("offset"); v != "" {
			f.Offset, _ = strconv.Atoi(v)
		}

		orders, err := deps.Orders.List(c.Request.Context(), f)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func getOrderHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parsePathID(c, "order id")
		if !ok {
			return
		}
		order, err := deps.Orders.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// createOrderHandler negotiates the response by Accept header: JSON clients
// get the created order, browser form posts get a 303 to the confirmation
// view with only non-secret identifiers in the query string.
func createOrderHandler(logger *log.Logger, deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in ordersvc.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondInvalid(c, "request body must be valid JSON")
			return
		}

		order, err := deps.Orders.Create(c.Request.Context(), in)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
			q := url.Values{}
			q.Set("id", strconv.FormatInt(order.ID, 10))
			q.Set("no", order.OrderNumber)
			q.Set("ct", order.CustomerType)
			q.Set("pm", order.PaymentMethod)
			c.Redirect(http.StatusSeeOther, "/orders/confirmation?"+q.Encode())
			return
		}
		respondData(c, http.StatusCreated, order)
	}
}
