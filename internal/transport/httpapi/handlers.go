package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
)

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	products := s.catalog.ListProducts()
	resp := productsResponse{Products: make([]productResponse, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, productResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.CreateOrder(r.Context(), req.command(), actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	list, err := s.orders.ListMyOrders(r.Context(), actorFrom(r), limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrdersResponse(list))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.GetOrder(r.Context(), orderID(r), actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) editOrder(w http.ResponseWriter, r *http.Request) {
	var req editOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.EditOrder(r.Context(), orders.EditOrderCommand{
		OrderID:         orderID(r),
		CustomerInfo:    req.CustomerInfo.toDomain(),
		Items:           itemRequests(req.Items),
		Notes:           req.Notes,
		ExpectedVersion: req.ExpectedVersion,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.CancelOrder(r.Context(), orders.CancelOrderCommand{
		OrderID:         orderID(r),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) orderTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := s.orders.Timeline(r.Context(), orderID(r), actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineResponse(events))
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	list, err := s.orders.ListOrders(r.Context(), orders.ListOrdersQuery{
		Status: domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  limit,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrdersResponse(list))
}

func (s *Server) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.SetStatus(r.Context(), orders.SetStatusCommand{
		OrderID:         orderID(r),
		Status:          domain.OrderStatus(strings.TrimSpace(req.Status)),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) adminForceStatus(w http.ResponseWriter, r *http.Request) {
	var req forceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.ForceStatus(r.Context(), orders.ForceStatusCommand{
		OrderID: orderID(r),
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
		Reason:  req.Reason,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) adminPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.orders.UpdatePaymentStatus(r.Context(), orders.UpdatePaymentStatusCommand{
		OrderID:         orderID(r),
		Status:          domain.PaymentStatus(strings.TrimSpace(req.Status)),
		ExpectedVersion: req.ExpectedVersion,
	}, actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.Get(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), actorFrom(r)); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	c, event, err := s.carts.AddProduct(r.Context(), actorFrom(r), strings.TrimSpace(req.ProductID))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, addCartItemResponse{
		Cart:  toCartResponse(c),
		Event: cartEventResponse(event),
	})
}

func (s *Server) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	c, err := s.carts.SetQuantity(r.Context(), actorFrom(r), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.carts.RemoveItem(r.Context(), actorFrom(r), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	order, err := s.carts.Checkout(r.Context(), actorFrom(r), req.command())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func orderID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderID"))
}
