// Package handler содержит HTTP-обработчики API сервиса shipsync.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipsync-system/internal/model"
	"github.com/mmeshcher/shipsync-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	IngestOrder(ctx context.Context, ev model.OrderEvent) (bool, error)
	CheckCombinable(ctx context.Context, customerID string) (*model.CombineCheck, error)
	ConfirmCombine(ctx context.Context, customerID string, ref *service.ExternalRef) error
	ListUnconfirmed(ctx context.Context) ([]model.Candidate, error)
}

// Handler реализует HTTP-обработчики API сервиса shipsync.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// flexibleID принимает идентификатор, приходящий в JSON числом или строкой.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// flexibleAmount принимает денежную сумму, приходящую в JSON числом
// или строкой вида "7.50".
type flexibleAmount float64

func (f *flexibleAmount) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexibleAmount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexibleAmount(v)
	return nil
}

type orderCustomer struct {
	ID flexibleID `json:"id"`
}

type orderCreateRequest struct {
	Customer           *orderCustomer  `json:"customer"`
	Email              string          `json:"email"`
	Name               string          `json:"name"`
	FulfillmentStatus  *string         `json:"fulfillment_status"`
	ShippingAddress    *model.Address  `json:"shipping_address"`
	TotalShippingPrice *flexibleAmount `json:"total_shipping_price"`
}

// OrderCreateWebhook принимает событие создания заказа от платформы.
// Отфильтрованные события (заказ уже в работе) подтверждаются без записи,
// чтобы платформа не пыталась доставить вебхук повторно.
func (h *Handler) OrderCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	customerID := ""
	if req.Customer != nil {
		customerID = string(req.Customer.ID)
	}

	if customerID == "" || req.ShippingAddress == nil ||
		(req.ShippingAddress.Address1 == "" && req.ShippingAddress.Zip == "") {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ev := model.OrderEvent{
		CustomerID:      customerID,
		Email:           req.Email,
		OrderName:       req.Name,
		ShippingAddress: *req.ShippingAddress,
	}
	if req.FulfillmentStatus != nil {
		ev.FulfillmentStatus = *req.FulfillmentStatus
	}
	if req.TotalShippingPrice != nil {
		v := float64(*req.TotalShippingPrice)
		ev.ShippingCost = &v
	}

	accepted, err := h.service.IngestOrder(r.Context(), ev)
	if err != nil {
		h.logger.Error("ingest order error", zap.Error(err), zap.String("order", ev.OrderName))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !accepted {
		h.logger.Debug("order not eligible for combining",
			zap.String("order", ev.OrderName),
			zap.String("fulfillment_status", ev.FulfillmentStatus),
		)
	}

	w.WriteHeader(http.StatusOK)
}

// CombineCheck возвращает вердикт о возможности объединения заказов покупателя.
func (h *Handler) CombineCheck(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	verdict, err := h.service.CheckCombinable(r.Context(), customerID)
	if err != nil {
		h.logger.Error("combine check error", zap.Error(err), zap.String("customerID", customerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(verdict); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type confirmCombineRequest struct {
	CustomerID  flexibleID `json:"customerId"`
	OrderID     flexibleID `json:"orderId"`
	ShopDomain  string     `json:"shopDomain"`
	AccessToken string     `json:"accessToken"`
}

type confirmCombineResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ConfirmCombine финализирует объединение заказов покупателя.
// Внешняя ссылка на заказ либо передаётся целиком (orderId, shopDomain,
// accessToken), либо не передаётся вовсе.
func (h *Handler) ConfirmCombine(w http.ResponseWriter, r *http.Request) {
	var req confirmCombineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.CustomerID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var ref *service.ExternalRef
	if req.OrderID != "" || req.ShopDomain != "" || req.AccessToken != "" {
		if req.OrderID == "" || req.ShopDomain == "" || req.AccessToken == "" {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		ref = &service.ExternalRef{
			OrderID:     string(req.OrderID),
			ShopDomain:  req.ShopDomain,
			AccessToken: req.AccessToken,
		}
	}

	err := h.service.ConfirmCombine(r.Context(), string(req.CustomerID), ref)
	if err != nil {
		if errors.Is(err, service.ErrExternalTag) {
			// Локально объединение уже подтверждено, не удалась только
			// пометка на платформе — сообщаем об этом отдельным исходом.
			h.logger.Error("external tagging error", zap.Error(err), zap.String("customerID", string(req.CustomerID)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(confirmCombineResponse{Success: false, Error: err.Error()})
			return
		}
		h.logger.Error("confirm combine error", zap.Error(err), zap.String("customerID", string(req.CustomerID)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(confirmCombineResponse{Success: true}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
