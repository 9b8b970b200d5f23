package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/shipsync-system/internal/model"
	"github.com/mmeshcher/shipsync-system/internal/service"
)

type stubService struct {
	ingestAccepted bool
	ingestErr      error
	lastEvent      model.OrderEvent
	ingestCalls    int

	checkResp *model.CombineCheck
	checkErr  error

	confirmErr error
	lastRef    *service.ExternalRef

	listResp []model.Candidate
	listErr  error
}

func (s *stubService) IngestOrder(ctx context.Context, ev model.OrderEvent) (bool, error) {
	s.ingestCalls++
	s.lastEvent = ev
	return s.ingestAccepted, s.ingestErr
}

func (s *stubService) CheckCombinable(ctx context.Context, customerID string) (*model.CombineCheck, error) {
	return s.checkResp, s.checkErr
}

func (s *stubService) ConfirmCombine(ctx context.Context, customerID string, ref *service.ExternalRef) error {
	s.lastRef = ref
	return s.confirmErr
}

func (s *stubService) ListUnconfirmed(ctx context.Context) ([]model.Candidate, error) {
	return s.listResp, s.listErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger)
}

func TestOrderCreateWebhook_OK(t *testing.T) {
	svc := &stubService{ingestAccepted: true}
	h := newTestHandler(t, svc)

	body := `{
		"customer": {"id": 4401},
		"email": "buyer@example.com",
		"name": "#1001",
		"fulfillment_status": null,
		"shipping_address": {"address1": "1 Main St", "zip": "90001", "city": "Los Angeles"},
		"total_shipping_price": "7.50"
	}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.OrderCreateWebhook(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.ingestCalls != 1 {
		t.Fatalf("ingest calls = %d, want 1", svc.ingestCalls)
	}
	if svc.lastEvent.CustomerID != "4401" {
		t.Fatalf("customer id = %q, want %q", svc.lastEvent.CustomerID, "4401")
	}
	if svc.lastEvent.OrderName != "#1001" {
		t.Fatalf("order name = %q, want %q", svc.lastEvent.OrderName, "#1001")
	}
	if svc.lastEvent.ShippingCost == nil || *svc.lastEvent.ShippingCost != 7.5 {
		t.Fatalf("shipping cost = %v, want 7.5", svc.lastEvent.ShippingCost)
	}
}

func TestOrderCreateWebhook_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed json",
			body: `{"customer":`,
		},
		{
			name: "missing customer",
			body: `{"email":"a@b.c","name":"#1","shipping_address":{"address1":"1 Main St","zip":"90001"}}`,
		},
		{
			name: "missing shipping address",
			body: `{"customer":{"id":1},"email":"a@b.c","name":"#1"}`,
		},
		{
			name: "empty shipping address",
			body: `{"customer":{"id":1},"name":"#1","shipping_address":{"city":"LA"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			h := newTestHandler(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.OrderCreateWebhook(rec, req)

			res := rec.Result()
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
			}
			if svc.ingestCalls != 0 {
				t.Fatalf("service must not be called, got %d calls", svc.ingestCalls)
			}
		})
	}
}

func TestOrderCreateWebhook_FulfilledAcknowledged(t *testing.T) {
	svc := &stubService{ingestAccepted: false}
	h := newTestHandler(t, svc)

	body := `{
		"customer": {"id": "4401"},
		"name": "#1001",
		"fulfillment_status": "fulfilled",
		"shipping_address": {"address1": "1 Main St", "zip": "90001"}
	}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.OrderCreateWebhook(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.lastEvent.FulfillmentStatus != "fulfilled" {
		t.Fatalf("fulfillment status = %q, want %q", svc.lastEvent.FulfillmentStatus, "fulfilled")
	}
}

func TestOrderCreateWebhook_ServiceError(t *testing.T) {
	svc := &stubService{ingestErr: errors.New("store down")}
	h := newTestHandler(t, svc)

	body := `{"customer":{"id":1},"name":"#1","shipping_address":{"address1":"1 Main St","zip":"90001"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.OrderCreateWebhook(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
}

func TestCombineCheck_MissingCustomerID(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/combine-check", nil)
	rec := httptest.NewRecorder()

	h.CombineCheck(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCombineCheck_JSONResponse(t *testing.T) {
	cost := 7.5
	svc := &stubService{
		checkResp: &model.CombineCheck{
			CanCombine:   true,
			Orders:       []string{"#1001", "#1002"},
			ShippingCost: &cost,
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/combine-check?customerId=C1", nil)
	rec := httptest.NewRecorder()

	h.CombineCheck(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q, want application/json", ct)
	}

	var got model.CombineCheck
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.CanCombine || len(got.Orders) != 2 {
		t.Fatalf("unexpected verdict: %+v", got)
	}
}

func TestConfirmCombine_Success(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(map[string]string{"customerId": "C1"})

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got confirmCombineResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Success {
		t.Fatalf("success = false, want true")
	}
	if svc.lastRef != nil {
		t.Fatalf("external ref = %+v, want nil", svc.lastRef)
	}
}

func TestConfirmCombine_PassesExternalRef(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body := `{"customerId":"C1","orderId":1001,"shopDomain":"shop.example.com","accessToken":"shpat_test"}`

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.lastRef == nil || svc.lastRef.OrderID != "1001" || svc.lastRef.ShopDomain != "shop.example.com" {
		t.Fatalf("unexpected external ref: %+v", svc.lastRef)
	}
}

func TestConfirmCombine_PartialExternalRef(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	body := `{"customerId":"C1","orderId":"1001"}`

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestConfirmCombine_MissingCustomerID(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestConfirmCombine_ExternalFailure(t *testing.T) {
	svc := &stubService{
		confirmErr: service.ErrExternalTag,
	}
	h := newTestHandler(t, svc)

	body := `{"customerId":"C1","orderId":"1001","shopDomain":"shop.example.com","accessToken":"bad"}`

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}

	var got confirmCombineResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Success || got.Error == "" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestConfirmCombine_StoreError(t *testing.T) {
	svc := &stubService{confirmErr: errors.New("store down")}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-combine", strings.NewReader(`{"customerId":"C1"}`))
	rec := httptest.NewRecorder()

	h.ConfirmCombine(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
}

func TestWidget(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/widget.js", nil)
	rec := httptest.NewRecorder()

	h.Widget(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/javascript" {
		t.Fatalf("content type = %q, want application/javascript", ct)
	}
	if body := rec.Body.String(); !strings.Contains(body, "/api/combine-check") || !strings.Contains(body, "/api/confirm-combine") {
		t.Fatalf("widget script must reference both API endpoints")
	}
}

func TestAdminCombinedOrders(t *testing.T) {
	svc := &stubService{
		listResp: []model.Candidate{
			{
				Email:        "buyer@example.com",
				MemberOrders: []string{"#1001", "#1002"},
				ShippingCost: 7.5,
			},
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/admin/combined-orders", nil)
	rec := httptest.NewRecorder()

	h.AdminCombinedOrders(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q, want text/html", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "buyer@example.com") || !strings.Contains(body, "#1001, #1002") {
		t.Fatalf("admin page must list candidate details, got: %s", body)
	}
}
