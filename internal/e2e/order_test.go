//go:build integration

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{8}$`)
	emailSeq           atomic.Int64
)

type line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type placeRequest struct {
	CustomerName    string  `json:"customer_name"`
	CustomerEmail   string  `json:"customer_email"`
	BrandID         string  `json:"brand_id,omitempty"`
	Items           []line  `json:"items"`
	Currency        string  `json:"currency,omitempty"`
	ApplyVAT        bool    `json:"apply_vat"`
	ShippingCharges float64 `json:"shipping_charges"`
}

func uniqueEmail() string {
	return fmt.Sprintf("e2e-%d-%d@example.com", time.Now().UnixNano(), emailSeq.Add(1))
}

func embroidered(email string) placeRequest {
	return placeRequest{
		CustomerName:    "E2E Customer",
		CustomerEmail:   email,
		BrandID:         "rihla-abaya",
		Items:           []line{{ProductID: "abaya-embroidered", Quantity: 1}},
		Currency:        "SAR",
		ApplyVAT:        true,
		ShippingCharges: 50,
	}
}

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders", embroidered(uniqueEmail()), nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestPlaceOrder_InvalidKey(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders", embroidered(uniqueEmail()), map[string]string{"api_key": "wrong"})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	req := embroidered(uniqueEmail())
	req.Items = []line{}
	resp := do(t, http.MethodPost, "/api/orders", req, authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	e := decodeJSON[errorResponse](t, resp)
	if e.Kind != "validation" {
		t.Errorf("kind: got %q, want validation", e.Kind)
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	req := embroidered(uniqueEmail())
	req.Items = []line{{ProductID: "does-not-exist", Quantity: 1}}
	resp := do(t, http.MethodPost, "/api/orders", req, authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	req := embroidered(uniqueEmail())
	req.Items = []line{{ProductID: "atelier-evening-gown", Quantity: 10_000}}
	resp := do(t, http.MethodPost, "/api/orders", req, authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusConflict)

	e := decodeJSON[errorResponse](t, resp)
	if e.Kind != "insufficient_stock" {
		t.Errorf("kind: got %q, want insufficient_stock", e.Kind)
	}
	if e.Details["product_id"] != "atelier-evening-gown" {
		t.Errorf("details.product_id: got %v", e.Details["product_id"])
	}
}

func TestPlaceOrder_Priced(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders", embroidered(uniqueEmail()), authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	o := decodeJSON[orderResponse](t, resp)
	if !orderNumberPattern.MatchString(o.OrderNumber) {
		t.Errorf("order_number %q does not match %s", o.OrderNumber, orderNumberPattern)
	}
	checks := map[string][2]json.Number{
		"subtotal":   {o.Subtotal, "499.99"},
		"vat_rate":   {o.VATRate, "0.15"},
		"vat_amount": {o.VATAmount, "75.00"},
		"shipping":   {o.Shipping, "50.00"},
		"total":      {o.Total, "624.99"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s: got %s, want %s", name, c[0], c[1])
		}
	}
	if o.BrandName != "Rihla Abaya" {
		t.Errorf("brand_name: got %q", o.BrandName)
	}
	if o.Customer == nil || o.Customer.TotalOrders != 1 || o.Customer.LifetimeValue != "624.99" {
		t.Errorf("customer: got %+v", o.Customer)
	}
}

func TestPlaceOrder_BearerToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "e2e-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp := do(t, http.MethodPost, "/api/orders", embroidered(uniqueEmail()),
		map[string]string{"Authorization": "Bearer " + token})
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
}

func TestPlaceOrder_Idempotent(t *testing.T) {
	headers := authed()
	headers["Idempotency-Key"] = fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	req := embroidered(uniqueEmail())

	first := do(t, http.MethodPost, "/api/orders", req, headers)
	defer first.Body.Close()
	expectStatus(t, first, http.StatusCreated)
	a := decodeJSON[orderResponse](t, first)

	second := do(t, http.MethodPost, "/api/orders", req, headers)
	defer second.Body.Close()
	expectStatus(t, second, http.StatusOK)
	b := decodeJSON[orderResponse](t, second)

	if a.ID != b.ID {
		t.Errorf("replayed order id: got %s, want %s", b.ID, a.ID)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/orders", embroidered(uniqueEmail()), authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	o := decodeJSON[orderResponse](t, resp)

	for _, status := range []string{"processing", "completed", "pending", "cancelled"} {
		r := do(t, http.MethodPut, "/api/orders/"+o.ID+"/status", map[string]string{"status": status}, authed())
		expectStatus(t, r, http.StatusOK)
		got := decodeJSON[orderResponse](t, r)
		r.Body.Close()
		if got.Status != status {
			t.Errorf("status: got %q, want %q", got.Status, status)
		}
	}

	r := do(t, http.MethodPut, "/api/orders/unknown-id/status", map[string]string{"status": "pending"}, authed())
	defer r.Body.Close()
	expectStatus(t, r, http.StatusNotFound)
}

func TestInvoices(t *testing.T) {
	email := uniqueEmail()
	var numbers []string
	var customerID string
	for range 2 {
		resp := do(t, http.MethodPost, "/api/orders", embroidered(email), authed())
		expectStatus(t, resp, http.StatusCreated)
		o := decodeJSON[orderResponse](t, resp)
		resp.Body.Close()
		numbers = append(numbers, o.OrderNumber)
		customerID = o.Customer.ID
	}

	resp := do(t, http.MethodGet, "/api/public/invoice/"+customerID, nil, nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
	inv := decodeJSON[invoiceResponse](t, resp)
	if len(inv.Orders) != 2 {
		t.Fatalf("orders: got %d, want 2", len(inv.Orders))
	}
	if inv.TotalAmount != "1249.98" {
		t.Errorf("total_amount: got %s, want 1249.98", inv.TotalAmount)
	}
	if inv.Customer.TotalOrders != 2 {
		t.Errorf("total_orders: got %d, want 2", inv.Customer.TotalOrders)
	}

	byOrder := do(t, http.MethodGet, "/api/public/invoice-by-order/INV-"+numbers[0], nil, nil)
	defer byOrder.Body.Close()
	expectStatus(t, byOrder, http.StatusOK)

	missing := do(t, http.MethodGet, "/api/public/invoice/00000000-0000-0000-0000-000000000000", nil, nil)
	defer missing.Body.Close()
	expectStatus(t, missing, http.StatusNotFound)
}

func TestListOrders_BrandFilter(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/orders?brand_id=rihla-abaya&limit=5", nil, authed())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	list := decodeJSON[struct {
		Orders []struct {
			BrandID string `json:"brand_id"`
		} `json:"orders"`
		Count int `json:"count"`
	}](t, resp)
	if list.Count != len(list.Orders) || list.Count > 5 {
		t.Errorf("count %d with %d orders", list.Count, len(list.Orders))
	}
	for _, o := range list.Orders {
		if o.BrandID != "rihla-abaya" {
			t.Errorf("brand_id: got %q", o.BrandID)
		}
	}
}
