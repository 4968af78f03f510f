//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCreateOrder_RequiresAuth(t *testing.T) {
	resp := doPostWithAuth(t, "/api/v1/orders", orderRequest{
		Items: []orderItemRequest{{ProductID: "prod-v60", Quantity: 1}},
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder(t *testing.T) {
	resp := doPostWithAuth(t, "/api/v1/orders", orderRequest{
		Items: []orderItemRequest{
			{ProductID: "prod-v60", Quantity: 2},
			{ProductID: "prod-scale", Quantity: 1},
		},
	}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	if o.ID == "" {
		t.Fatal("expected order id")
	}
	if o.Status != "pending" {
		t.Fatalf("expected pending status, got %q", o.Status)
	}
	// 2 * 24.00 + 35.00
	if o.Total != 83.00 {
		t.Fatalf("expected total 83.00, got %v", o.Total)
	}
	if o.QtyItems != 3 {
		t.Fatalf("expected 3 items, got %d", o.QtyItems)
	}
}

func TestListOrders_NumberPrefixFilter(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-scale", Quantity: 1})

	resp := doGetWithAuth(t, "/api/v1/orders?number="+o.ID[:8], clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	views := decodeJSON[[]orderResponse](t, resp)
	if len(views) != 1 {
		t.Fatalf("expected 1 order for prefix %q, got %d", o.ID[:8], len(views))
	}
	if views[0].ID != o.ID {
		t.Fatalf("expected order %s, got %s", o.ID, views[0].ID)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	resp := doPostWithAuth(t, "/api/v1/orders", orderRequest{
		Items: []orderItemRequest{{ProductID: "no-such-product", Quantity: 1}},
	}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Message == "" {
		t.Fatal("expected error message")
	}
}

func TestAdminSurface_ForbiddenForClient(t *testing.T) {
	resp := doGetWithAuth(t, "/api/v1/admin/coupons", clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}
