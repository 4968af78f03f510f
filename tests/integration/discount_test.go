//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func createOrder(t *testing.T, items ...orderItemRequest) orderResponse {
	t.Helper()

	resp := doPostWithAuth(t, "/api/v1/orders", orderRequest{Items: items}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func createCoupon(t *testing.T, req couponRequest) couponResponse {
	t.Helper()

	resp := doPostWithAuth(t, "/api/v1/admin/coupons", req, adminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create coupon: expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[couponResponse](t, resp)
}

func couponQuantity(t *testing.T, id string) int {
	t.Helper()

	resp := doGetWithAuth(t, "/api/v1/admin/coupons/"+id, adminKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get coupon: expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[couponResponse](t, resp).Quantity
}

// applyCoupon posts a discount application without touching testing.T, so it
// is safe to call from concurrent goroutines.
func applyCoupon(orderID, code string) (applyDiscountResponse, error) {
	var out applyDiscountResponse

	data, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+"/api/v1/orders/"+orderID+"/discount", bytes.NewReader(data))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", clientKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("apply %s to %s: status %d", code, orderID, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func TestApplyDiscount(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-grinder", Quantity: 1})

	resp := doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "welcome10"}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[applyDiscountResponse](t, resp)
	if !body.Info.Success {
		t.Fatalf("expected success, got %q", body.Info.Message)
	}
	if len(body.Order.Discounts) != 1 {
		t.Fatalf("expected 1 discount, got %d", len(body.Order.Discounts))
	}
	// 10% of 89.90
	if body.Order.Discounts[0].Amount != 8.99 {
		t.Fatalf("expected discount 8.99, got %v", body.Order.Discounts[0].Amount)
	}
	if body.Order.Total != 80.91 {
		t.Fatalf("expected total 80.91, got %v", body.Order.Total)
	}
}

func TestApplyDiscount_SecondNonRecursiveRejected(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-kettle", Quantity: 1})

	resp := doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "WELCOME10"}, clientKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first apply: expected 200, got %d", resp.StatusCode)
	}

	resp = doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "FREEBIE"}, clientKey)
	defer resp.Body.Close()

	body := decodeJSON[applyDiscountResponse](t, resp)
	if body.Info.Success {
		t.Fatal("expected second non-recursive coupon to be rejected")
	}
	if len(body.Order.Discounts) != 1 {
		t.Fatalf("expected 1 discount, got %d", len(body.Order.Discounts))
	}
}

func TestApplyDiscount_RecursiveStacks(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-grinder", Quantity: 2})

	resp := doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "WELCOME10"}, clientKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first apply: expected 200, got %d", resp.StatusCode)
	}

	// TENOFF is recursive and stacks on top of an existing discount.
	resp = doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "TENOFF"}, clientKey)
	defer resp.Body.Close()

	body := decodeJSON[applyDiscountResponse](t, resp)
	if !body.Info.Success {
		t.Fatalf("expected recursive coupon to stack, got %q", body.Info.Message)
	}
	if len(body.Order.Discounts) != 2 {
		t.Fatalf("expected 2 discounts, got %d", len(body.Order.Discounts))
	}
}

func TestApplyDiscount_UnknownCode(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-v60", Quantity: 1})

	resp := doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "NO-SUCH-CODE"}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestApplyDiscount_LastUnitConcurrent(t *testing.T) {
	c := createCoupon(t, couponRequest{Code: "LASTUNIT", Type: "percent", Discount: 5, Quantity: 1})

	const workers = 4
	orderIDs := make([]string, workers)
	for i := range orderIDs {
		orderIDs[i] = createOrder(t, orderItemRequest{ProductID: "prod-espresso", Quantity: 1}).ID
	}

	type outcome struct {
		body applyDiscountResponse
		err  error
	}
	results := make(chan outcome, workers)
	start := make(chan struct{})
	for _, id := range orderIDs {
		go func(orderID string) {
			<-start
			body, err := applyCoupon(orderID, "LASTUNIT")
			results <- outcome{body: body, err: err}
		}(id)
	}
	close(start)

	var winner applyDiscountResponse
	var wins, exhausted int
	for i := 0; i < workers; i++ {
		out := <-results
		if out.err != nil {
			t.Fatalf("concurrent apply: %v", out.err)
		}
		switch {
		case out.body.Info.Success:
			wins++
			winner = out.body
		case out.body.Info.Message == "coupon is no longer available":
			exhausted++
		default:
			t.Fatalf("unexpected outcome: %q", out.body.Info.Message)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 successful apply, got %d", wins)
	}
	if exhausted != workers-1 {
		t.Fatalf("expected %d exhausted rejections, got %d", workers-1, exhausted)
	}
	if qty := couponQuantity(t, c.ID); qty != 0 {
		t.Fatalf("expected quantity 0 after the last redemption, got %d", qty)
	}

	// Removing the winning discount hands the unit back.
	resp := doDeleteWithAuth(t, "/api/v1/orders/"+winner.Order.ID+"/discount",
		map[string]string{"discount_id": winner.Order.Discounts[0].ID}, clientKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove discount: expected 204, got %d", resp.StatusCode)
	}
	if qty := couponQuantity(t, c.ID); qty != 1 {
		t.Fatalf("expected quantity 1 after remove, got %d", qty)
	}
}

func TestRemoveDiscount(t *testing.T) {
	o := createOrder(t, orderItemRequest{ProductID: "prod-espresso", Quantity: 1})

	resp := doPostWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"code": "WELCOME10"}, clientKey)
	body := decodeJSON[applyDiscountResponse](t, resp)
	resp.Body.Close()
	if !body.Info.Success {
		t.Fatalf("apply: %q", body.Info.Message)
	}

	resp = doDeleteWithAuth(t, "/api/v1/orders/"+o.ID+"/discount",
		map[string]string{"discount_id": body.Order.Discounts[0].ID}, clientKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	// The order is back at full price.
	getResp := doGetWithAuth(t, "/api/v1/orders/"+o.ID, clientKey)
	defer getResp.Body.Close()
	fresh := decodeJSON[orderResponse](t, getResp)
	if len(fresh.Discounts) != 0 {
		t.Fatalf("expected no discounts, got %d", len(fresh.Discounts))
	}
	if fresh.Total != fresh.Subtotal {
		t.Fatalf("expected total %v to equal subtotal %v", fresh.Total, fresh.Subtotal)
	}
}
