package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront-go/storefront/internal/domain/order"
)

func TestOrderCreated(t *testing.T) {
	o := &order.Order{
		ID:     "o1",
		UserID: "u1",
		Items:  []order.Item{{Quantity: 2}, {Quantity: 1}},
		Total:  decimal.RequireFromString("19.999"),
	}

	e := OrderCreated(o)

	assert.Equal(t, EventOrderCreated, e.Type)
	assert.False(t, e.At.IsZero())

	payload, ok := e.Payload.(OrderCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "o1", payload.OrderID)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, 3, payload.QtyItems)
	assert.True(t, decimal.RequireFromString("20.00").Equal(payload.Total))
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Shutdown(context.Background())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens during the upgrade, so the event can go out
	// immediately.
	hub.Publish(Event{Type: "test.event", At: time.Now(), Payload: map[string]string{"k": "v"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var e struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &e))
	assert.Equal(t, "test.event", e.Type)
	assert.Equal(t, "v", e.Payload["k"])
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(zap.NewNop())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hub.Shutdown(context.Background())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after shutdown")
}
