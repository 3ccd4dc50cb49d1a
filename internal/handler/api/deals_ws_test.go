package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
)

func TestDealHubStreamsFilteredAlerts(t *testing.T) {
	hub := NewDealHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	e := echo.New()
	e.GET("/ws/deals", hub.ServeWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/deals?product_id=P001"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.PublishDeal(ctx, &models.DealAlert{ID: "skip", ProductID: "P002"}))
	require.NoError(t, hub.PublishDeal(ctx, &models.DealAlert{ID: "a1", ProductID: "P001", Retailer: "Croma", Price: 899}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type    string           `json:"type"`
		Payload models.DealAlert `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "deal.detected", msg.Type)
	assert.Equal(t, "a1", msg.Payload.ID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDealHubPublishNeverBlocks(t *testing.T) {
	hub := NewDealHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_ = hub.PublishDeal(context.Background(), &models.DealAlert{ID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishDeal blocked without a running hub")
	}
}
