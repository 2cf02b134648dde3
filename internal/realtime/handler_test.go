package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withIdentity(id *utils.Identity, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id != nil {
			r = r.WithContext(utils.SetIdentity(r.Context(), *id))
		}
		next.ServeHTTP(w, r)
	})
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestHandler_JoinAndReceive(t *testing.T) {
	b := NewBroadcaster(nil)
	vendor := &utils.Identity{UserID: "u-1", Role: utils.RoleVendor, RestaurantID: "rest-1"}
	srv := httptest.NewServer(withIdentity(vendor, NewHandler(b, 8, nil)))
	defer srv.Close()

	staff := dial(t, srv)
	require.NoError(t, staff.WriteJSON(ClientMessage{Type: TypeJoinRestaurant, RestaurantID: "rest-1"}))
	joined := readMessage(t, staff)
	assert.Equal(t, TypeJoined, joined.Type)
	assert.Equal(t, "rest-1", joined.RestaurantID)

	customer := dial(t, srv)
	require.NoError(t, customer.WriteJSON(ClientMessage{Type: TypeJoinCustomer, CustomerID: "cust-1"}))
	assert.Equal(t, TypeJoined, readMessage(t, customer).Type)

	assert.Equal(t, 2, b.Len())

	n := b.Broadcast(context.Background(), order.Event{Kind: order.EventStatusChanged, Order: testOrder("rest-1", "cust-1")})
	assert.Equal(t, 2, n)

	got := readMessage(t, staff)
	assert.Equal(t, TypeOrderUpdate, got.Type)
	require.NotNil(t, got.Data)
	assert.Equal(t, order.StatusConfirmed, got.Data.Status)

	assert.Equal(t, TypeOrderStatusUpdate, readMessage(t, customer).Type)
}

func TestHandler_RejectsForeignRestaurant(t *testing.T) {
	b := NewBroadcaster(nil)
	kitchen := &utils.Identity{Role: utils.RoleKitchen, RestaurantID: "rest-2"}
	srv := httptest.NewServer(withIdentity(kitchen, NewHandler(b, 8, nil)))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: TypeJoinRestaurant, RestaurantID: "rest-1"}))

	msg := readMessage(t, ws)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, 0, b.Len())
}

func TestHandler_AnonymousCannotFollowRestaurant(t *testing.T) {
	b := NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, 8, nil))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: TypeJoinRestaurant, RestaurantID: "rest-1"}))
	assert.Equal(t, TypeError, readMessage(t, ws).Type)
}

func TestHandler_BadMessages(t *testing.T) {
	b := NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, 8, nil))
	defer srv.Close()

	ws := dial(t, srv)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "malformed message", readMessage(t, ws).Message)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: "dance"}))
	assert.Equal(t, TypeError, readMessage(t, ws).Type)

	require.NoError(t, ws.WriteJSON(ClientMessage{Type: TypeJoinCustomer}))
	assert.Equal(t, "customerId is required", readMessage(t, ws).Message)
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	b := NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, 8, nil))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: TypeJoinCustomer, CustomerID: "cust-1"}))
	readMessage(t, ws)
	require.Equal(t, 1, b.Len())

	ws.Close()
	assert.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_CloseDropsClients(t *testing.T) {
	b := NewBroadcaster(nil)
	srv := httptest.NewServer(NewHandler(b, 8, nil))
	defer srv.Close()

	ws := dial(t, srv)
	require.NoError(t, ws.WriteJSON(ClientMessage{Type: TypeJoinCustomer, CustomerID: "cust-1"}))
	readMessage(t, ws)

	b.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://menu.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://menu.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
