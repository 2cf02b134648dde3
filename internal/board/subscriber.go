package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/order"
	"qrmenu-be/internal/realtime"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	joinTimeout           = 10 * time.Second
)

// ErrPollOnly is returned for boards without a restaurant scope; they have no
// live feed to join.
var ErrPollOnly = errors.New("global boards poll only")

// Subscriber follows one restaurant's live order feed and reconnects after a
// fixed delay when the connection drops.
type Subscriber struct {
	url            string
	token          string
	restaurantID   string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

func NewSubscriber(baseURL, token string, caps Capabilities) (*Subscriber, error) {
	if caps.Global() {
		return nil, ErrPollOnly
	}

	wsURL := strings.TrimRight(baseURL, "/") + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	return &Subscriber{
		url:            wsURL,
		token:          token,
		restaurantID:   caps.RestaurantID,
		ReconnectDelay: DefaultReconnectDelay,
		Dialer:         websocket.DefaultDialer,
	}, nil
}

// Run streams events into out until ctx is done.
func (s *Subscriber) Run(ctx context.Context, out chan<- order.Event) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "board"),
		zap.String("restaurant_id", s.restaurantID),
	)

	for {
		err := s.session(ctx, out)
		if ctx.Err() != nil {
			return
		}
		log.Warn("live feed disconnected, reconnecting",
			zap.Duration("delay", s.ReconnectDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.ReconnectDelay):
		}
	}
}

func (s *Subscriber) session(ctx context.Context, out chan<- order.Event) error {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	ws, _, err := s.Dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer ws.Close()

	// Unblock ReadJSON when the caller stops.
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	if err := ws.WriteJSON(realtime.ClientMessage{
		Type:         realtime.TypeJoinRestaurant,
		RestaurantID: s.restaurantID,
	}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	if err := awaitJoined(ws); err != nil {
		return err
	}

	for {
		var msg realtime.ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Data == nil {
			continue
		}

		select {
		case out <- order.Event{Kind: order.EventUpdated, Order: msg.Data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func awaitJoined(ws *websocket.Conn) error {
	if err := ws.SetReadDeadline(time.Now().Add(joinTimeout)); err != nil {
		return err
	}
	for {
		var msg realtime.ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await join: %w", err)
		}
		switch msg.Type {
		case realtime.TypeJoined:
			return ws.SetReadDeadline(time.Time{})
		case realtime.TypeError:
			return fmt.Errorf("join refused: %s", msg.Message)
		}
	}
}
