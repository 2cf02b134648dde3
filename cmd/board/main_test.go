package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"qrmenu-be/internal/handler"
	"qrmenu-be/internal/middleware"
	"qrmenu-be/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestParseOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		opts, err := parseOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", opts.server)
		assert.Equal(t, "vendor", opts.role)
		assert.Equal(t, 5*time.Second, opts.interval)
	})

	t.Run("Environment fallback", func(t *testing.T) {
		t.Setenv("BOARD_ROLE", "kitchen")
		t.Setenv("BOARD_RESTAURANT", "rest-9")

		opts, err := parseOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, "kitchen", opts.role)
		assert.Equal(t, "rest-9", opts.restaurant)
	})

	t.Run("Flags win", func(t *testing.T) {
		t.Setenv("BOARD_ROLE", "kitchen")

		opts, err := parseOptions([]string{"-role", "admin", "-interval", "2s"})
		require.NoError(t, err)
		assert.Equal(t, "admin", opts.role)
		assert.Equal(t, 2*time.Second, opts.interval)
	})

	t.Run("Unknown flag", func(t *testing.T) {
		_, err := parseOptions([]string{"-colour", "red"})
		assert.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	repo := order.NewMemoryRepository()
	svc := order.NewService(repo, nil)
	total := 9.0
	_, err := svc.CreateOrder(context.Background(), order.CreateOrderInput{
		RestaurantID: "rest-1",
		DeliveryType: order.DeliveryTakeaway,
		Items:        []order.CreateItemInput{{MenuItemID: "m-1", Quantity: 3, UnitPrice: 3}},
		TotalAmount:  &total,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler.NewRouter(handler.Deps{
		Orders: svc,
		Auth:   middleware.NewAuthenticator(""),
	}))
	defer srv.Close()

	t.Run("Admin board advances by row", func(t *testing.T) {
		out := &syncBuffer{}
		in := strings.NewReader("r\na 1\nq\n")

		err := run(context.Background(), options{server: srv.URL, role: "admin", interval: time.Hour}, in, out)
		require.NoError(t, err)

		assert.Contains(t, out.String(), "admin board (all restaurants)")
		assert.Contains(t, out.String(), "refreshed")
		assert.Contains(t, out.String(), "is now confirmed")
	})

	t.Run("Bad command is reported", func(t *testing.T) {
		out := &syncBuffer{}
		in := strings.NewReader("z\nq\n")

		err := run(context.Background(), options{server: srv.URL, role: "admin", interval: time.Hour}, in, out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), `unknown command "z"`)
	})

	t.Run("Role without restaurant", func(t *testing.T) {
		err := run(context.Background(), options{server: srv.URL, role: "kitchen"}, strings.NewReader(""), &syncBuffer{})
		assert.Error(t, err)
	})
}
