package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"qrmenu-be/internal/utils"

	"golang.org/x/time/rate"
)

// Tier is one rate limit policy.
type Tier struct {
	Name  string
	Limit rate.Limit
	Burst int
}

var (
	// Anonymous order placement (strict)
	TierCheckout = Tier{Name: "checkout", Limit: rate.Limit(2), Burst: 5}
	// General (default)
	TierGeneral = Tier{Name: "general", Limit: rate.Limit(10), Burst: 20}
	// Dashboards poll and click a lot
	TierStaff = Tier{Name: "staff", Limit: rate.Limit(20), Burst: 40}
	// Internal / trusted services
	TierInternal = Tier{Name: "internal", Limit: rate.Limit(100), Burst: 200}
)

const (
	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per identity and tier.
type Limiter struct {
	mu             sync.Mutex
	visitors       map[string]*visitor
	internalSecret string
	now            func() time.Time
}

func NewLimiter(internalSecret string) *Limiter {
	return &Limiter{
		visitors:       make(map[string]*visitor),
		internalSecret: internalSecret,
		now:            time.Now,
	}
}

// Run evicts idle visitors until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
		}
	}
}

func (l *Limiter) getVisitor(key string, tier Tier) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(tier.Limit, tier.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := l.resolveTier(r)

		// Separate buckets per tier for the same identity.
		key := identityKey(r) + ":" + tier.Name

		if !l.getVisitor(key, tier).Allow() {
			w.Header().Set("Retry-After", "1")
			utils.WriteJSONError(w, "rate limit exceeded", "rate_limited", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) resolveTier(r *http.Request) Tier {
	if l.internalSecret != "" && r.Header.Get("X-Service-Auth") == l.internalSecret {
		return TierInternal
	}

	id, ok := utils.IdentityFrom(r.Context())
	staff := ok && id.IsStaff()

	if r.Method == http.MethodPost && r.URL.Path == "/orders" && !staff {
		return TierCheckout
	}
	if staff {
		return TierStaff
	}
	return TierGeneral
}

func identityKey(r *http.Request) string {
	if id, ok := utils.IdentityFrom(r.Context()); ok && id.UserID != "" {
		return "user:" + id.UserID
	}
	if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
		return "device:" + deviceID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
