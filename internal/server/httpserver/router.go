package httpserver

import (
	"net/http"
	"time"

	"github.com/yndnr/memkv/internal/server/httpserver/handler"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Store backs the status and snapshot endpoints.
	Store handler.Store

	// Metrics serves /metrics.
	Metrics http.Handler

	// Ready reports whether recovery has finished.
	Ready func() bool

	// Logger for request logging.
	Logger logger.Logger

	// StartedAt anchors the reported uptime.
	StartedAt time.Time

	// AdminAllowList is the IP/CIDR allowlist for /admin/v1 (empty = no restriction).
	AdminAllowList []string

	// RateLimit is the per-IP request rate for /admin/v1 (0 = unlimited).
	RateLimit float64

	// AccessLog logs every request.
	AccessLog bool
}

// NewRouter builds the admin handler with its middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := logger.Named(cfg.Logger, "admin")

	h := handler.New(cfg.Store, handler.Options{
		Metrics:   cfg.Metrics,
		Ready:     cfg.Ready,
		Logger:    log,
		StartedAt: cfg.StartedAt,
	})

	// Order: RequestID -> Recover -> AccessLog -> Handler
	base := []Middleware{RequestID(), Recover(log)}
	if cfg.AccessLog {
		base = append(base, AccessLog(log))
	}

	admin := append([]Middleware{}, base...)
	admin = append(admin, NetworkACL(cfg.AdminAllowList, log))
	if cfg.RateLimit > 0 {
		admin = append(admin, RateLimit(cfg.RateLimit, 0))
	}

	public := Chain(h, base...)
	restricted := Chain(h, admin...)

	mux := http.NewServeMux()
	mux.Handle("/health", public)
	mux.Handle("/ready", public)
	mux.Handle("/metrics", public)
	mux.Handle("/admin/v1/", restricted)
	return mux
}
