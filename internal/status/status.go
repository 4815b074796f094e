// internal/status/status.go
package status

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinicsync/internal/activity"
	"clinicsync/internal/aiclient"
	"clinicsync/internal/authz"
	"clinicsync/internal/billing"
	"clinicsync/internal/ledger"
	"clinicsync/internal/syncer"
)

// Server exposes the daemon's read-only operational surface: health,
// Prometheus metrics, and a JSON snapshot of every cached domain.
type Server struct {
	coordinators []*syncer.Coordinator
	engine       *authz.Engine
	cash         *ledger.PettyCash
	log          *activity.Log
	rules        *billing.Rules
	ai           *aiclient.Client
	startedAt    time.Time
}

func NewServer(coordinators []*syncer.Coordinator, engine *authz.Engine, cash *ledger.PettyCash, log *activity.Log, rules *billing.Rules, ai *aiclient.Client) *Server {
	return &Server{
		coordinators: coordinators,
		engine:       engine,
		cash:         cash,
		log:          log,
		rules:        rules,
		ai:           ai,
		startedAt:    time.Now(),
	}
}

// Routes sets up all HTTP routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/status", APIMiddleware(s.statusHandler))
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	return mux
}

type domainStatus struct {
	Domain string               `json:"domain"`
	Slices []syncer.SliceStatus `json:"slices"`
}

type statusPayload struct {
	UptimeSeconds    int64          `json:"uptime_seconds"`
	Domains          []domainStatus `json:"domains"`
	PermissionsState authz.State    `json:"permissions_state"`
	PettyCashBalance float64        `json:"petty_cash_balance"`
	ActivityEntries  int            `json:"activity_entries"`
	BillingRules     int            `json:"billing_rules"`
	AIEnabled        bool           `json:"ai_enabled"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only GET requests are supported", "")
		return
	}

	payload := statusPayload{
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		PermissionsState: s.engine.State(),
		PettyCashBalance: s.cash.Balance(),
		ActivityEntries:  len(s.log.Entries()),
		BillingRules:     len(s.rules.All()),
		AIEnabled:        s.ai.Enabled(),
	}
	for _, c := range s.coordinators {
		payload.Domains = append(payload.Domains, domainStatus{
			Domain: c.Name(),
			Slices: c.Status(),
		})
	}

	WriteAPISuccess(w, r, payload)
}
