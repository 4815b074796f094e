// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"clinicsync/internal/activity"
	"clinicsync/internal/aiclient"
	"clinicsync/internal/authz"
	"clinicsync/internal/billing"
	"clinicsync/internal/config"
	"clinicsync/internal/ledger"
	"clinicsync/internal/localstore"
	"clinicsync/internal/logger"
	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
	"clinicsync/internal/session"
	"clinicsync/internal/status"
	"clinicsync/internal/syncer"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	if err := logger.Setup(config.LoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")
	config.LogCurrentEnvironment()

	// Step 3: Load backend configuration
	if err := config.LoadBackendConfig(); err != nil {
		logger.LogFatal("Failed to load backend config: %v", err)
	}

	// Step 4: Open the local store and the ledgers living in it
	store, err := localstore.Open(config.LocalStorePath)
	if err != nil {
		logger.LogFatal("Failed to open local store: %v", err)
	}
	defer store.Close()

	activityLog, err := activity.NewLog(store)
	if err != nil {
		logger.LogFatal("Failed to load activity log: %v", err)
	}
	pettyCash, err := ledger.NewPettyCash(store)
	if err != nil {
		logger.LogFatal("Failed to load petty cash ledger: %v", err)
	}
	billingRules, err := billing.NewRules(store)
	if err != nil {
		logger.LogFatal("Failed to load billing rules: %v", err)
	}

	// Step 5: Remote store clients, one per data domain plus one for the
	// authorization engine. Each client owns its token; coordinators push
	// the session token into their own client and nothing else.
	inventoryClient := restapi.NewClient(config.APIBase(), config.APIKey())
	billingClient := restapi.NewClient(config.APIBase(), config.APIKey())
	reportingClient := restapi.NewClient(config.APIBase(), config.APIKey())
	adminClient := restapi.NewClient(config.APIBase(), config.APIKey())

	// Step 6: Cached collections and their coordinators
	items := syncer.NewCollection[model.InventoryItem]()
	orders := syncer.NewCollection[model.Order]()
	prices := syncer.NewCollection[model.PriceItem]()
	itemsAPI := restapi.NewInventoryAPI(inventoryClient)
	ordersAPI := restapi.NewOrdersAPI(inventoryClient)
	pricesAPI := restapi.NewPricesAPI(inventoryClient)
	inventoryCoord := syncer.NewCoordinator("inventory",
		[]restapi.TokenSetter{inventoryClient},
		syncer.Bind("items", items, itemsAPI.FetchAll),
		syncer.Bind("orders", orders, ordersAPI.FetchAll),
		syncer.Bind("prices", prices, pricesAPI.FetchAll),
	)

	codes := syncer.NewCollection[model.MedicalCode]()
	groups := syncer.NewCollection[model.CodeGroup]()
	templates := syncer.NewCollection[model.FormTemplate]()
	codesAPI := restapi.NewCodesAPI(billingClient)
	groupsAPI := restapi.NewCodeGroupsAPI(billingClient)
	templatesAPI := restapi.NewTemplatesAPI(billingClient)
	billingCoord := syncer.NewCoordinator("billing",
		[]restapi.TokenSetter{billingClient},
		syncer.Bind("codes", codes, codesAPI.FetchAll),
		syncer.Bind("code_groups", groups, groupsAPI.FetchAll),
		syncer.Bind("templates", templates, templatesAPI.FetchAll),
	)

	reports := syncer.NewCollection[model.DailyReport]()
	profiles := syncer.NewCollection[model.User]()
	reportsAPI := restapi.NewReportsAPI(reportingClient)
	profilesAPI := restapi.NewProfilesAPI(reportingClient)
	reportingCoord := syncer.NewCoordinator("reporting",
		[]restapi.TokenSetter{reportingClient},
		syncer.Bind("daily_reports", reports, reportsAPI.FetchAll),
		syncer.Bind("profiles", profiles, profilesAPI.FetchAll),
	)

	coordinators := []*syncer.Coordinator{inventoryCoord, billingCoord, reportingCoord}

	// Step 7: Authorization engine, initialized on first sign-in
	engine := authz.NewEngine(adminClient)

	// Step 8: Session watcher wiring
	source := session.NewHTTPSource(config.SessionEndpoint(), config.APIKey(), config.SessionPollRate)
	watcher := session.NewWatcher(source)
	for _, coord := range coordinators {
		watcher.OnTransition(coord.OnAuthTransition)
	}
	watcher.OnTransition(func(s model.Session) {
		if !s.Present {
			adminClient.ClearAccessToken()
			return
		}
		adminClient.SetAccessToken(s.AccessToken)
		if engine.State() == authz.StateUnseeded {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := engine.Init(ctx); err != nil {
					logger.LogError("Permission initialization failed: %v", err)
				}
			}()
		}
	})

	source.Start()
	defer source.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := watcher.Start(ctx); err != nil {
		logger.LogFatal("Failed to start session watcher: %v", err)
	}
	cancel()
	defer watcher.Stop()

	// Step 9: Background refresh
	syncer.StartDailyRefresh(coordinators...)

	// Step 10: Run the status server
	ai := aiclient.NewClient(config.AIEndpoint(), config.APIKey())
	if !ai.Enabled() {
		logger.LogWarn("AI endpoint not configured, scan/transcribe/refine disabled")
	}
	statusServer := status.NewServer(coordinators, engine, pettyCash, activityLog, billingRules, ai)
	app := &App{
		addr: serverAddress(),
		mux:  statusServer.Routes(),
	}
	app.Run()

	for _, coord := range coordinators {
		coord.Close()
	}
}

// serverAddress builds the server address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5061"
	}
	return host + ":" + port
}

// Run starts the HTTP server
func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting status server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	} else {
		logger.LogInfo("Server shut down gracefully")
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = a.trackConnections(handler)
	handler = logRequests(handler)
	handler = withTimeout(handler, 15*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: log requests
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		h.ServeHTTP(w, r)

		logger.LogInfo("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}
