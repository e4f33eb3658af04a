/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty ledger server. Handles
  configuration, dependency injection, the queue consumers and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load YAML config
  2. Initialize SQLite store
  3. Wire brokers, services and consumers
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file path (optional; defaults apply without it)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the queue consumers and wait for in-flight messages
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loyalty.db"

  # Run with a config file
  ./server -config="./loyalty.yaml"

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration schema
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/loyalty-engine/api"
	"github.com/meridian/loyalty-engine/audit"
	"github.com/meridian/loyalty-engine/config"
	"github.com/meridian/loyalty-engine/ledger"
	"github.com/meridian/loyalty-engine/offers"
	"github.com/meridian/loyalty-engine/pending"
	"github.com/meridian/loyalty-engine/projection"
	"github.com/meridian/loyalty-engine/queue"
	"github.com/meridian/loyalty-engine/store/sqlite"
	"github.com/meridian/loyalty-engine/worker"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Brokers: one per topic, each partitioned by ordering key
	dedupWindow := time.Duration(cfg.Queue.DedupWindowSeconds) * time.Second
	transactions := queue.NewBroker(dedupWindow)
	partnerEvents := queue.NewBroker(dedupWindow)

	// Services
	auditSink := audit.LogSink{}
	enqueuer := ledger.NewEnqueuer(transactions, cfg.Dedup())
	ledgerSvc := ledger.NewService(store, store)

	reviewLimit, err := cfg.Review.Limit()
	if err != nil {
		log.Fatalf("Failed to parse review limit: %v", err)
	}
	pendingSvc := &pending.Service{
		Store:     store,
		Members:   store,
		Committer: ledgerSvc,
		Producer:  enqueuer,
		Policy:    pending.AmountThreshold{Limit: reviewLimit},
		Audit:     auditSink,
	}
	offersEngine := &offers.Engine{
		Store:    store,
		Members:  store,
		Producer: enqueuer,
		Audit:    auditSink,
	}
	projectionSvc := &projection.Service{
		Entries: store,
		Tiers:   projection.NewThresholdTable(cfg.Tiers),
	}
	workerSvc := &worker.Service{
		Ledger:            ledgerSvc,
		Pending:           pendingSvc,
		Offers:            offersEngine,
		PartnerOfferNames: cfg.PartnerOfferNames,
	}

	// Consumers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	txConsumer := &queue.Consumer{
		Broker:        transactions,
		Workers:       cfg.Queue.Workers,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
		Handler:       workerSvc.HandleTransactions,
		DeadLetter:    workerSvc.HandleTransactionsDeadLetter,
		RetryDelay:    time.Second,
	}
	txConsumer.Start(ctx)

	partnerConsumer := &queue.Consumer{
		Broker:        partnerEvents,
		Workers:       cfg.Queue.Workers,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
		Handler:       workerSvc.HandlePartnerEvent,
		RetryDelay:    time.Second,
	}
	partnerConsumer.Start(ctx)

	// HTTP
	handler := api.NewHandler(pendingSvc, offersEngine, projectionSvc, store)
	handler.Partner = partnerEvents
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Stop consumers after the HTTP surface has drained so enqueues
	// accepted during shutdown still get processed.
	cancel()
	txConsumer.Wait()
	partnerConsumer.Wait()

	log.Println("Server stopped")
}
