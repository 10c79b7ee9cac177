// Command eventbridge republishes the memory core's event bus onto NATS
// subjects so external dashboards and tooling can subscribe without
// linking against the Go process directly.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ODSapper/agentmem/internal/config"
	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
	natsclient "github.com/ODSapper/agentmem/internal/nats"
)

func main() {
	configPath := flag.String("config", "", "path to agentmem.yaml (optional)")
	dbPath := flag.String("db", "", "override database_path from config")
	natsURL := flag.String("nats", "", "override nats_url from config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[EVENTBRIDGE] failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}

	log.Println("===============================================")
	log.Println("  agentmem event bridge")
	log.Println("===============================================")
	log.Printf("database:  %s", cfg.DatabasePath)
	log.Printf("nats:      %s", cfg.NATSURL)

	store, err := memory.NewMemoryDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[EVENTBRIDGE] failed to open memory db: %v", err)
	}
	defer store.Close()

	eventStore, err := events.NewSQLiteStore(store.RawDB())
	if err != nil {
		log.Fatalf("[EVENTBRIDGE] failed to open event store: %v", err)
	}
	bus := events.NewBus(eventStore)

	nc, err := natsclient.NewClient(cfg.NATSURL)
	if err != nil {
		log.Fatalf("[EVENTBRIDGE] failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	sub := bus.Subscribe("all", nil)
	go func() {
		for event := range sub {
			if err := nc.PublishEvent(&event); err != nil {
				log.Printf("[EVENTBRIDGE] failed to publish %s: %v", natsclient.EventSubject(&event), err)
			}
		}
	}()

	log.Println("[EVENTBRIDGE] bridging memory events to NATS. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[EVENTBRIDGE] shutting down...")
}
