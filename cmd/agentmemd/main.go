// Command agentmemd is the memory substrate daemon: it opens the SQLite
// store, rebuilds the vector and BM25 indexes, runs the decay/consolidation
// schedules off the tick clock, and serves the read-only query surface.
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

	"github.com/ODSapper/agentmem/internal/config"
	"github.com/ODSapper/agentmem/internal/embedding"
	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
	"github.com/ODSapper/agentmem/internal/queryhttp"
	"github.com/ODSapper/agentmem/internal/tick"
	"github.com/ODSapper/agentmem/internal/worklog"
)

func main() {
	configPath := flag.String("config", "", "path to agentmem.yaml (optional)")
	dbPath := flag.String("db", "", "override database_path from config")
	addr := flag.String("addr", "", "override http_listen_addr from config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *addr != "" {
		cfg.HTTPListenAddr = *addr
	}

	log.Println("===============================================")
	log.Println("  agentmemd — memory substrate daemon")
	log.Println("===============================================")
	log.Printf("database: %s", cfg.DatabasePath)
	log.Printf("listen:   %s", cfg.HTTPListenAddr)
	log.Printf("embedder: %s", cfg.EmbeddingKind)

	store, err := memory.NewMemoryDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to open memory db: %v", err)
	}
	defer store.Close()

	provider, err := embedding.New(embedding.Config{Kind: cfg.EmbeddingKind, Dimensions: 32})
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to construct embedding provider: %v", err)
	}

	vi, err := memory.NewVectorIndex(store, provider.Dimensions())
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to build vector index: %v", err)
	}
	bm25, err := memory.NewBM25Index(store)
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to build bm25 index: %v", err)
	}

	eventStore, err := events.NewSQLiteStore(store.RawDB())
	if err != nil {
		log.Fatalf("[AGENTMEMD] failed to open event store: %v", err)
	}
	bus := events.NewBus(eventStore)
	graph := memory.NewGraph(store, bus)

	detector := memory.NewContradictionDetector(vi, store, nil)
	chunkStore := memory.NewChunkStore(store, vi, bm25, graph, detector, bus)
	decay := memory.NewDecayEngine(store, vi, bm25, graph, bus)
	retriever := memory.NewHybridRetriever(store, vi, bm25, graph, chunkStore, decay, provider)
	planner := memory.NewQueryPlanner(retriever, graph, store)

	clock := tick.NewClock(store, bus)
	engine := worklog.NewEngine(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runScheduler(ctx, store, clock, decay, graph, cfg)

	srv := queryhttp.NewServer(store, planner, engine, bus)
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: srv.Handler()}

	go func() {
		log.Printf("[AGENTMEMD] query surface listening on %s", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[AGENTMEMD] http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[AGENTMEMD] shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[AGENTMEMD] http shutdown error: %v", err)
	}
}

// runScheduler drives every known project's tick boundary checks: decay
// sweeps and implicit-edge consolidation, at a fixed wall-clock poll
// interval (ticks themselves are advanced by the agent loop, out of scope
// here; this loop only reacts to ticks already recorded).
func runScheduler(ctx context.Context, store *memory.SQLiteMemoryDB, clock *tick.Clock, decay *memory.DecayEngine, graph *memory.Graph, cfg *config.Config) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			projectIDs, err := listProjectIDs(store)
			if err != nil {
				log.Printf("[SCHEDULER] failed to list projects: %v", err)
				continue
			}
			for _, projectID := range projectIDs {
				runProjectSchedule(projectID, store, clock, decay, graph, cfg)
			}
		}
	}
}

func runProjectSchedule(projectID string, store *memory.SQLiteMemoryDB, clock *tick.Clock, decay *memory.DecayEngine, graph *memory.Graph, cfg *config.Config) {
	shouldDecay, currentTick, err := clock.ShouldRunDecay(projectID, cfg.Decay.TickInterval)
	if err != nil {
		log.Printf("[SCHEDULER] project %s: failed to check decay schedule: %v", projectID, err)
		return
	}
	if shouldDecay {
		processed, tombstoned, avgStrength, err := decay.Run(projectID, currentTick)
		if err != nil {
			log.Printf("[SCHEDULER] project %s: decay run failed: %v", projectID, err)
		} else {
			log.Printf("[SCHEDULER] project %s: decay processed=%d tombstoned=%d avg_strength=%.3f",
				projectID, processed, tombstoned, avgStrength)
			if err := clock.MarkDecayRun(projectID, currentTick); err != nil {
				log.Printf("[SCHEDULER] project %s: failed to mark decay run: %v", projectID, err)
			}
		}
	}

	shouldConsolidate, tick2, err := clock.ShouldRunConsolidation(projectID, cfg.Consolidation.TickInterval)
	if err != nil {
		log.Printf("[SCHEDULER] project %s: failed to check consolidation schedule: %v", projectID, err)
		return
	}
	if shouldConsolidate {
		promoted, err := graph.ConsolidateImplicit(projectID, cfg.ImplicitEdges.Threshold,
			cfg.ImplicitEdges.InitialWeight, cfg.ImplicitEdges.StrengthenDelta)
		if err != nil {
			log.Printf("[SCHEDULER] project %s: consolidation failed: %v", projectID, err)
		} else {
			log.Printf("[SCHEDULER] project %s: promoted %d implicit edges", projectID, promoted)
			if err := clock.MarkConsolidationRun(projectID, tick2); err != nil {
				log.Printf("[SCHEDULER] project %s: failed to mark consolidation run: %v", projectID, err)
			}
		}
		if err := graph.CleanupCoretrieval(projectID, tick2, 200); err != nil {
			log.Printf("[SCHEDULER] project %s: co-retrieval cleanup failed: %v", projectID, err)
		}
	}
}

func listProjectIDs(store *memory.SQLiteMemoryDB) ([]string, error) {
	rows, err := store.RawDB().Query(`SELECT id FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
