// Command memctl is an administrative CLI over the memory substrate's
// SQLite file: list chunks, force a decay pass, dump persistence scores,
// and print the current orientation.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ODSapper/agentmem/internal/embedding"
	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
)

func main() {
	dbPath := flag.String("db", "data/memory.db", "path to the memory SQLite database")
	action := flag.String("action", "", "list-chunks | force-decay | scores | get-orientation")
	projectID := flag.String("project", "", "project id")
	jsonOutput := flag.Bool("json", false, "output JSON instead of text")

	flag.Parse()

	if *action == "" || *projectID == "" {
		fmt.Fprintf(os.Stderr, "Usage: memctl -db <path> -action <action> -project <id> [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: list-chunks, force-decay, scores, get-orientation\n")
		os.Exit(1)
	}

	store, err := memory.NewMemoryDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch *action {
	case "list-chunks":
		if err := listChunks(store, *projectID, *jsonOutput); err != nil {
			fail(err)
		}
	case "force-decay":
		if err := forceDecay(store, *projectID, *jsonOutput); err != nil {
			fail(err)
		}
	case "scores":
		if err := dumpScores(store, *projectID, *jsonOutput); err != nil {
			fail(err)
		}
	case "get-orientation":
		if err := getOrientation(store, *projectID, *jsonOutput); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func listChunks(store *memory.SQLiteMemoryDB, projectID string, asJSON bool) error {
	rows, err := store.RawDB().Query(`SELECT id, type, status, current_strength, persistence_score
		FROM chunks WHERE project_id = ? ORDER BY persistence_score DESC`, projectID)
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	type row struct {
		ID                string  `json:"id"`
		Type              string  `json:"type"`
		Status            string  `json:"status"`
		CurrentStrength   float64 `json:"current_strength"`
		PersistenceScore  float64 `json:"persistence_score"`
	}
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Type, &r.Status, &r.CurrentStrength, &r.PersistenceScore); err != nil {
			return fmt.Errorf("failed to scan chunk row: %w", err)
		}
		out = append(out, r)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	for _, r := range out {
		fmt.Printf("%s  %-10s %-8s strength=%.3f persistence=%.3f\n", r.ID, r.Type, r.Status, r.CurrentStrength, r.PersistenceScore)
	}
	return nil
}

func forceDecay(store *memory.SQLiteMemoryDB, projectID string, asJSON bool) error {
	vi, err := memory.NewVectorIndex(store, embedding.NewMock(0).Dimensions())
	if err != nil {
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	bm25, err := memory.NewBM25Index(store)
	if err != nil {
		return fmt.Errorf("failed to build bm25 index: %w", err)
	}
	bus := events.NewBus(nil)
	graph := memory.NewGraph(store, bus)
	decay := memory.NewDecayEngine(store, vi, bm25, graph, bus)

	state, err := store.GetAgentState(projectID)
	if err != nil {
		return fmt.Errorf("failed to load agent state: %w", err)
	}

	processed, tombstoned, avgStrength, err := decay.Run(projectID, state.CurrentTick)
	if err != nil {
		return fmt.Errorf("decay run failed: %w", err)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"processed":    processed,
			"tombstoned":   tombstoned,
			"avg_strength": avgStrength,
		})
	}
	fmt.Printf("processed=%d tombstoned=%d avg_strength=%.4f\n", processed, tombstoned, avgStrength)
	return nil
}

func dumpScores(store *memory.SQLiteMemoryDB, projectID string, asJSON bool) error {
	rows, err := store.RawDB().Query(`SELECT id, persistence_score FROM chunks
		WHERE project_id = ? AND status != 'tombstone' ORDER BY persistence_score DESC`, projectID)
	if err != nil {
		return fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return fmt.Errorf("failed to scan score row: %w", err)
		}
		scores[id] = score
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(scores)
	}
	for id, score := range scores {
		fmt.Printf("%s %.4f\n", id, score)
	}
	return nil
}

func getOrientation(store *memory.SQLiteMemoryDB, projectID string, asJSON bool) error {
	o, err := store.GetOrientation(projectID)
	if err == memory.ErrNotFound {
		fmt.Println("no orientation set")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load orientation: %w", err)
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(o)
	}
	fmt.Printf("version=%d phase=%s vision=%q\n", o.Version, o.CurrentPhase, o.VisionSummary)
	return nil
}
