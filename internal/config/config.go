// Package config loads the operator-tunable knobs for the memory
// substrate's decay, retrieval, contradiction, and consolidation
// behavior from a YAML file.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DecayConfig controls how often the Decay Engine runs.
type DecayConfig struct {
	TickInterval uint64 `yaml:"tick_interval"`
}

// ConsolidationConfig controls how often co-retrieval pairs are swept for
// promotion to implicit relationships.
type ConsolidationConfig struct {
	TickInterval uint64 `yaml:"tick_interval"`
}

// RetrievalWeightsConfig is the fusion weighting for the Hybrid Retriever.
type RetrievalWeightsConfig struct {
	Semantic float64 `yaml:"semantic"`
	Keyword  float64 `yaml:"keyword"`
	Graph    float64 `yaml:"graph"`
}

// RetrievalConfig controls the Hybrid Retriever's default parameters.
type RetrievalConfig struct {
	MinSimilarity            float64                `yaml:"min_similarity"`
	ExplorationMinSimilarity float64                `yaml:"exploration_min_similarity"`
	Weights                  RetrievalWeightsConfig `yaml:"weights"`
}

// ContradictionThresholds are the confidence cutoffs for the Contradiction
// Detector's suggested action.
type ContradictionThresholds struct {
	Supersede float64 `yaml:"supersede"`
	Flag      float64 `yaml:"flag"`
}

// ContradictionConfig controls the Contradiction Detector.
type ContradictionConfig struct {
	SimilarityThreshold float64                 `yaml:"similarity_threshold"`
	AutoSupersede       bool                    `yaml:"auto_supersede"`
	ConfidenceThresholds ContradictionThresholds `yaml:"confidence_thresholds"`
}

// ImplicitEdgesConfig controls co-retrieval-driven relationship promotion.
type ImplicitEdgesConfig struct {
	Threshold       int     `yaml:"threshold"`
	InitialWeight   float64 `yaml:"initial_weight"`
	StrengthenDelta float64 `yaml:"strengthen_delta"`
}

// VectorConfig controls the in-memory Vector Index.
type VectorConfig struct {
	MinProjectCountForIndexRebuild int `yaml:"min_project_count_for_index_rebuild"`
}

// Config is the full set of operator controls, loaded from a single YAML
// file at startup (see cmd/agentmemd).
type Config struct {
	Decay          DecayConfig          `yaml:"decay"`
	Consolidation  ConsolidationConfig  `yaml:"consolidation"`
	Retrieval      RetrievalConfig      `yaml:"retrieval"`
	Contradiction  ContradictionConfig  `yaml:"contradiction"`
	ImplicitEdges  ImplicitEdgesConfig  `yaml:"implicit_edges"`
	Vector         VectorConfig         `yaml:"vector"`
	EmbeddingKind  string               `yaml:"embedding_kind"`
	DatabasePath   string               `yaml:"database_path"`
	HTTPListenAddr string               `yaml:"http_listen_addr"`
	NATSURL        string               `yaml:"nats_url"`
}

// Default returns the configuration used when no file is supplied,
// matching the values stated throughout the component design.
func Default() *Config {
	return &Config{
		Decay:         DecayConfig{TickInterval: 1},
		Consolidation: ConsolidationConfig{TickInterval: 10},
		Retrieval: RetrievalConfig{
			MinSimilarity:            0.5,
			ExplorationMinSimilarity: 0.3,
			Weights:                  RetrievalWeightsConfig{Semantic: 0.40, Keyword: 0.35, Graph: 0.25},
		},
		Contradiction: ContradictionConfig{
			SimilarityThreshold: 0.85,
			AutoSupersede:       false,
			ConfidenceThresholds: ContradictionThresholds{
				Supersede: 0.9,
				Flag:      0.7,
			},
		},
		ImplicitEdges: ImplicitEdgesConfig{
			Threshold:       3,
			InitialWeight:   0.2,
			StrengthenDelta: 0.05,
		},
		Vector:         VectorConfig{MinProjectCountForIndexRebuild: 0},
		EmbeddingKind:  "mock",
		DatabasePath:   "data/memory.db",
		HTTPListenAddr: ":8090",
		NATSURL:        "nats://127.0.0.1:4222",
	}
}

// Load reads a YAML config file, starting from Default and overlaying
// whatever fields the file sets.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
