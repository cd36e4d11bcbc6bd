package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyManifest describes the adapters mounted into the vault at boot.
type StrategyManifest struct {
	Strategies []StrategyEntry `yaml:"strategies"`

	// Optional boot-time limiter configuration.
	Outflow *OutflowEntry `yaml:"outflow,omitempty"`
}

// StrategyEntry is one adapter: its identity, the adapter kind to construct,
// and the raw init data handed to Connect.
type StrategyEntry struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	Init string `yaml:"init,omitempty"`
}

type OutflowEntry struct {
	SlotSizeSeconds int64  `yaml:"slot_size_seconds"`
	Limit           string `yaml:"limit"`
}

// LoadManifest reads and validates the strategy manifest.
func LoadManifest(path string) (*StrategyManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy manifest: %w", err)
	}

	var manifest StrategyManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse strategy manifest: %w", err)
	}

	if len(manifest.Strategies) == 0 {
		return nil, fmt.Errorf("strategy manifest %s lists no strategies", path)
	}
	seen := make(map[string]bool, len(manifest.Strategies))
	for i, entry := range manifest.Strategies {
		if entry.ID == "" || entry.Kind == "" {
			return nil, fmt.Errorf("strategy manifest entry %d: id and kind are required", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("strategy manifest entry %d: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = true
	}
	return &manifest, nil
}
