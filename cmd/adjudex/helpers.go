package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/adjudex/adjudex/pkg/evidence"
)

// loadSnapshot reads an evidence snapshot from a JSON file.
func loadSnapshot(path string) (*evidence.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evidence %s: %w", path, err)
	}
	var snap evidence.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse evidence %s: %w", path, err)
	}
	return &snap, nil
}

// loadInfluences reads per-case influence attributions from a JSON file
// mapping case id to influence list.
func loadInfluences(path string) (map[string][]evidence.Influence, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read influences %s: %w", path, err)
	}
	var m map[string][]evidence.Influence
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse influences %s: %w", path, err)
	}
	return m, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// toPayload converts a value into a ledger payload map via its JSON form.
func toPayload(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
