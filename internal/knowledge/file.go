package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadFile reads a knowledge collection from a YAML or JSON file (a list of flat items).
func ReadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return Decode(data)
}

// Decode parses a YAML or JSON list of items. JSON is accepted as YAML.
func Decode(data []byte) ([]Item, error) {
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode knowledge items: %w", err)
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// WriteFile stores items as JSON when path ends in .json and as YAML otherwise.
func WriteFile(path string, items []Item) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(items, "", "  ")
	} else {
		data, err = yaml.Marshal(items)
	}
	if err != nil {
		return fmt.Errorf("encode knowledge items: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create knowledge dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
