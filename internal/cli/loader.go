package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/botaas/flowengine/pkg/domain"
)

// LoadFlowFile reads a flow document from a .json, .yaml or .yml file.
// YAML is converted to JSON first so both go through the same decoder.
func LoadFlowFile(path string) (*domain.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	return ParseFlow(data, filepath.Ext(path))
}

// ParseFlow decodes a flow document. ext selects YAML (".yaml", ".yml");
// anything else is read as JSON.
func ParseFlow(data []byte, ext string) (*domain.Flow, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml flow: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml flow: %w", err)
		}
		data = converted
	}

	var flow domain.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	return &flow, nil
}
