package llm

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModelPricing is the per-million-token price pair for one model family.
type ModelPricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// Cost computes the USD cost of a call, rounded to 4 decimal places.
func (p ModelPricing) Cost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1_000_000*p.InputPerMTok +
		float64(outputTokens)/1_000_000*p.OutputPerMTok
	return Round4(cost)
}

// Round4 rounds a USD amount to 4 decimal places for reporting.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// PricingTable maps a model-name fragment to its pricing. Lookup matches
// by substring so version suffixes don't need their own entries.
type PricingTable map[string]ModelPricing

// DefaultPricing returns the built-in price table.
func DefaultPricing() PricingTable {
	return PricingTable{
		"sonnet": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
		"opus":   {InputPerMTok: 15.0, OutputPerMTok: 75.0},
		"gemini": {InputPerMTok: 1.25, OutputPerMTok: 10.0},
	}
}

// For returns the pricing for a model name. Unknown models price at zero,
// which matches how locally-hosted models are accounted.
func (t PricingTable) For(modelName string) ModelPricing {
	name := strings.ToLower(modelName)
	if p, ok := t[name]; ok {
		return p
	}
	for fragment, p := range t {
		if strings.Contains(name, fragment) {
			return p
		}
	}
	return ModelPricing{}
}

// LoadPricing reads a YAML price table and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadPricing(path string) (PricingTable, error) {
	table := DefaultPricing()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var overrides PricingTable
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	for fragment, p := range overrides {
		table[strings.ToLower(fragment)] = p
	}
	return table, nil
}
