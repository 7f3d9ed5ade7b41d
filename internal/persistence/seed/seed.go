// Package seed carries the built-in sample catalog used by the in-memory store and tests.
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"example.com/therapymatch/internal/domain"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Catalog is the decoded sample data set.
type Catalog struct {
	Activities []domain.Activity `yaml:"activities"`
	Patients   []domain.Patient  `yaml:"patients"`
	Chats      []domain.Chat     `yaml:"chats"`
}

// Load decodes the embedded sample catalog. Every call returns fresh slices.
func Load() (Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for callers that cannot recover from a broken build.
func MustLoad() Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a catalog document in the same layout as the embedded one.
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode seed catalog: %w", err)
	}
	for _, a := range c.Activities {
		if err := domain.ValidateActivity(a); err != nil {
			return Catalog{}, fmt.Errorf("seed activity %s: %w", a.ID, err)
		}
	}
	for _, p := range c.Patients {
		if err := domain.ValidatePatient(p); err != nil {
			return Catalog{}, fmt.Errorf("seed patient %s: %w", p.ID, err)
		}
	}
	return c, nil
}
