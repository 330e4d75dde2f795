package testutil

import (
	"fmt"
	"time"

	"github.com/HerbHall/omicsview/pkg/models"
)

// NewMolecule returns a BiomarkerMolecule with sensible defaults, suitable
// for test fixtures. Override individual fields with options.
func NewMolecule(opts ...func(*models.BiomarkerMolecule)) models.BiomarkerMolecule {
	m := models.BiomarkerMolecule{
		ID:         1,
		Identifier: "BRCA1",
		Type:       models.MoleculeMRNA,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithIdentifier sets the molecule identifier.
func WithIdentifier(id string) func(*models.BiomarkerMolecule) {
	return func(m *models.BiomarkerMolecule) { m.Identifier = id }
}

// WithMoleculeType sets the molecule type.
func WithMoleculeType(t models.MoleculeType) func(*models.BiomarkerMolecule) {
	return func(m *models.BiomarkerMolecule) { m.Type = t }
}

// Molecules returns n mRNA molecules named GENE001..GENEnnn.
func Molecules(n int) []models.BiomarkerMolecule {
	out := make([]models.BiomarkerMolecule, n)
	for i := range out {
		out[i] = NewMolecule(
			WithIdentifier(fmt.Sprintf("GENE%03d", i+1)),
		)
		out[i].ID = i + 1
	}
	return out
}

// NewInferenceExperiment returns a completed clustering experiment.
func NewInferenceExperiment(opts ...func(*models.InferenceExperiment)) models.InferenceExperiment {
	e := models.InferenceExperiment{
		ID:      1,
		Name:    "test-experiment",
		State:   models.StateCompleted,
		Model:   models.FitnessClustering,
		Created: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithExperimentName sets the experiment name.
func WithExperimentName(name string) func(*models.InferenceExperiment) {
	return func(e *models.InferenceExperiment) { e.Name = name }
}

// WithExperimentState sets the experiment state.
func WithExperimentState(s models.BiomarkerState) func(*models.InferenceExperiment) {
	return func(e *models.InferenceExperiment) { e.State = s }
}
