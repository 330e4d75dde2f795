package server

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/omicsview/internal/tables"
	"github.com/HerbHall/omicsview/pkg/models"
)

// scoped is a row owned by one biomarker. Only the row is serialized.
type scoped[T any] struct {
	Row       T
	Biomarker int
}

func (s scoped[T]) MarshalJSON() ([]byte, error) { return json.Marshal(s.Row) }

func inBiomarker[T any](row scoped[T], value string) bool {
	return strconv.Itoa(row.Biomarker) == value
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

var seedGenes = []string{
	"BRCA1", "BRCA2", "TP53", "EGFR", "KRAS", "PTEN", "MYC", "CDH1", "ERBB2", "PIK3CA",
	"APC", "ATM", "CHEK2", "PALB2", "RAD51", "MLH1", "MSH2", "CDKN2A", "RB1", "VHL",
}

var seedMIRNAs = []string{"MIR21", "MIR155", "MIR10B", "MIR200C", "MIR34A", "MIRLET7A"}

// Fixtures are the rows the stub serves. Every row is derived from its index
// so two stubs with the same size serve identical data.
type Fixtures struct {
	Biomarkers    []models.Biomarker
	Molecules     []scoped[models.BiomarkerMolecule]
	Experiments   []scoped[models.InferenceExperiment]
	TrainedModels []scoped[models.TrainedModel]
}

// NewFixtures builds rows rows per collection. Molecules, experiments and
// trained models belong to the first few biomarkers.
func NewFixtures(rows int) Fixtures {
	if rows < 0 {
		rows = 0
	}
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	nBiomarkers := max(1, min(rows, 5))
	tags := []string{"", "breast", "lung", "colon"}
	types := []models.MoleculeType{models.MoleculeMRNA, models.MoleculeMIRNA, models.MoleculeCNA, models.MoleculeMethylation}

	var f Fixtures
	for i := range rows {
		id := i + 1
		bm := i%nBiomarkers + 1
		state := models.BiomarkerState(i%int(models.StateNoFeaturesFound) + 1)
		created := base.Add(time.Duration(i) * 37 * time.Hour)

		f.Biomarkers = append(f.Biomarkers, models.Biomarker{
			ID:                   id,
			Name:                 fmt.Sprintf("Biomarker %d", id),
			Description:          fmt.Sprintf("Signature %d", id),
			Tag:                  tags[i%len(tags)],
			UploadDate:           created,
			State:                state,
			NumberOfMRNAs:        (id * 7) % 50,
			NumberOfMIRNAs:       (id * 3) % 20,
			NumberOfCNAs:         id % 9,
			NumberOfMethylations: (id * 5) % 13,
		})

		typ := types[i%len(types)]
		f.Molecules = append(f.Molecules, scoped[models.BiomarkerMolecule]{
			Biomarker: bm,
			Row:       models.BiomarkerMolecule{ID: id, Identifier: moleculeName(i, typ), Type: typ},
		})

		f.Experiments = append(f.Experiments, scoped[models.InferenceExperiment]{
			Biomarker: bm,
			Row: models.InferenceExperiment{
				ID:          id,
				Name:        fmt.Sprintf("Inference %03d", id),
				Description: fmt.Sprintf("Cohort %c", 'A'+rune(i%26)),
				State:       state,
				Model:       models.FitnessFunction(i%3 + 1),
				Created:     created,
			},
		})

		tm := models.TrainedModel{
			ID:              id,
			Name:            fmt.Sprintf("Model %03d", id),
			State:           state,
			FitnessFunction: models.FitnessFunction(i%3 + 1),
			Created:         created,
		}
		if state == models.StateCompleted {
			v := float64(id%100) / 100
			tm.BestFitnessValue = &v
		}
		f.TrainedModels = append(f.TrainedModels, scoped[models.TrainedModel]{Biomarker: bm, Row: tm})
	}
	return f
}

func moleculeName(i int, t models.MoleculeType) string {
	switch t {
	case models.MoleculeMIRNA:
		if i/4 < len(seedMIRNAs) {
			return seedMIRNAs[i/4]
		}
		return fmt.Sprintf("MIR%d", 1000+i)
	case models.MoleculeMethylation:
		return fmt.Sprintf("cg%08d", 10000+i*97)
	default:
		if i/2 < len(seedGenes) {
			return seedGenes[i/2]
		}
		return fmt.Sprintf("GENE%04d", i)
	}
}

// Genes returns the mRNA identifiers, the universe of the network endpoint.
func (f Fixtures) Genes() []string {
	var out []string
	for _, m := range f.Molecules {
		if m.Row.Type == models.MoleculeMRNA {
			out = append(out, m.Row.Identifier)
		}
	}
	return out
}

func byString[T any](get func(T) string) Field[T] {
	return Field[T]{Compare: func(a, b T) int { return cmp.Compare(get(a), get(b)) }}
}

func byTime[T any](get func(T) time.Time) Field[T] {
	return Field[T]{Compare: func(a, b T) int { return get(a).Compare(get(b)) }}
}

func byInt[T any](get func(T) int, filterable bool) Field[T] {
	f := Field[T]{Compare: func(a, b T) int { return cmp.Compare(get(a), get(b)) }}
	if filterable {
		f.Match = func(row T, v string) bool { return strconv.Itoa(get(row)) == v }
	}
	return f
}

// Collections wires the fixtures to the endpoints the client tables read.
func (f Fixtures) Collections() []Resource {
	mol := tables.Molecules(0).Config
	inf := tables.InferenceExperiments(0).Config
	bio := tables.Biomarkers().Config
	tms := tables.TrainedModels(0).Config

	type molecule = scoped[models.BiomarkerMolecule]
	type experiment = scoped[models.InferenceExperiment]
	type trained = scoped[models.TrainedModel]

	moleculeType := byString(func(m molecule) string { return string(m.Row.Type) })
	moleculeType.Match = func(m molecule, v string) bool { return string(m.Row.Type) == v }

	biomarkerTag := byString(func(b models.Biomarker) string { return b.Tag })
	biomarkerTag.Match = func(b models.Biomarker, v string) bool { return b.Tag == v }

	bestFitness := Field[trained]{Compare: func(a, b trained) int {
		av, bv := a.Row.BestFitnessValue, b.Row.BestFitnessValue
		switch {
		case av == nil && bv == nil:
			return 0
		case av == nil:
			return -1
		case bv == nil:
			return 1
		}
		return cmp.Compare(*av, *bv)
	}}

	return []Resource{
		NewCollection(Schema[molecule]{
			Path:  mol.Endpoint,
			Topic: mol.Topic,
			Fields: map[string]Field[molecule]{
				"identifier": byString(func(m molecule) string { return m.Row.Identifier }),
				"type":       moleculeType,
			},
			Scopes: map[string]func(molecule, string) bool{tables.ParamBiomarker: inBiomarker[models.BiomarkerMolecule]},
			Search: func(m molecule, q string) bool { return containsFold(m.Row.Identifier, q) },
		}, f.Molecules),
		NewCollection(Schema[experiment]{
			Path:  inf.Endpoint,
			Topic: inf.Topic,
			Fields: map[string]Field[experiment]{
				"name":        byString(func(e experiment) string { return e.Row.Name }),
				"description": byString(func(e experiment) string { return e.Row.Description }),
				"state":       byInt(func(e experiment) int { return int(e.Row.State) }, true),
				"model":       byInt(func(e experiment) int { return int(e.Row.Model) }, true),
				"created":     byTime(func(e experiment) time.Time { return e.Row.Created }),
			},
			Scopes: map[string]func(experiment, string) bool{tables.ParamBiomarker: inBiomarker[models.InferenceExperiment]},
			Search: func(e experiment, q string) bool {
				return containsFold(e.Row.Name, q) || containsFold(e.Row.Description, q)
			},
		}, f.Experiments),
		NewCollection(Schema[models.Biomarker]{
			Path:  bio.Endpoint,
			Topic: bio.Topic,
			Fields: map[string]Field[models.Biomarker]{
				"name":        byString(func(b models.Biomarker) string { return b.Name }),
				"description": byString(func(b models.Biomarker) string { return b.Description }),
				"tag":         biomarkerTag,
				"upload_date": byTime(func(b models.Biomarker) time.Time { return b.UploadDate }),
				"state":       byInt(func(b models.Biomarker) int { return int(b.State) }, true),
			},
			Search: func(b models.Biomarker, q string) bool {
				return containsFold(b.Name, q) || containsFold(b.Description, q) || containsFold(b.Tag, q)
			},
		}, f.Biomarkers),
		NewCollection(Schema[trained]{
			Path:  tms.Endpoint,
			Topic: tms.Topic,
			Fields: map[string]Field[trained]{
				"name":               byString(func(m trained) string { return m.Row.Name }),
				"description":        byString(func(m trained) string { return m.Row.Description }),
				"state":              byInt(func(m trained) int { return int(m.Row.State) }, true),
				"fitness_function":   byInt(func(m trained) int { return int(m.Row.FitnessFunction) }, true),
				"best_fitness_value": bestFitness,
				"created":            byTime(func(m trained) time.Time { return m.Row.Created }),
			},
			Scopes: map[string]func(trained, string) bool{tables.ParamBiomarker: inBiomarker[models.TrainedModel]},
			Search: func(m trained, q string) bool {
				return containsFold(m.Row.Name, q) || containsFold(m.Row.Description, q)
			},
		}, f.TrainedModels),
	}
}
