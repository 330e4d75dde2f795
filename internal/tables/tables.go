// Package tables declares the collections the client can browse and renders
// their view state as aligned text.
package tables

import (
	"fmt"
	"strconv"
	"time"

	"github.com/HerbHall/omicsview/internal/collection"
	"github.com/HerbHall/omicsview/internal/config"
	"github.com/HerbHall/omicsview/internal/push"
	"github.com/HerbHall/omicsview/internal/query"
	"github.com/HerbHall/omicsview/pkg/models"
)

// Table names accepted by the CLI and the config file.
const (
	NameMolecules     = "molecules"
	NameInference     = "inference"
	NameBiomarkers    = "biomarkers"
	NameTrainedModels = "trained-models"
)

// Names lists every table in display order.
var Names = []string{NameMolecules, NameInference, NameBiomarkers, NameTrainedModels}

// ParamBiomarker scopes a table to one biomarker.
const ParamBiomarker = "biomarker_pk"

// Align is the horizontal alignment of a column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

// Header describes one column. An empty SortKey makes the column unsortable.
type Header struct {
	Name    string
	SortKey string
	Width   int
	Align   Align
}

// Control is an extra action offered next to the table.
type Control struct {
	Label   string
	Command string
}

// Definition binds a collection config to the way its rows are shown.
type Definition[T any] struct {
	Name     string
	Title    string
	Headers  []Header
	Config   collection.Config
	Row      func(T) []string
	Controls []Control
	// SearchHint describes what the search box matches.
	SearchHint string
}

// Sortable reports whether field is the sort key of a column.
func (d Definition[T]) Sortable(field string) bool {
	for _, h := range d.Headers {
		if h.SortKey != "" && h.SortKey == field {
			return true
		}
	}
	return false
}

// Configure applies config file overrides. Values left unset keep the
// definition's own.
func (d Definition[T]) Configure(view config.ViewConfig, tc config.TableConfig) Definition[T] {
	if tc.Endpoint != "" {
		d.Config.Endpoint = tc.Endpoint
	}
	if tc.Topic != "" {
		d.Config.Topic = tc.Topic
	}
	switch {
	case tc.PageSize > 0:
		d.Config.PageSize = tc.PageSize
	case d.Config.PageSize == 0 && view.PageSize > 0:
		d.Config.PageSize = view.PageSize
	}
	if view.QuietInterval > 0 {
		d.Config.QuietInterval = view.QuietInterval
	}
	return d
}

func biomarkerParams(biomarkerID int) map[string]string {
	if biomarkerID <= 0 {
		return nil
	}
	return map[string]string{ParamBiomarker: strconv.Itoa(biomarkerID)}
}

func stateChoices() []collection.Choice {
	out := make([]collection.Choice, 0, int(models.StateNoFeaturesFound))
	for s := models.StateCompleted; s <= models.StateNoFeaturesFound; s++ {
		out = append(out, collection.Choice{Label: s.String(), Value: strconv.Itoa(int(s))})
	}
	return out
}

func fitnessChoices() []collection.Choice {
	out := make([]collection.Choice, 0, 3)
	for f := models.FitnessClustering; f <= models.FitnessRF; f++ {
		out = append(out, collection.Choice{Label: f.String(), Value: strconv.Itoa(int(f))})
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("01/02/2006")
}

// Molecules lists the molecules of one biomarker.
func Molecules(biomarkerID int) Definition[models.BiomarkerMolecule] {
	types := []models.MoleculeType{models.MoleculeMRNA, models.MoleculeMIRNA, models.MoleculeCNA, models.MoleculeMethylation}
	choices := make([]collection.Choice, 0, len(types))
	for _, t := range types {
		choices = append(choices, collection.Choice{Label: t.Label(), Value: string(t)})
	}
	return Definition[models.BiomarkerMolecule]{
		Name:  NameMolecules,
		Title: "Molecules",
		Headers: []Header{
			{Name: "Identifier", SortKey: "identifier", Width: 3},
			{Name: "Type", SortKey: "type", Width: 2},
		},
		Config: collection.Config{
			Name:        NameMolecules,
			Endpoint:    "/biomarkers/biomarker-molecules",
			PageSize:    25,
			Sort:        query.Sort{Field: "identifier", Ascending: true},
			Filters:     []collection.FilterDef{{Label: "Type", Key: "type", Choices: choices}},
			ExtraParams: biomarkerParams(biomarkerID),
		},
		Row: func(m models.BiomarkerMolecule) []string {
			return []string{m.Identifier, m.Type.Label()}
		},
		SearchHint: "Search by identifier",
	}
}

// InferenceExperiments lists the inference experiments of one biomarker.
func InferenceExperiments(biomarkerID int) Definition[models.InferenceExperiment] {
	return Definition[models.InferenceExperiment]{
		Name:  NameInference,
		Title: "Inference experiments",
		Headers: []Header{
			{Name: "Name", SortKey: "name", Width: 3},
			{Name: "Description", SortKey: "description", Width: 4},
			{Name: "State", SortKey: "state", Align: AlignCenter},
			{Name: "Model", SortKey: "model", Width: 1},
			{Name: "Date", SortKey: "created"},
		},
		Config: collection.Config{
			Name:        NameInference,
			Endpoint:    "/inference/biomarker-inference-experiments",
			Topic:       push.TopicPredictionExperiment,
			Sort:        query.Sort{Field: "created", Ascending: false},
			ExtraParams: biomarkerParams(biomarkerID),
		},
		Row: func(e models.InferenceExperiment) []string {
			return []string{e.Name, e.Description, e.State.String(), e.Model.String(), formatDate(e.Created)}
		},
		Controls:   []Control{{Label: "New inference experiment", Command: "new"}},
		SearchHint: "Search by name or description",
	}
}

// Biomarkers lists the user's biomarkers.
func Biomarkers() Definition[models.Biomarker] {
	return Definition[models.Biomarker]{
		Name:  NameBiomarkers,
		Title: "Biomarkers",
		Headers: []Header{
			{Name: "Name", SortKey: "name", Width: 3},
			{Name: "Description", SortKey: "description", Width: 4},
			{Name: "Tag", SortKey: "tag"},
			{Name: "Date", SortKey: "upload_date"},
			{Name: "State", SortKey: "state", Align: AlignCenter},
			{Name: "# mRNAs", Align: AlignRight},
			{Name: "# miRNAs", Align: AlignRight},
			{Name: "# CNAs", Align: AlignRight},
			{Name: "# Methylations", Align: AlignRight},
		},
		Config: collection.Config{
			Name:     NameBiomarkers,
			Endpoint: "/biomarkers/api",
			Topic:    push.TopicBiomarkers,
			Sort:     query.Sort{Field: "upload_date", Ascending: false},
			Filters:  []collection.FilterDef{{Label: "Tag", Key: "tag"}},
		},
		Row: func(b models.Biomarker) []string {
			return []string{
				b.Name, b.Description, b.Tag, formatDate(b.UploadDate), b.State.String(),
				strconv.Itoa(b.NumberOfMRNAs), strconv.Itoa(b.NumberOfMIRNAs),
				strconv.Itoa(b.NumberOfCNAs), strconv.Itoa(b.NumberOfMethylations),
			}
		},
		SearchHint: "Search by name, description or tag",
	}
}

// TrainedModels lists the models trained from one biomarker.
func TrainedModels(biomarkerID int) Definition[models.TrainedModel] {
	return Definition[models.TrainedModel]{
		Name:  NameTrainedModels,
		Title: "Trained models",
		Headers: []Header{
			{Name: "Name", SortKey: "name", Width: 3},
			{Name: "Description", SortKey: "description", Width: 4},
			{Name: "State", SortKey: "state", Align: AlignCenter},
			{Name: "Model", SortKey: "fitness_function"},
			{Name: "Best fitness", SortKey: "best_fitness_value", Align: AlignRight},
			{Name: "Date", SortKey: "created"},
		},
		Config: collection.Config{
			Name:     NameTrainedModels,
			Endpoint: "/biomarkers/biomarker-trained-models",
			Topic:    push.TopicTrainedModels,
			Sort:     query.Sort{Field: "created", Ascending: false},
			Filters: []collection.FilterDef{
				{Label: "State", Key: "state", Choices: stateChoices()},
				{Label: "Model", Key: "fitness_function", Choices: fitnessChoices()},
			},
			ExtraParams: biomarkerParams(biomarkerID),
		},
		Row: func(m models.TrainedModel) []string {
			best := "-"
			if m.BestFitnessValue != nil {
				best = fmt.Sprintf("%.3f", *m.BestFitnessValue)
			}
			return []string{m.Name, m.Description, m.State.String(), m.FitnessFunction.String(), best, formatDate(m.Created)}
		},
		SearchHint: "Search by name or description",
	}
}
