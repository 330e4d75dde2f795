package models

import "time"

// MoleculeType categorizes a biomarker molecule.
type MoleculeType string

const (
	MoleculeMRNA        MoleculeType = "MRNA"
	MoleculeMIRNA       MoleculeType = "MIRNA"
	MoleculeCNA         MoleculeType = "CNA"
	MoleculeMethylation MoleculeType = "METHYLATION"
)

// Label returns the display name used in tables and filter options.
func (t MoleculeType) Label() string {
	switch t {
	case MoleculeMRNA:
		return "mRNA"
	case MoleculeMIRNA:
		return "miRNA"
	case MoleculeCNA:
		return "CNA"
	case MoleculeMethylation:
		return "Methylation"
	default:
		return string(t)
	}
}

// BiomarkerState is the processing state shared by biomarkers, trained
// models and inference experiments.
type BiomarkerState int

const (
	StateCompleted BiomarkerState = iota + 1
	StateFinishedWithError
	StateInProcess
	StateWaitingForQueue
	StateNoSamplesInCommon
	StateStopping
	StateStopped
	StateReachedAttemptsLimit
	StateNoFeaturesFound
)

var stateLabels = map[BiomarkerState]string{
	StateCompleted:            "Completed",
	StateFinishedWithError:    "Finished with error",
	StateInProcess:            "In process",
	StateWaitingForQueue:      "Waiting for queue",
	StateNoSamplesInCommon:    "No samples in common",
	StateStopping:             "Stopping",
	StateStopped:              "Stopped",
	StateReachedAttemptsLimit: "Reached attempts limit",
	StateNoFeaturesFound:      "No features found",
}

func (s BiomarkerState) String() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return "Unknown"
}

// FitnessFunction identifies the model family used by an experiment.
type FitnessFunction int

const (
	FitnessClustering FitnessFunction = iota + 1
	FitnessSVM
	FitnessRF
)

func (f FitnessFunction) String() string {
	switch f {
	case FitnessClustering:
		return "Clustering"
	case FitnessSVM:
		return "SVM"
	case FitnessRF:
		return "Random Forest"
	default:
		return "Unknown"
	}
}

// Biomarker is a named set of molecules owned by a user.
type Biomarker struct {
	ID                   int            `json:"id"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Tag                  string         `json:"tag,omitempty"`
	UploadDate           time.Time      `json:"upload_date"`
	State                BiomarkerState `json:"state"`
	NumberOfMRNAs        int            `json:"number_of_mrnas"`
	NumberOfMIRNAs       int            `json:"number_of_mirnas"`
	NumberOfCNAs         int            `json:"number_of_cnas"`
	NumberOfMethylations int            `json:"number_of_methylations"`
}

// BiomarkerMolecule is a single molecule identifier inside a biomarker.
type BiomarkerMolecule struct {
	ID         int          `json:"id"`
	Identifier string       `json:"identifier"`
	Type       MoleculeType `json:"type"`
}

// InferenceExperiment is an inference run of a trained biomarker model.
type InferenceExperiment struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	State       BiomarkerState  `json:"state"`
	Model       FitnessFunction `json:"model"`
	Created     time.Time       `json:"created"`
}

// TrainedModel is a model trained from a biomarker.
type TrainedModel struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	State            BiomarkerState  `json:"state"`
	FitnessFunction  FitnessFunction `json:"fitness_function"`
	BestFitnessValue *float64        `json:"best_fitness_value,omitempty"`
	Created          time.Time       `json:"created"`
}
