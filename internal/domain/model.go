package domain

import "context"

// ModelKind records what a loaded classifier can do. It is decided once when
// the model is loaded and never re-queried per request.
type ModelKind int

const (
	ModelLabelOnly ModelKind = iota
	ModelWithProbability
)

func (k ModelKind) String() string {
	if k == ModelWithProbability {
		return "with_probability"
	}
	return "label_only"
}

// Classifier predicts the drought class (0 or 1) for a feature vector.
type Classifier interface {
	Predict(ctx context.Context, x FeatureVector) (int, error)
}

// ProbabilityClassifier additionally returns P(class = 1).
type ProbabilityClassifier interface {
	Classifier
	PredictProba(ctx context.Context, x FeatureVector) (float64, error)
}

// Model is a loaded classifier tagged with its capability.
// Exactly one of Label and Proba is set, matching Kind.
type Model struct {
	Kind  ModelKind
	Name  string
	Label Classifier
	Proba ProbabilityClassifier
}

// NewLabelOnlyModel wraps a classifier without probability support.
func NewLabelOnlyModel(name string, c Classifier) *Model {
	return &Model{Kind: ModelLabelOnly, Name: name, Label: c}
}

// NewProbabilityModel wraps a classifier with probability support.
func NewProbabilityModel(name string, c ProbabilityClassifier) *Model {
	return &Model{Kind: ModelWithProbability, Name: name, Proba: c}
}
