package mock

import (
	"context"

	"github.com/vidhive/vidhive/pkg/models"
)

// MockClassifier satisfies models.Classifier for testing.
type MockClassifier struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, req models.ClassificationRequest) (string, error)
}

func (m *MockClassifier) Name() string { return m.Name_ }

func (m *MockClassifier) Classify(ctx context.Context, req models.ClassificationRequest) (string, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	return models.ClassificationSafe, nil
}

// NewClassifier returns a MockClassifier that marks everything safe.
func NewClassifier() *MockClassifier {
	return &MockClassifier{Name_: "mock"}
}

// NewFailingClassifier returns a MockClassifier that always returns the given error.
func NewFailingClassifier(err error) *MockClassifier {
	return &MockClassifier{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ models.ClassificationRequest) (string, error) {
			return "", err
		},
	}
}

// NewBlockingClassifier returns a MockClassifier that blocks until context is cancelled.
func NewBlockingClassifier() *MockClassifier {
	return &MockClassifier{
		Name_: "mock-blocking",
		ClassifyFunc: func(ctx context.Context, _ models.ClassificationRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Compile-time check that MockClassifier implements Classifier.
var _ models.Classifier = (*MockClassifier)(nil)
