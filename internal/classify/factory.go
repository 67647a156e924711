// Package classify selects and constructs the content classifier used by the
// analysis stage.
package classify

import (
	"fmt"

	"github.com/vidhive/vidhive/internal/classify/mock"
	"github.com/vidhive/vidhive/internal/classify/remote"
	"github.com/vidhive/vidhive/internal/classify/rules"
	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/pkg/models"
)

// NewClassifier constructs the appropriate classifier based on config.
// Called once at server startup.
func NewClassifier(cfg config.ClassifierConfig) (models.Classifier, error) {
	switch cfg.Provider {
	case "rules":
		return rules.NewClassifier(cfg), nil
	case "remote":
		return remote.NewClassifier(cfg), nil
	case "mock":
		return mock.NewClassifier(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q: must be one of rules, remote, mock", cfg.Provider)
	}
}
