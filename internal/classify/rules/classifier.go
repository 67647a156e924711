// Package rules implements a deterministic, metadata-driven classifier.
// It flags a video when its title or description matches a configured term;
// everything else is safe. The same submission always classifies the same way.
package rules

import (
	"context"
	"strings"

	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/pkg/models"
)

// Classifier implements models.Classifier with a term denylist.
type Classifier struct {
	terms []string
}

func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	terms := make([]string, 0, len(cfg.FlaggedTerms))
	for _, t := range cfg.FlaggedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Classifier{terms: terms}
}

func (c *Classifier) Name() string { return "rules" }

func (c *Classifier) Classify(_ context.Context, req models.ClassificationRequest) (string, error) {
	haystack := strings.ToLower(req.Video.Title)
	if req.Video.Description != nil {
		haystack += " " + strings.ToLower(*req.Video.Description)
	}

	for _, term := range c.terms {
		if strings.Contains(haystack, term) {
			return models.ClassificationFlagged, nil
		}
	}
	return models.ClassificationSafe, nil
}

var _ models.Classifier = (*Classifier)(nil)
