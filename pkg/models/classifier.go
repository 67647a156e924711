package models

import "context"

// ClassificationRequest carries what the analysis stage knows about a video
// when asking for a content decision. Sample holds the leading bytes of the
// stored object; implementations that only inspect metadata may ignore it.
type ClassificationRequest struct {
	Video  Video
	Sample []byte
}

// Classifier decides whether a video's content is safe or flagged. The only
// valid decisions are ClassificationSafe and ClassificationFlagged; anything
// else is a classifier error and fails the job.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, req ClassificationRequest) (string, error)
}
