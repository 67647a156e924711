// Package remote implements a classifier backed by an external analysis
// service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/pkg/models"
)

// Sentinel errors for classifier failures. They are defined here, in a leaf
// package, so that the parent classify package can re-export them without an
// import cycle.
var (
	ErrUnavailable     = errors.New("classifier unavailable")
	ErrInvalidDecision = errors.New("classifier returned invalid decision")
)

// Classifier implements models.Classifier by POSTing to an analysis endpoint.
type Classifier struct {
	baseURL string
	client  *http.Client
}

func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{
		baseURL: cfg.RemoteURL,
		client:  &http.Client{Timeout: cfg.RemoteTimeout},
	}
}

func (c *Classifier) Name() string { return "remote" }

type classifyRequest struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	MediaType string `json:"media_type"`
	ByteSize  int64  `json:"byte_size"`
	Sample    string `json:"sample,omitempty"` // base64 leading bytes
}

type classifyResponse struct {
	Classification string `json:"classification"`
}

func (c *Classifier) Classify(ctx context.Context, req models.ClassificationRequest) (string, error) {
	payload := classifyRequest{
		VideoID:   req.Video.ID.String(),
		Title:     req.Video.Title,
		MediaType: req.Video.MediaType,
		ByteSize:  req.Video.ByteSize,
	}
	if len(req.Sample) > 0 {
		payload.Sample = base64.StdEncoding.EncodeToString(req.Sample)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}

	switch decoded.Classification {
	case models.ClassificationSafe, models.ClassificationFlagged:
		return decoded.Classification, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, decoded.Classification)
	}
}

var _ models.Classifier = (*Classifier)(nil)
