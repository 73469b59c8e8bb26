// Package classifier scores text toxicity through a remote HTTP model.
//
// The service receives {"text": "..."} and answers {"score": 0.0..1.0}.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type request struct {
	Text string `json:"text"`
}

type response struct {
	Score *float64 `json:"score"`
}

// Client implements ports.ToxicityClassifier.
type Client struct {
	http     *resty.Client
	endpoint string
}

// New creates a classifier client for endpoint.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	c := resty.New().SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c, endpoint: endpoint}
}

// Score returns the toxicity score of text, clamped to [0, 1].
func (c *Client) Score(ctx context.Context, text string) (float64, error) {
	var out response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{Text: text}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return 0, fmt.Errorf("toxicity classifier: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("toxicity classifier: unexpected status %d", resp.StatusCode())
	}
	if out.Score == nil {
		return 0, fmt.Errorf("toxicity classifier: response has no score")
	}
	return min(max(*out.Score, 0), 1), nil
}
