package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/interpolate"
	"github.com/botaas/flowengine/pkg/ports"
)

type webhookExecutor struct {
	client ports.WebhookClient
	logger *slog.Logger
}

func (x *webhookExecutor) Execute(ctx context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	d := node.Data.(domain.WebhookData)
	vars := ec.Session.Variables

	req := ports.WebhookRequest{
		Method:  d.Method,
		URL:     interpolate.String(d.URL, vars),
		Headers: interpolate.Map(d.Headers, vars),
		Body:    interpolate.Value(d.Body, vars),
	}

	out := Outcome{OutputLabel: domain.LabelSuccess}
	extracted, err := x.call(ctx, d, req)
	if err != nil {
		out.OutputLabel = domain.LabelError
		out.effect(node.ID, domain.EffectWebhook, err, "")
		x.logger.Warn("webhook failed", "node_id", node.ID, "url", req.URL, "error", err)
		return out, nil
	}

	for name, value := range extracted {
		vars[name] = value
	}
	out.effect(node.ID, domain.EffectWebhook, nil, fmt.Sprintf("%s %s", req.Method, req.URL))
	return out, nil
}

func (x *webhookExecutor) call(ctx context.Context, d domain.WebhookData, req ports.WebhookRequest) (map[string]string, error) {
	if x.client == nil {
		return nil, errors.New("webhook client not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	resp, err := x.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(d.ResponseVariables) == 0 {
		return nil, nil
	}

	parsed, err := gabs.ParseJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	return Extract(parsed, d.ResponseVariables), nil
}

// Extract resolves each variable's dotted path ("data.items.0.id", an
// optional "$." prefix allowed) against the parsed response. Paths that do
// not resolve are skipped.
func Extract(doc *gabs.Container, paths map[string]string) map[string]string {
	out := make(map[string]string, len(paths))
	for name, path := range paths {
		path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
		var c *gabs.Container
		if path == "" {
			c = doc
		} else {
			c = doc.Path(path)
		}
		if c == nil || c.Data() == nil {
			continue
		}
		out[name] = domain.Stringify(c.Data())
	}
	return out
}
