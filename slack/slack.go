package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"plantagent"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	webhookURL string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// PostAssessment formats a production assessment as a compact status message
// and posts it to the channel.
func (c *Client) PostAssessment(ctx context.Context, channel string, pa plantagent.ProductionAssessment) error {
	return c.PostMessage(ctx, channel, FormatAssessment(pa))
}

// FormatAssessment renders a one-glance Slack summary of a verdict.
func FormatAssessment(pa plantagent.ProductionAssessment) string {
	var b strings.Builder

	if pa.CanProduce {
		fmt.Fprintf(&b, ":large_green_circle: *GO* for %d batches of %s\n", pa.Batches, pa.Product)
	} else {
		fmt.Fprintf(&b, ":red_circle: *NO-GO* for %d batches of %s\n", pa.Batches, pa.Product)
	}

	for _, m := range pa.Materials {
		mark := ":x:"
		if m.Sufficient {
			mark = ":white_check_mark:"
		}
		fmt.Fprintf(&b, "%s %s: need %g %s, have %g %s\n", mark, m.Material, m.Required, m.Unit, m.Available, m.Unit)
	}

	if len(pa.MachineStates) > 0 {
		var states []string
		for machine, state := range pa.MachineStates {
			states = append(states, fmt.Sprintf("%s=%s", machine, state))
		}
		// Map order is random; sort for stable output.
		sort.Strings(states)
		fmt.Fprintf(&b, "Machines: %s\n", strings.Join(states, ", "))
	}

	if pa.Reasoning != "" {
		fmt.Fprintf(&b, "> %s", strings.ReplaceAll(strings.TrimRight(pa.Reasoning, "\n"), "\n", "\n> "))
	}

	return b.String()
}
