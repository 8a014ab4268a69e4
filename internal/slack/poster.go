package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// AlertKind says why staff attention is needed.
type AlertKind string

const (
	AlertClassificationPending AlertKind = "classification_pending"
	AlertReviewFailed          AlertKind = "review_failed"
)

// Alert is one message to the review channel.
type Alert struct {
	Kind           AlertKind
	ConsultationID string
	CustomerName   string
	Detail         string
	Items          []string
}

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostAlert posts a to the review channel.
func (p *Poster) PostAlert(ctx context.Context, a Alert) error {
	text := formatAlert(a)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "consultation `" + a.ConsultationID + "`",
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted alert to slack", "ts", slackResp.TS, "kind", a.Kind, "consultation_id", a.ConsultationID)
	return nil
}

func formatAlert(a Alert) string {
	var sb strings.Builder

	customer := a.CustomerName
	if customer == "" {
		customer = "(no name)"
	}

	switch a.Kind {
	case AlertClassificationPending:
		fmt.Fprintf(&sb, ":warning: *Manual classification needed* for %s\n", customer)
		if a.Detail != "" {
			fmt.Fprintf(&sb, "*Reason:* %s\n", a.Detail)
		}
		sb.WriteString("Pick plastic_surgery or dermatology and resume the consultation.")
	case AlertReviewFailed:
		fmt.Fprintf(&sb, ":memo: *Report needs a human check* for %s\n", customer)
		if a.Detail != "" {
			fmt.Fprintf(&sb, "%s\n", a.Detail)
		}
		if len(a.Items) > 0 {
			fmt.Fprintf(&sb, "*Open issues: %d*\n", len(a.Items))
			for i, issue := range a.Items {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, issue)
			}
		}
	default:
		fmt.Fprintf(&sb, "*%s* for %s\n%s", a.Kind, customer, a.Detail)
	}

	return strings.TrimRight(sb.String(), "\n")
}
