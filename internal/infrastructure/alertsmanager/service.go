package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tokenfund/mintd/internal/core/ports"
)

const (
	serviceName = "mintd"

	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"

	maxRetries = 5
	baseDelay  = 100 * time.Millisecond

	lovelaceDecimals = 6
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl     string
	explorerUrl string
	httpClient  *http.Client
}

// NewService posts alerts to an AlertManager instance. explorerURL, when
// set, is used to link transactions in the alert body.
func NewService(alertManagerURL, explorerURL string) ports.Alerts {
	return &service{
		baseUrl:     alertManagerURL,
		explorerUrl: strings.TrimSuffix(explorerURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  severityInfo,
	}

	desc := ""
	annotations := map[string]string{}
	switch topic {
	case ports.TokenMinted:
		annotations["firing_title"] = "🪙 Token Minted"
		m, ok := message.(ports.TokenMintedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatTokenMintedAlert(s.explorerUrl, m)
		labels["token_id"] = fmt.Sprintf("%d", m.TokenID)
		labels["source"] = m.Source
	case ports.RefundSubmitted:
		annotations["firing_title"] = "↩️ Refund Submitted"
		m, ok := message.(ports.RefundSubmittedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatRefundSubmittedAlert(s.explorerUrl, m)
		labels["source"] = m.Source
	case ports.AttemptFailed:
		annotations["firing_title"] = "⚠️ Attempt Failed"
		m, ok := message.(ports.AttemptFailedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatAttemptFailedAlert(m)
		labels["severity"] = severityWarning
		labels["kind"] = m.Kind
		labels["source"] = m.Source
	case ports.SalesCompleted:
		annotations["firing_title"] = "🏁 Sales Completed"
		m, ok := message.(ports.SalesCompletedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatSalesCompletedAlert(m)
	case ports.SalesHalted:
		annotations["firing_title"] = "🛑 Sales Halted"
		m, ok := message.(ports.SalesHaltedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatSalesHaltedAlert(m)
		labels["severity"] = severityCritical
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal([]Alert{alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
		}

		retry, err := s.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, lastErr)
}

// post reports whether a failed delivery is worth retrying: network errors
// and 5xx responses are, 4xx responses are not.
func (s *service) post(ctx context.Context, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseUrl, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, err
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	return resp.StatusCode >= 500, fmt.Errorf(
		"AlertManager responded with status %d", resp.StatusCode,
	)
}

// backoff waits 100ms, 200ms, 400ms... before the given attempt.
func backoff(ctx context.Context, attempt int) error {
	delay := baseDelay * time.Duration(1<<uint(attempt-1))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatTokenMintedAlert(explorerUrl string, data ports.TokenMintedAlert) string {
	lines := make([]string, 0)
	if link := txLink(explorerUrl, data.Source); link != "" {
		lines = append(lines, link)
	}
	lines = append(lines, fmt.Sprintf("\n*Token:* `%d` (`%s`)", data.TokenID, data.AssetName))
	lines = append(lines, fmt.Sprintf("• Minted to: `%s`", data.MintAddress))
	lines = append(lines, fmt.Sprintf("• Payment: `%s`", data.Source))
	lines = append(lines, fmt.Sprintf("• Amount paid: %s", formatADA(data.Payment)))
	return strings.Join(lines, "\n")
}

func formatRefundSubmittedAlert(explorerUrl string, data ports.RefundSubmittedAlert) string {
	lines := make([]string, 0)
	if link := txLink(explorerUrl, data.Source); link != "" {
		lines = append(lines, link)
	}
	lines = append(lines, fmt.Sprintf("\n*Payment:* `%s`", data.Source))
	lines = append(lines, fmt.Sprintf("• Refunded to: `%s`", data.RefundAddress))
	lines = append(lines, fmt.Sprintf("• Amount refunded: %s", formatADA(data.NetAmount)))
	lines = append(lines, fmt.Sprintf("• Network fee: %s", formatADA(data.MinerFee)))
	return strings.Join(lines, "\n")
}

func formatAttemptFailedAlert(data ports.AttemptFailedAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*%s* of `%s` failed while %s", data.Kind, data.Source, data.Stage))
	if data.TokenID > 0 {
		lines = append(lines, fmt.Sprintf("• Token: `%d`", data.TokenID))
	}
	lines = append(lines, fmt.Sprintf("• Reason: %s", data.Reason))
	lines = append(lines, "\nThe payment will not be retried, recover it manually.")
	return strings.Join(lines, "\n")
}

func formatSalesCompletedAlert(data ports.SalesCompletedAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("• Tokens minted: %d", data.Minted))
	lines = append(lines, fmt.Sprintf("• Payments refunded: %d", data.Refunded))
	lines = append(lines, fmt.Sprintf("• Failed attempts: %d", data.Failed))
	lines = append(lines, fmt.Sprintf("• Last output index seen: %d", data.Watermark))
	return strings.Join(lines, "\n")
}

func formatSalesHaltedAlert(data ports.SalesHaltedAlert) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("• Reason: %s", data.Reason))
	lines = append(lines, fmt.Sprintf("• Next token id: %d", data.NextTokenID))
	lines = append(lines, "\nCheck the store and the treasury before restarting.")
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	lines := make([]string, 0)
	for key, value := range data {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, value))
	}
	return strings.Join(lines, "\n")
}

func txLink(explorerUrl, outpoint string) string {
	if explorerUrl == "" {
		return ""
	}
	txid, _, _ := strings.Cut(outpoint, "#")
	return fmt.Sprintf("%s/transaction/%s", explorerUrl, txid)
}

func formatADA(lovelace uint64) string {
	return decimal.New(int64(lovelace), -lovelaceDecimals).String() + " ADA"
}
