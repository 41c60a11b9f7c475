package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"fieldtask/internal/domain"
)

// WebhookNotifier posts sweep summaries to an operations webhook. Delivery
// is best effort; the caller decides whether a failed delivery matters.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// NotifySweepFailures delivers the full report so the receiving side can
// alert on individual templates, not just counts.
func (n *WebhookNotifier) NotifySweepFailures(ctx context.Context, report *domain.SweepReport) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(report).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	n.logger.Debug("sweep webhook delivered",
		zap.Int("failed", report.Failed),
		zap.Int("status", resp.StatusCode()))
	return nil
}
