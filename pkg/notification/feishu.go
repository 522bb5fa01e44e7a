package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"sdrwatch/internal/model"
	"sdrwatch/pkg/config"
	"sdrwatch/pkg/logger"
)

// FeishuNotifier sends notifications to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a new Feishu notifier
func NewFeishuNotifier() *FeishuNotifier {
	// Priority: config file > environment variable
	var webhookURL string
	if config.GlobalConfig != nil && config.GlobalConfig.Notification.FeishuWebhookURL != "" {
		webhookURL = config.GlobalConfig.Notification.FeishuWebhookURL
		logger.Info("using Feishu webhook URL from config file")
	} else {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("using Feishu webhook URL from environment variable")
		}
	}

	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured (check config file or FEISHU_WEBHOOK_URL env), cycle notifications disabled")
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a webhook is configured.
func (f *FeishuNotifier) Enabled() bool {
	return f.webhookURL != ""
}

// NotifyCycleComplete sends a scan cycle summary card to Feishu.
// Unconfigured notifiers silently no-op.
func (f *FeishuNotifier) NotifyCycleComplete(ctx context.Context, summary model.CycleSummary) error {
	if f.webhookURL == "" {
		return nil
	}

	message := f.buildCycleMessage(summary)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.Infof("Feishu notification sent for cycle %s", summary.CycleID)
	return nil
}

// buildCycleMessage builds a Feishu message card for a settled cycle
func (f *FeishuNotifier) buildCycleMessage(summary model.CycleSummary) map[string]interface{} {
	offline := summary.Total - summary.OnlineCount
	template := "green"
	if offline > 0 {
		template = "orange"
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"content": "Receiver Scan Cycle Complete",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Cycle**: %s\n**Receivers**: %d\n**Online**: %d\n**Offline**: %d",
							summary.CycleID, summary.Total, summary.OnlineCount, offline),
						"tag": "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("Started %s, finished %s (%.0fs)",
							summary.StartedAt.Format(time.RFC3339),
							summary.CompletedAt.Format(time.RFC3339),
							summary.CompletedAt.Sub(summary.StartedAt).Seconds()),
						"tag": "lark_md",
					},
				},
			},
		},
	}
}
