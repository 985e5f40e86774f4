package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/storely/gatehouse/internal/models"
)

// SESAlertNotifier emails critical security events to the ops address using
// AWS SES. Delivery is best-effort; the event log never waits on it.
type SESAlertNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewSESAlertNotifier creates a new SES-backed alert notifier
func NewSESAlertNotifier(region, fromAddress, toAddress string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// Notify sends one alert email for a security event
func (n *SESAlertNotifier) Notify(ctx context.Context, event *models.SecurityEvent) error {
	subject := fmt.Sprintf("[gatehouse] %s security event: %s", event.Severity, event.EventType)

	body := fmt.Sprintf(
		"A %s severity security event was recorded at %s.\n\nEvent type: %s\nBlocked: %v\n",
		event.Severity,
		time.Now().UTC().Format(time.RFC3339),
		event.EventType,
		event.Blocked,
	)
	if event.Identifier != nil {
		body += fmt.Sprintf("Identifier: %s\n", *event.Identifier)
	}
	if event.IPAddress != nil {
		body += fmt.Sprintf("IP address: %s\n", *event.IPAddress)
	}
	for key, val := range event.Details {
		body += fmt.Sprintf("%s: %v\n", key, val)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := n.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("security alert sent",
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity))

	return nil
}
