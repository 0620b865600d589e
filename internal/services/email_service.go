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

	pkglogger "github.com/khaitqy99/otp-sender/pkg/logger"
)

// EmailSender is the delivery transport collaborator. It dispatches the
// passcode email and returns the provider's message id, used later to match
// asynchronous delivery-status events back to the record.
type EmailSender interface {
	SendOtpEmail(ctx context.Context, email, code string, customerLabel *string, expiresAt time.Time) (string, error)
}

// AWSSESEmailSender sends OTP emails using AWS SES
type AWSSESEmailSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailSender creates a new AWS SES email sender
func NewAWSSESEmailSender(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendOtpEmail sends the one-time passcode to the customer and returns the
// SES message id
func (s *AWSSESEmailSender) SendOtpEmail(ctx context.Context, email, code string, customerLabel *string, expiresAt time.Time) (string, error) {
	greeting := "Hello,"
	if customerLabel != nil && *customerLabel != "" {
		greeting = fmt.Sprintf("Hello %s,", *customerLabel)
	}

	validity := time.Until(expiresAt).Round(time.Minute)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .code { background-color: #ffffff; border: 2px solid #0066cc; border-radius: 8px; padding: 20px; text-align: center; }
        .code span { font-family: monospace; font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #0066cc; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Verification Code</h1>
        </div>
        <div class="content">
            <p>%s</p>
            <p>A customer service agent has requested a verification code for your account. Read this code back to the agent on the phone:</p>
            <div class="code"><span>%s</span></div>
            <div class="warning">
                <strong>Security Notice:</strong> This code expires in %s. Our staff will never ask for this code outside of the call you initiated.
            </div>
            <p><strong>Didn't request this code?</strong><br>
            If you are not on a call with our customer service, you can safely ignore this email.</p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, greeting, code, validity)

	textBody := fmt.Sprintf(`Your Verification Code

%s

A customer service agent has requested a verification code for your account. Read this code back to the agent on the phone:

    %s

Security Notice: This code expires in %s. Our staff will never ask for this code outside of the call you initiated.

Didn't request this code?
If you are not on a call with our customer service, you can safely ignore this email.

This is an automated message. Please do not reply to this email.
`, greeting, code, validity)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send otp email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("otp email dispatched",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return *result.MessageId, nil
}
