package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/khaitqy99/otp-sender/internal/handlers"
	"github.com/khaitqy99/otp-sender/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	otpHandler *handlers.OtpHandler,
	verificationHandler *handlers.VerificationHandler,
	webhookHandler *handlers.WebhookHandler,
) {
	issueRateLimit := middleware.DefaultIssueRateLimit()
	submitRateLimit := middleware.DefaultSubmitRateLimit()

	// OTP records
	router.With(middleware.RateLimitByIP(issueRateLimit)).Post("/otps", otpHandler.Issue)
	router.Get("/otps", otpHandler.ListRecords)
	router.Get("/otps/{id}", otpHandler.GetRecord)
	router.Delete("/otps/{id}", otpHandler.DeleteRecord)

	// Agent code submission and history
	router.With(middleware.RateLimitByIP(submitRateLimit)).Post("/verifications/submit", verificationHandler.SubmitCode)
	router.Get("/verifications", verificationHandler.ListApprovals)
	router.Get("/verifications/history", verificationHandler.History)

	// Approver decisions
	router.Post("/verifications/{id}/approve", verificationHandler.Approve)
	router.Post("/verifications/{id}/reject", verificationHandler.Reject)

	// Email provider delivery callbacks
	router.Post("/webhooks/email", webhookHandler.Receive)
	router.Get("/webhooks/email", webhookHandler.Liveness)
}
