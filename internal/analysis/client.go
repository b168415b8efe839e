// Package analysis hands obligations to an external analysis collaborator.
// Calls are advisory: their results never change obligation state.
package analysis

import (
	"context"

	"go.uber.org/zap"

	"obligation-service/pkg/logger"
)

// Method names an analysis call.
type Method string

const (
	MethodAnalyze        Method = "analyze"
	MethodSuggestActions Method = "suggest_actions"
)

// Request carries what the collaborator needs about one obligation.
type Request struct {
	TenantID     string
	ObligationID string
	Title        string
	Category     string
	Status       string
	Description  string
}

// Client is the analysis collaborator.
type Client interface {
	Analyze(ctx context.Context, req Request) error
	SuggestActions(ctx context.Context, req Request) error
}

// LogClient records requests in the service log. It stands in for a remote
// collaborator.
type LogClient struct{}

// Analyze implements Client.
func (LogClient) Analyze(ctx context.Context, req Request) error {
	logger.FromContext(ctx).Info("Analysis requested",
		zap.String("tenant_id", req.TenantID),
		zap.String("obligation_id", req.ObligationID),
		zap.String("category", req.Category))
	return nil
}

// SuggestActions implements Client.
func (LogClient) SuggestActions(ctx context.Context, req Request) error {
	logger.FromContext(ctx).Info("Action suggestions requested",
		zap.String("tenant_id", req.TenantID),
		zap.String("obligation_id", req.ObligationID),
		zap.String("status", req.Status))
	return nil
}

// Dispatch is the fire-and-forget entry point used by the services.
type Dispatch interface {
	Enqueue(ctx context.Context, method Method, req Request) bool
}

// Nop drops every job.
type Nop struct{}

// Enqueue implements Dispatch.
func (Nop) Enqueue(context.Context, Method, Request) bool { return false }
