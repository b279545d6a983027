package notifier

import (
	"context"

	"binwatch/internal/models"
)

// ReasonNotConfigured is reported when SMS credentials are missing.
const ReasonNotConfigured = "twilio_not_configured"

// Result is the outcome of one send attempt. Error is set only when Sent is false.
type Result struct {
	Sent  bool   `json:"sent"`
	SID   string `json:"sid,omitempty"`
	Error string `json:"error,omitempty"`
}

// Notifier delivers a bin-full alert. Implementations never return errors or
// panic; every failure is reported through Result.
type Notifier interface {
	Send(ctx context.Context, bin models.BinName, level int) Result
}
