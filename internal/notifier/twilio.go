package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/models"
)

const messagesPath = "/2010-04-01/Accounts/{accountSid}/Messages.json"

// Twilio sends alerts as SMS through the Twilio REST API.
type Twilio struct {
	cfg    config.TwilioConfig
	client *resty.Client
}

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// NewTwilio creates a Twilio notifier. Missing credentials are not an error;
// Send then reports ReasonNotConfigured.
func NewTwilio(cfg config.TwilioConfig) *Twilio {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Twilio{cfg: cfg, client: client}
}

// Configured reports whether all credentials and numbers are present
func (t *Twilio) Configured() bool {
	return t.cfg.AccountSID != "" && t.cfg.AuthToken != "" && t.cfg.From != "" && t.cfg.To != ""
}

// Send posts one SMS
func (t *Twilio) Send(ctx context.Context, bin models.BinName, level int) (result Result) {
	log := logger.WithComponent("notifier").With().Str("bin", string(bin)).Int("level", level).Logger()

	if !t.Configured() {
		log.Warn().Msg("twilio not configured; skipping SMS send")
		return Result{Error: ReasonNotConfigured}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("SMS send panicked")
			result = Result{Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	var (
		msg    twilioMessage
		apiErr twilioError
	)
	resp, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken).
		SetPathParam("accountSid", t.cfg.AccountSID).
		SetFormData(map[string]string{
			"Body": MessageBody(bin, level),
			"From": t.cfg.From,
			"To":   t.cfg.To,
		}).
		SetResult(&msg).
		SetError(&apiErr).
		Post(messagesPath)

	if err != nil {
		log.Error().Err(err).Msg("failed to send SMS")
		return Result{Error: err.Error()}
	}

	if resp.IsError() {
		reason := apiErr.Message
		if reason == "" {
			reason = resp.Status()
		}
		log.Error().
			Int("status_code", resp.StatusCode()).
			Int("twilio_code", apiErr.Code).
			Str("reason", reason).
			Msg("twilio rejected SMS")
		return Result{Error: fmt.Sprintf("twilio error %d: %s", resp.StatusCode(), reason)}
	}

	if msg.SID == "" {
		log.Error().Int("status_code", resp.StatusCode()).Msg("twilio response missing message sid")
		return Result{Error: "twilio response missing message sid"}
	}

	log.Info().Str("sid", msg.SID).Msg("SMS sent")
	return Result{Sent: true, SID: msg.SID}
}

// MessageBody is the SMS text for a full bin
func MessageBody(bin models.BinName, level int) string {
	return fmt.Sprintf("Alert: %s Bin is %d%% full. Please empty it soon.", bin.Title(), level)
}
