// Package twilio is the telephony glue: outbound call placement over
// the Twilio REST API and the HTTP webhooks Twilio calls back into.
package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallPlacer dials the agent under test and points the call at our
// webhook, which in turn opens the media stream.
type CallPlacer struct {
	client     *twilio.RestClient
	from       string
	to         string
	webhookURL string
	logger     *slog.Logger
}

// NewCallPlacer creates a placer. webhookURL is the public base URL;
// /voice and /status are appended per call.
func NewCallPlacer(accountSID, authToken, from, to, webhookURL string, logger *slog.Logger) *CallPlacer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallPlacer{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:       from,
		to:         to,
		webhookURL: strings.TrimRight(webhookURL, "/"),
		logger:     logger,
	}
}

// PlaceCall initiates the outbound call and returns the call SID.
func (p *CallPlacer) PlaceCall(ctx context.Context) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(p.to)
	params.SetFrom(p.from)
	params.SetUrl(p.webhookURL + "/voice")
	params.SetStatusCallback(p.webhookURL + "/status")
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetTimeout(30)

	resp, err := p.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	p.logger.Info("call initiated", slog.String("callSid", sid), slog.String("to", p.to))
	return sid, nil
}
