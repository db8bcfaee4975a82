package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

const (
	twilioDefaultBaseURL = "https://api.twilio.com/2010-04-01"
	// Twilio's shared WhatsApp sandbox number, used when the channel has no
	// from_number configured.
	twilioSandboxNumber = "+14155238886"
)

// TwilioAdapter sends WhatsApp messages through Twilio's legacy messaging
// API: form-encoded body, basic auth, 201 on success.
type TwilioAdapter struct {
	client *http.Client
}

func NewTwilioAdapter() *TwilioAdapter {
	return &TwilioAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

func (a *TwilioAdapter) Platform() model.Platform { return model.PlatformWhatsAppTwilio }

func (a *TwilioAdapter) ValidateChannelConfig(channel *model.Channel) bool {
	sid := channel.Credentials["account_sid"]
	token := channel.Credentials["auth_token"]
	return strings.HasPrefix(sid, "AC") && token != ""
}

func (a *TwilioAdapter) Send(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) SendResult {
	if !a.ValidateChannelConfig(channel) {
		return errorResult(errTypeInvalidConfig, "twilio channel missing account_sid/auth_token")
	}

	sid := channel.Credentials["account_sid"]
	from := channel.Credentials["from_number"]
	if from == "" {
		from = twilioSandboxNumber
	}
	to := "+" + model.NormalizePhone(chat.ExternalID)

	form := url.Values{}
	form.Set("To", "whatsapp:"+to)
	form.Set("From", "whatsapp:"+from)
	form.Set("Body", msg.Content)

	base := channel.SendAPIURL
	if base == "" {
		base = twilioDefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(base, "/"), sid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, channel.Credentials["auth_token"])

	resp, err := a.client.Do(req)
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		Sid     string `json:"sid"`
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusCreated {
		errMsg := parsed.Message
		if errMsg == "" {
			errMsg = fmt.Sprintf("twilio returned status %d", resp.StatusCode)
		}
		res := errorResult(errTypeAPIError, errMsg)
		if parsed.Code != 0 {
			res.ErrCode = fmt.Sprintf("%d", parsed.Code)
		}
		return res
	}

	return SendResult{
		Status:         SendSuccess,
		ExternalID:     parsed.Sid,
		PlatformStatus: parsed.Status,
		To:             to,
		From:           from,
	}
}
