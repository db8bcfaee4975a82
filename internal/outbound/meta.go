package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

const metaDefaultBaseURL = "https://graph.facebook.com/v18.0"

// MetaAdapter sends WhatsApp messages through the Cloud API: JSON body,
// bearer auth against {base}/{phone_number_id}/messages.
type MetaAdapter struct {
	client *http.Client
}

func NewMetaAdapter() *MetaAdapter {
	return &MetaAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

func (a *MetaAdapter) Platform() model.Platform { return model.PlatformWhatsAppMeta }

func (a *MetaAdapter) ValidateChannelConfig(channel *model.Channel) bool {
	return channel.Credentials["access_token"] != "" && channel.Credentials["phone_number_id"] != ""
}

func (a *MetaAdapter) Send(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) SendResult {
	if !a.ValidateChannelConfig(channel) {
		return errorResult(errTypeInvalidConfig, "whatsapp cloud channel missing access_token/phone_number_id")
	}

	to := model.NormalizePhone(chat.ExternalID)
	reqBody := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": msg.Content},
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}

	base := channel.SendAPIURL
	if base == "" {
		base = metaDefaultBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/messages",
		strings.TrimRight(base, "/"), channel.Credentials["phone_number_id"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+channel.Credentials["access_token"])

	resp, err := a.client.Do(req)
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		json.Unmarshal(body, &apiErr)
		errMsg := apiErr.Error.Message
		if errMsg == "" {
			errMsg = fmt.Sprintf("whatsapp cloud api returned status %d", resp.StatusCode)
		}
		res := errorResult(errTypeAPIError, errMsg)
		if apiErr.Error.Code != 0 {
			res.ErrCode = fmt.Sprintf("%d", apiErr.Error.Code)
		}
		return res
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	json.Unmarshal(body, &parsed)
	externalID := ""
	if len(parsed.Messages) > 0 {
		externalID = parsed.Messages[0].ID
	}

	from := channel.Credentials["phone_number_id"]
	return SendResult{
		Status:         SendSuccess,
		ExternalID:     externalID,
		PlatformStatus: "accepted",
		To:             to,
		From:           from,
	}
}
