package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// GenericAdapter posts the hub's neutral JSON format to the channel's
// configured send API URL.
type GenericAdapter struct {
	client *http.Client
}

func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

func (a *GenericAdapter) Platform() model.Platform { return model.PlatformGeneric }

func (a *GenericAdapter) ValidateChannelConfig(channel *model.Channel) bool {
	return channel.SendAPIURL != ""
}

func (a *GenericAdapter) Send(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) SendResult {
	if !a.ValidateChannelConfig(channel) {
		return errorResult(errTypeInvalidConfig, "generic channel has no send_api_url")
	}

	reqBody := map[string]any{
		"chat_id":     chat.ID.String(),
		"external_id": chat.ExternalID,
		"content":     msg.Content,
		"sender_type": string(msg.SenderType),
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.SendAPIURL, bytes.NewReader(encoded))
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errorResult(errTypeRequestFailed, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResult(errTypeAPIError,
			fmt.Sprintf("send api returned status %d", resp.StatusCode))
	}

	var parsed struct {
		MessageID string `json:"message_id"`
	}
	json.Unmarshal(body, &parsed)
	return SendResult{
		Status:         SendSuccess,
		ExternalID:     parsed.MessageID,
		PlatformStatus: "accepted",
		To:             chat.ExternalID,
	}
}
