package outbound

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/agenthub/internal/model"
)

// TelegramAdapter sends messages through the Bot API via telego. The chat's
// external id is the numeric Telegram chat id.
type TelegramAdapter struct {
	client *http.Client
}

func NewTelegramAdapter() *TelegramAdapter {
	return &TelegramAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

func (a *TelegramAdapter) Platform() model.Platform { return model.PlatformTelegram }

func (a *TelegramAdapter) ValidateChannelConfig(channel *model.Channel) bool {
	return channel.Credentials["bot_token"] != ""
}

func (a *TelegramAdapter) Send(ctx context.Context, channel *model.Channel, chat *model.Chat, msg *model.Message) SendResult {
	if !a.ValidateChannelConfig(channel) {
		return errorResult(errTypeInvalidConfig, "telegram channel missing bot_token")
	}

	chatID, err := strconv.ParseInt(chat.ExternalID, 10, 64)
	if err != nil {
		return errorResult(errTypeInvalidConfig, "chat external id is not a telegram chat id: "+chat.ExternalID)
	}

	opts := []telego.BotOption{telego.WithHTTPClient(a.client)}
	if channel.SendAPIURL != "" {
		opts = append(opts, telego.WithAPIServer(channel.SendAPIURL))
	}
	bot, err := telego.NewBot(channel.Credentials["bot_token"], opts...)
	if err != nil {
		return errorResult(errTypeInvalidConfig, err.Error())
	}

	params := tu.Message(tu.ID(chatID), msg.Content)
	params.ParseMode = telego.ModeHTML
	sent, err := bot.SendMessage(ctx, params)
	if err != nil {
		return errorResult(errTypeAPIError, err.Error())
	}

	return SendResult{
		Status:         SendSuccess,
		ExternalID:     strconv.Itoa(sent.MessageID),
		PlatformStatus: "sent",
		To:             chat.ExternalID,
	}
}
