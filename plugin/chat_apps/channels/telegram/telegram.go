// Package telegram implements the Telegram Bot channel.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/hrygo/picsave/plugin/chat_apps"
	"github.com/hrygo/picsave/plugin/chat_apps/channels"
	"github.com/hrygo/picsave/server/service/media"
)

const (
	MaxDownloadSizeMB   = 20 // Bot API getFile limit
	DefaultPollTimeout  = 60
	DefaultRequestsPerS = 25
)

// TelegramConfig holds configuration for the Telegram channel.
type TelegramConfig struct {
	BotToken string
	// AdminChatID is the only chat allowed to run /reindex; 0 disables it.
	AdminChatID int64
	// RequestsPerSecond bounds outgoing Bot API calls.
	RequestsPerSecond float64
}

// botAPI is the part of tgbotapi.BotAPI the channel uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client is a rate limited Bot API connection. It is shared by the channel
// and by the media service, which downloads files through it.
type Client struct {
	bot      botAPI
	username string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient connects to the Bot API with the configured token.
func NewClient(config *TelegramConfig) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, bot.Self.UserName, config.RequestsPerSecond), nil
}

func newClient(bot botAPI, username string, rps float64) *Client {
	if rps <= 0 {
		rps = DefaultRequestsPerS
	}
	return &Client{
		bot:      bot,
		username: username,
		limiter:  rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}
}

// Username returns the bot's @username without the @.
func (c *Client) Username() string {
	return c.username
}

// send waits for the outgoing rate limit and sends msg.
func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.Send(msg)
	return err
}

// request is send for calls that do not return a message.
func (c *Client) request(ctx context.Context, req tgbotapi.Chattable) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.Request(req)
	return err
}

// TelegramChannel turns Telegram updates into media service calls.
type TelegramChannel struct {
	client  *Client
	service media.Service
	config  *TelegramConfig
	wg      sync.WaitGroup
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(client *Client, config *TelegramConfig, service media.Service) *TelegramChannel {
	return &TelegramChannel{
		client:  client,
		service: service,
		config:  config,
	}
}

// Name returns the platform name.
func (t *TelegramChannel) Name() chat_apps.Platform {
	return chat_apps.PlatformTelegram
}

// Run long-polls for updates and handles each one in its own goroutine.
// It returns after ctx is done and in-flight updates have finished.
func (t *TelegramChannel) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultPollTimeout
	u.AllowedUpdates = []string{"message", "inline_query", "chosen_inline_result"}
	updates := t.client.bot.GetUpdatesChan(u)

	slog.Info("telegram: polling for updates", "username", t.client.username)
	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.client.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.HandleUpdate(ctx, update)
			}()
		}
	}
}

// Ensure TelegramChannel implements ChatChannel and Client implements media.Fetcher
var (
	_ channels.ChatChannel = (*TelegramChannel)(nil)
	_ media.Fetcher        = (*Client)(nil)
)
