package adapter

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "pdfbot/internal/transport"
	logx "pdfbot/pkg/logx"
)

const DefaultAPIURL = "https://api.telegram.org"

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (self-hosted server, tests).
	APIURL string
	// Timeout bounds a single API call, uploads included.
	Timeout time.Duration
}

// Adapter submits messages and documents through the Telegram Bot API.
// It never polls for updates.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// chatRecipient lets string chat ids ("-100…" or "@channel") reach telebot
// without a numeric conversion.
type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024
)

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// SendText sends text, split into several messages when it exceeds the
// message limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, &kit.APIError{Method: "sendMessage", Description: "empty chat id"}
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chatRecipient(to.ChatID), chunk, &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
		})
		if err != nil {
			return first, apiError("sendMessage", err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	a.log.Debug("text sent", logx.String("chat_id", to.ChatID), logx.Int("message_id", first.MessageID))
	return first, nil
}

// SendDocument uploads doc as a multipart sendDocument call.
func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, doc kit.Document) (kit.MessageRef, error) {
	if to.IsZero() {
		return kit.MessageRef{}, &kit.APIError{Method: "sendDocument", Description: "empty chat id"}
	}
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}

	caption := doc.Caption
	if rs := []rune(caption); len(rs) > telegramCaptionLimit {
		caption = string(rs[:telegramCaptionLimit])
	}

	msg, err := a.bot.Send(chatRecipient(to.ChatID), &tele.Document{
		File:     tele.FromReader(bytes.NewReader(doc.Data)),
		FileName: doc.FileName,
		MIME:     doc.MIME,
		Caption:  caption,
	})
	if err != nil {
		return kit.MessageRef{}, apiError("sendDocument", err)
	}
	a.log.Debug("document sent",
		logx.String("chat_id", to.ChatID),
		logx.String("file", doc.FileName),
		logx.Int("bytes", len(doc.Data)),
		logx.Int("message_id", msg.ID),
	)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

// apiError keeps Telegram's error code and description when telebot exposes
// them.
func apiError(method string, err error) error {
	var te *tele.Error
	if errors.As(err, &te) {
		return &kit.APIError{Method: method, Code: te.Code, Description: te.Description, Err: err}
	}
	return &kit.APIError{Method: method, Err: err}
}
