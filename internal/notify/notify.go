// Package notify pushes alerts to the curator via a Telegram bot. All
// sends are best-effort: a down bot never blocks the pipeline.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/scan"
)

type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

// New builds a Notifier. When the bot token or admin chat is not
// configured it returns a disabled notifier that drops every message.
func New(cfg *config.Config, logger *zerolog.Logger) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.AdminChatID == 0 {
		logger.Info().Msg("notification bot not configured, alerts disabled")

		return &Notifier{logger: logger}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("init notification bot: %w", err)
	}

	return &Notifier{
		api:    api,
		chatID: cfg.AdminChatID,
		logger: logger,
	}, nil
}

func (n *Notifier) enabled() bool {
	return n.api != nil && n.chatID != 0
}

// HighQualityPaper announces a freshly cataloged paper that cleared the
// practice-changing quality threshold.
func (n *Notifier) HighQualityPaper(ctx context.Context, paper *db.Paper) {
	if !n.enabled() {
		return
	}

	var sb strings.Builder

	sb.WriteString("🔥 <b>High-quality paper</b>\n\n")
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(paper.Title)))

	if paper.Journal != "" {
		sb.WriteString(html.EscapeString(paper.Journal))

		if paper.Year != 0 {
			sb.WriteString(fmt.Sprintf(" (%d)", paper.Year))
		}

		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nQuality: <b>%.1f</b>/10", paper.QualityScore))

	if paper.StudyType != "" {
		sb.WriteString(fmt.Sprintf("\nDesign: %s", html.EscapeString(paper.StudyType)))
	}

	if paper.SampleSize != "" {
		sb.WriteString(fmt.Sprintf("\nN = %s", html.EscapeString(paper.SampleSize)))
	}

	if paper.DOI != "" {
		sb.WriteString(fmt.Sprintf("\nhttps://doi.org/%s", paper.DOI))
	}

	n.send(sb.String())
}

// ScanFinished posts a digest of a completed channel pass. Quiet passes
// with nothing new and no errors stay silent.
func (n *Notifier) ScanFinished(ctx context.Context, snapshot scan.Snapshot) {
	if !n.enabled() {
		return
	}

	if snapshot.NewPapers == 0 && snapshot.Quizzes == 0 && snapshot.Errors == 0 {
		return
	}

	text := fmt.Sprintf(
		"📡 <b>Scan finished</b>\nChannels: %d\nNew papers: %d\nQuizzes: %d\nDuplicates: %d\nErrors: %d",
		snapshot.ChannelsDone,
		snapshot.NewPapers,
		snapshot.Quizzes,
		snapshot.Duplicates,
		snapshot.Errors,
	)

	n.send(text)
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("failed to send notification")
	}
}
