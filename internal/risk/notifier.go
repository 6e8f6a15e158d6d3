package risk

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier recebe rejeições acima de MEDIUM com contexto completo.
type Notifier interface {
	Alert(ctx context.Context, t *Ticket, rej *Rejection)
}

// Noop descarta alertas; usado quando não há canal configurado.
type Noop struct{}

func (Noop) Alert(context.Context, *Ticket, *Rejection) {}

// SlackNotifier encaminha rejeições ao canal de risco com o mapeamento
// severidade→cor do anexo.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	log     *zap.Logger
}

func NewSlackNotifier(token, channel string, log *zap.Logger) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
		log:     log,
	}
}

func severityColor(s Severity) string {
	switch s {
	case Critical:
		return "#d00000"
	case High:
		return "#ff9f1c"
	case Medium:
		return "#f2c744"
	}
	return "#36a64f"
}

func (s *SlackNotifier) Alert(ctx context.Context, t *Ticket, rej *Rejection) {
	att := slack.Attachment{
		Color: severityColor(rej.Severity),
		Title: fmt.Sprintf("[%s] %s", rej.Severity, rej.Reason),
		Text:  rej.Detail,
		Fields: []slack.AttachmentField{
			{Title: "Usuário", Value: t.UserID, Short: true},
			{Title: "Evento", Value: t.EventID, Short: true},
			{Title: "Mercado", Value: t.Market + " / " + t.Selection, Short: true},
			{Title: "Stake", Value: fmt.Sprintf("%.2f", float64(t.StakeCents)/100), Short: true},
			{Title: "Odd", Value: fmt.Sprintf("%.2f", t.Odds), Short: true},
			{Title: "Check", Value: rej.Check, Short: true},
		},
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionAttachments(att))
	if err != nil {
		s.log.Warn("slack alert failed", zap.Error(err), zap.String("reason", rej.Reason))
	}
}
