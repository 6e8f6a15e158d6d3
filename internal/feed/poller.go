package feed

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// EventLister fornece os eventos ao vivo que precisam de placar fresco.
type EventLister interface {
	LiveEventIDs(ctx context.Context) ([]string, error)
}

// Poller renova os placares dos eventos ao vivo numa agenda cron. Os
// checks de risco leem do cache; o poller é quem o mantém quente sem
// amarrar o orçamento do feed à taxa de apostas.
type Poller struct {
	log    *zap.Logger
	client *Client
	events EventLister
	spec   string // expressão cron com segundos, ex.: "*/30 * * * * *"
	cron   *cron.Cron
}

func NewPoller(log *zap.Logger, client *Client, events EventLister, spec string) *Poller {
	return &Poller{
		log:    log,
		client: client,
		events: events,
		spec:   spec,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start agenda o polling e dispara o cron. Retorna erro apenas para
// expressão inválida.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc(p.spec, func() { p.pollOnce(ctx) })
	if err != nil {
		return err
	}
	p.cron.Start()
	p.log.Info("score poller started", zap.String("spec", p.spec))
	return nil
}

func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Poller) pollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ids, err := p.events.LiveEventIDs(ctx)
	if err != nil {
		p.log.Warn("live event listing failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if _, err := p.client.CurrentScore(ctx, id); err != nil {
			p.log.Warn("score poll failed", zap.String("event_id", id), zap.Error(err))
		}
	}
}
