package commission

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedkafka "github.com/radieske/wager-platform/internal/shared/kafka"
	"github.com/radieske/wager-platform/pkg/contracts/events"
)

// Processor consome liquidações do Kafka e aciona o distribuidor de
// comissões. Callbacks de métricas podem ser usadas para monitoramento
// de cada etapa
type Processor struct {
	Log         *zap.Logger
	Reader      *kafka.Reader
	Distributor *Distributor
	DLQ         *kafka.Writer // pode ser nil

	OnConsumed func()       // métricas (counter++)
	OnPaid     func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e distribuição
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.WagerSettled
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		if err := p.distributeWithRetry(ctx, ev); err != nil {
			p.Log.Error("commission distribute failed",
				zap.String("wager_id", ev.WagerID), zap.Error(err))
			if p.OnError != nil {
				p.OnError("distribute")
			}
			if p.DLQ != nil {
				_ = sharedkafka.WriteJSON(ctx, p.DLQ, ev.WagerID, m.Value)
			}
			continue
		}
		if p.OnPaid != nil {
			p.OnPaid()
		}
	}
}

// distributeWithRetry tenta até 3 vezes com backoff simples antes de
// desistir; o distribuidor é idempotente, então repetir é seguro.
func (p *Processor) distributeWithRetry(ctx context.Context, ev events.WagerSettled) error {
	var err error
	for i := 0; i < 3; i++ {
		if err = p.Distributor.Distribute(ctx, ev); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(300*(i+1)) * time.Millisecond):
		}
	}
	return err
}
