// Package broadcaster drains the trade outbox and publishes each pending
// trade to Kafka with full acknowledgement, marking records acked or
// failed so delivery resumes correctly after a restart.
package broadcaster

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"matchbook/infra/outbox"
)

// Producer is the slice of sarama.SyncProducer the broadcaster needs.
type Producer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
}

// NewProducer builds the delivery-guaranteed sync producer: acks from all
// in-sync replicas, bounded retries.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, cfg)
}

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer Producer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(ob *outbox.Outbox, producer Producer, topic string, interval time.Duration, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// Run flushes pending trades on a ticker until the context is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("trade broadcaster started",
		zap.String("topic", b.topic),
		zap.Duration("interval", b.interval))

	t := time.NewTicker(b.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("trade broadcaster stopped")
			return
		case <-t.C:
			b.Flush()
		}
	}
}

// Flush publishes every pending outbox record once. Failures are recorded
// per trade and retried on the next flush.
func (b *Broadcaster) Flush() {
	err := b.outbox.ScanPending(func(rec outbox.Record) error {
		b.publish(rec)
		return nil
	})
	if err != nil {
		b.log.Warn("outbox scan failed", zap.Error(err))
	}
}

func (b *Broadcaster) publish(rec outbox.Record) {
	payload, err := json.Marshal(rec.Trade)
	if err != nil {
		b.log.Error("encode trade", zap.Uint64("seq", rec.Seq), zap.Error(err))
		return
	}

	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(rec.Seq, 10)),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		b.log.Warn("publish trade failed",
			zap.Uint64("seq", rec.Seq),
			zap.Uint32("retries", rec.Retries),
			zap.Error(err))
		if merr := b.outbox.MarkFailed(rec.Seq); merr != nil {
			b.log.Error("mark failed", zap.Uint64("seq", rec.Seq), zap.Error(merr))
		}
		return
	}

	if merr := b.outbox.MarkAcked(rec.Seq); merr != nil {
		b.log.Error("mark acked", zap.Uint64("seq", rec.Seq), zap.Error(merr))
	}
}
