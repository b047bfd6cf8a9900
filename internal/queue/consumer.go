package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/pkg/dto"
)

// RecognitionHandler receives every valid report from the stream.
type RecognitionHandler func(ctx context.Context, result models.RecognitionResult) error

type Consumer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	running atomic.Bool
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeRecognitions feeds new reports to handler until ctx is done.
// Malformed reports are terminated so they are never redelivered.
func (c *Consumer) ConsumeRecognitions(ctx context.Context, consumerName string, handler RecognitionHandler) error {
	stream, err := c.js.Stream(ctx, RecognitionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", RecognitionsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: RecognitionsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	c.running.Store(true)
	go func() {
		defer c.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch recognitions error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				result, err := decodeReport(msg.Data())
				if err != nil {
					slog.Warn("dropping malformed recognition report", "error", err, "subject", msg.Subject())
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, result); err != nil {
					slog.Error("process recognition error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("recognition consumer started", "consumer", consumerName)
	return nil
}

func decodeReport(data []byte) (models.RecognitionResult, error) {
	var report dto.RecognitionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return models.RecognitionResult{}, fmt.Errorf("decode report: %w", err)
	}
	return report.ToResult()
}

// Ready fails unless the fetch loop is running on a connected client.
func (c *Consumer) Ready(_ context.Context) error {
	if !c.running.Load() {
		return errors.New("recognition consumer not running")
	}
	if c.nc == nil || !c.nc.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
