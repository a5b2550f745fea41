// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"cdas-go/internal/config"
	"cdas-go/pkg/log"
	"cdas-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// Publisher 发布文档生命周期事件。
type Publisher interface {
	Publish(ctx context.Context, event tasks.DocumentEvent) error
	Close() error
}

// messageWriter 是 *kafka.Writer 中 Publisher 用到的部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type producer struct {
	writer messageWriter
	topic  string
}

// NewPublisher 初始化 Kafka 生产者。Brokers 为空时返回不做任何事的 Publisher。
func NewPublisher(cfg config.KafkaConfig) Publisher {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		log.Info("未配置 Kafka brokers，文档事件不会发布")
		return NopPublisher{}
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &producer{writer: newWriter(brokers, cfg.Topic), topic: cfg.Topic}
}

// newWriter 创建异步 Writer：WriteMessages 只入队不等待 broker 确认，
// 投递结果由 logDelivery 记录，Close 时会刷出剩余消息。
func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  true,
		Completion:             logDelivery,
	}
}

func logDelivery(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		log.Warnf("[EventPublisher] 文档事件投递失败, document_id: %s, error: %v", string(m.Key), err)
	}
}

// Publish 以文档 ID 为 key 发送事件，同一文档的事件落在同一分区内保持顺序。
func (p *producer) Publish(ctx context.Context, event tasks.DocumentEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.DocumentID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
}

func (p *producer) Close() error {
	return p.writer.Close()
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, tasks.DocumentEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
