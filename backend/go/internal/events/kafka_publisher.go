package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gemini_agent_api/backend/go/internal/config"
	"gemini_agent_api/backend/go/internal/models"
	"gemini_agent_api/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic 是 Agent 事件的默认主题。
const DefaultTopic = "agent_events"

// KafkaPublisher 封装了向 Kafka 发送 Agent 事件的逻辑。
// writer 以异步模式工作，Publish 只把消息放入批次，写入失败在 Completion 中记录。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建一个新的 KafkaPublisher 实例。
func NewKafkaPublisher(cfg config.KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("未配置 Kafka brokers")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 同一 Agent 的事件进入同一分区
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.WithField("topic", topic).
					WithError(models.ErrorInfo{Message: err.Error(), Type: "kafka_write"}).
					Warn(fmt.Sprintf("failed to publish %d agent events", len(messages)))
			}
		},
	}
	return &KafkaPublisher{writer: writer}, nil
}

// Publish 将事件序列化为 JSON 并交给 writer。
func (p *KafkaPublisher) Publish(ctx context.Context, event models.AgentEvent) error {
	msg, err := messageFor(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close 刷新剩余批次并关闭底层的 writer 连接。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func messageFor(event models.AgentEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal agent event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.AgentName),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "status", Value: []byte(event.Status)},
		},
		Time: event.Timestamp,
	}, nil
}

// EnsureTopic 连接第一个 broker，主题不存在时创建它。
func EnsureTopic(ctx context.Context, cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("未配置 Kafka brokers")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	for _, p := range partitions {
		if p.Topic == topic {
			return nil
		}
	}

	if err := conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	return nil
}

// New 根据配置选择发布方式：配置了 brokers 时使用 Kafka，否则写日志。
func New(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher(log)
	}
	if err := EnsureTopic(ctx, cfg); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "kafka_topic"}).Warn("kafka topic check failed, falling back to log publisher")
		return NewLogPublisher(log)
	}
	p, err := NewKafkaPublisher(cfg, log)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "kafka_init"}).Warn("kafka publisher unavailable, falling back to log publisher")
		return NewLogPublisher(log)
	}
	return p
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
