package sink

import (
	"context"
	"fmt"

	sarama "github.com/IBM/sarama"
)

// KafkaSink produces envelopes to a Kafka topic keyed by agent name, so
// every event of one agent lands on the same partition in order.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink produces to topic through producer. Close closes producer.
func NewKafkaSink(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// NewProducerConfig returns the sarama configuration DialKafka uses.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "baton"
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// DialKafka connects a synchronous producer to brokers.
func DialKafka(brokers []string, topic string) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	return NewKafkaSink(producer, topic), nil
}

func (s *KafkaSink) message(env Envelope, data []byte) *sarama.ProducerMessage {
	return &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(env.Key()),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(env.Event)},
		},
		Timestamp: env.At,
	}
}

// Send implements Sink. The producer call itself is not cancellable, so
// ctx is checked before sending.
func (s *KafkaSink) Send(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("kafka sink: encode: %w", err)
	}
	if _, _, err := s.producer.SendMessage(s.message(env, data)); err != nil {
		return fmt.Errorf("kafka sink: produce to %s: %w", s.topic, err)
	}
	return nil
}

// Close closes the producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
