package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type Producer interface {
	SendJob(ctx context.Context, message *JobMessage) error
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p, topic: topic}, nil
}

func (p *producer) SendJob(ctx context.Context, message *JobMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(message.PipelineID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(message.Kind)},
			{Key: []byte("trace_id"), Value: []byte(message.TraceID)},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
