package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/imagesof/relay/internal/domain"
	"github.com/imagesof/relay/internal/platform"
)

// KafkaStreamSource consumes submission events relayed through a Kafka
// topic instead of polling the platform directly. Records are
// JSON-encoded items; deployments that fan the firehose out to several
// relays publish it once and consume it here.
type KafkaStreamSource struct {
	brokers string
	topic   string
	group   string
	log     zerolog.Logger
}

func NewKafkaStreamSource(brokers, topic, group string, log zerolog.Logger) *KafkaStreamSource {
	return &KafkaStreamSource{brokers: brokers, topic: topic, group: group, log: log}
}

func (s *KafkaStreamSource) Open(_ context.Context) (platform.Stream, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(s.brokers, ",")...),
		kgo.ConsumeTopics(s.topic),
	}
	if s.group != "" {
		opts = append(opts, kgo.ConsumerGroup(s.group))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, &platform.TransportError{
			Kind: platform.ConnectionFailed,
			Err:  fmt.Errorf("create kafka client: %w", err),
		}
	}
	s.log.Info().Str("topic", s.topic).Str("group", s.group).Msg("Kafka submission stream opened")
	return &kafkaStream{client: client, log: s.log}, nil
}

type kafkaStream struct {
	client *kgo.Client
	buf    []*domain.Item
	log    zerolog.Logger
}

func (k *kafkaStream) Next(ctx context.Context) (*domain.Item, error) {
	for {
		if len(k.buf) > 0 {
			item := k.buf[0]
			k.buf = k.buf[1:]
			return item, nil
		}

		fetches := k.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, platform.ErrEndOfStream
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &platform.TransportError{
				Kind: platform.ConnectionFailed,
				Err:  fmt.Errorf("kafka poll: %v", errs),
			}
		}

		fetches.EachRecord(func(r *kgo.Record) {
			item, err := decodeSubmissionRecord(r.Value)
			if err != nil {
				k.log.Warn().Err(err).Int64("offset", r.Offset).Msg("Dropping undecodable record")
				return
			}
			k.buf = append(k.buf, item)
		})
	}
}

func (k *kafkaStream) Close() {
	k.client.Close()
}

// decodeSubmissionRecord parses one topic record into an item. Events
// on the topic are expected to arrive pre-normalized, author creation
// time included, so no platform lookups happen on this path.
func decodeSubmissionRecord(value []byte) (*domain.Item, error) {
	var item domain.Item
	if err := json.Unmarshal(value, &item); err != nil {
		return nil, fmt.Errorf("decode submission record: %w", err)
	}
	if item.ID == "" || item.URL == "" {
		return nil, fmt.Errorf("submission record missing id or url")
	}
	return &item, nil
}
