// Package pubsub publishes discoveries to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/idprobe/internal/probe"
)

// Config names the topic discoveries are published to.
type Config struct {
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	TopicName string `mapstructure:"topic_name" yaml:"topic_name"`
}

// Enabled reports whether publishing is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.ProjectID) != "" && strings.TrimSpace(c.TopicName) != ""
}

// Message is the JSON payload of a published discovery.
type Message struct {
	RunID   string    `json:"run_id,omitempty"`
	URL     string    `json:"url"`
	Outer   int       `json:"outer"`
	Inner   int       `json:"inner"`
	FoundAt time.Time `json:"found_at"`
}

// Sink publishes each discovery and waits for the server acknowledgement.
type Sink struct {
	topic  *pubsub.Topic
	client *pubsub.Client
	runID  string
}

// New wraps an existing topic. The caller keeps ownership of its client.
func New(topic *pubsub.Topic, runID string) *Sink {
	return &Sink{topic: topic, runID: runID}
}

// Dial connects to Pub/Sub and verifies the topic exists. The returned sink
// owns the client and releases it on Close.
func Dial(ctx context.Context, cfg Config, runID string, opts ...option.ClientOption) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil || !exists {
		if closeErr := client.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		if err == nil {
			err = errors.New("topic does not exist")
		}
		return nil, fmt.Errorf("failed to get pubsub topic %q: %w", cfg.TopicName, err)
	}
	return &Sink{topic: topic, client: client, runID: runID}, nil
}

// Append implements probe.DiscoverySink.
func (s *Sink) Append(ctx context.Context, d probe.Discovery) error {
	if s.topic == nil {
		return errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(Message{
		RunID:   s.runID,
		URL:     d.URL,
		Outer:   d.Key.Outer,
		Inner:   d.Key.Inner,
		FoundAt: d.FoundAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal discovery: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"outer": strconv.Itoa(d.Key.Outer),
			"inner": strconv.Itoa(d.Key.Inner),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish discovery: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes an owned client.
func (s *Sink) Close() error {
	if s.topic != nil {
		s.topic.Stop()
	}
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
