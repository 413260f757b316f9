package events

import (
	"context"
	"sync"
)

// Recorder is an in-memory Publisher for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Recorded
}

type Recorded struct {
	Topic    string
	Key      string
	Envelope Envelope
}

func (r *Recorder) Publish(_ context.Context, topic string, key []byte, env Envelope) error {
	r.mu.Lock()
	r.sent = append(r.sent, Recorded{Topic: topic, Key: string(key), Envelope: env})
	r.mu.Unlock()
	return nil
}

// Topic returns the envelopes published to topic, oldest first.
func (r *Recorder) Topic(topic string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, s := range r.sent {
		if s.Topic == topic {
			out = append(out, s.Envelope)
		}
	}
	return out
}
