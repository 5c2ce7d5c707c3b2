// Package eventstreamutils builds eventstream publishers from configuration.
package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/eventstream/kafka"
	"github.com/papercomputeco/parley/pkg/eventstream/nop"
)

const (
	ProviderNone  = "none"
	ProviderKafka = "kafka"
)

type NewPublisherOpts struct {
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", ProviderNone:
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: o.Brokers,
			Topic:   o.Topic,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", o.ProviderType)
	}
}
