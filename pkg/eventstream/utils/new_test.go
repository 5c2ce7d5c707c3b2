package eventstreamutils_test

import (
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/eventstream/kafka"
	"github.com/papercomputeco/parley/pkg/eventstream/nop"
	eventstreamutils "github.com/papercomputeco/parley/pkg/eventstream/utils"
)

var _ = Describe("NewPublisher", func() {
	logger := slog.New(slog.DiscardHandler)

	It("returns a no-op publisher when events are disabled", func() {
		for _, provider := range []string{"", eventstreamutils.ProviderNone} {
			p, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
				ProviderType: provider,
				Logger:       logger,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
		}
	})

	It("returns a kafka publisher", func() {
		p, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
			ProviderType: eventstreamutils.ProviderKafka,
			Brokers:      []string{"localhost:9092"},
			Topic:        "exchanges",
			Logger:       logger,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(p.Close()).To(Succeed())
	})

	It("passes kafka validation errors through", func() {
		_, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
			ProviderType: eventstreamutils.ProviderKafka,
			Logger:       logger,
		})
		Expect(err).To(MatchError("kafka brokers are required"))
	})

	It("rejects unknown providers", func() {
		_, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{ProviderType: "nats"})
		Expect(err).To(MatchError("unsupported event stream provider: nats"))
	})
})
