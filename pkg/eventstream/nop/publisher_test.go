package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var p *nop.Publisher

	BeforeEach(func() {
		p = nop.NewPublisher()
	})

	It("satisfies eventstream.Publisher", func() {
		var _ eventstream.Publisher = p
	})

	It("rejects nil events", func() {
		Expect(p.PublishExchange(context.Background(), nil)).To(MatchError(eventstream.ErrNilExchangeEvent))
		Expect(p.Discarded()).To(BeZero())
	})

	It("discards events and counts them", func() {
		event := eventstream.NewExchangeEvent(
			eventstream.EventSource{Model: "m"},
			eventstream.ExchangeRequestMeta{},
			eventstream.ExchangeStreamMeta{Outcome: eventstream.OutcomeCompleted},
		)
		Expect(p.PublishExchange(context.Background(), event)).To(Succeed())
		Expect(p.PublishExchange(context.Background(), event)).To(Succeed())
		Expect(p.Discarded()).To(Equal(uint64(2)))
		Expect(p.Close()).To(Succeed())
	})
})
