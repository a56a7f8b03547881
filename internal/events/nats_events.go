package events

import (
	"context"
	"fmt"
	"log"

	"raffle-backend/internal/clients"
	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"
)

// Subject raffle.<network>.Raffle.<Event>
func Subject(network string, name raffle.EventName) string {
	return fmt.Sprintf("raffle.%s.Raffle.%s", network, name)
}

// StreamSubjects subjects covered by the raffle JetStream stream
func StreamSubjects(network string) []string {
	return []string{fmt.Sprintf("raffle.%s.Raffle.*", network)}
}

// NATSEventPublisher republishes bus events on NATS
type NATSEventPublisher struct {
	pub     clients.Publisher
	network string
}

func NewNATSEventPublisher(pub clients.Publisher, network string) *NATSEventPublisher {
	return &NATSEventPublisher{pub: pub, network: network}
}

// Publish sends one event
func (p *NATSEventPublisher) Publish(evt raffle.Event) error {
	subject := Subject(p.network, evt.Name)
	if err := clients.PublishJSON(p.pub, subject, ToMessage(evt)); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues(string(evt.Name), "publish").Inc()
		return err
	}
	metrics.NATSMessagesPublished.WithLabelValues(string(evt.Name)).Inc()
	return nil
}

// Run publishes every event from sub until ctx is done
func (p *NATSEventPublisher) Run(ctx context.Context, sub *Subscription) {
	log.Printf("📡 NATS event publisher started (network=%s)", p.network)
	sub.Dispatch(ctx, func(evt raffle.Event) {
		if err := p.Publish(evt); err != nil {
			log.Printf("❌ Failed to publish %s event: %v", evt.Name, err)
		}
	})
	log.Printf("🛑 NATS event publisher stopped")
}
