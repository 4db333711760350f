package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
)

// listenToEvents forwards the events worth a notification to the alerts sink.
func (s *service) listenToEvents(events <-chan domain.Event) {
	defer s.wg.Done()

	for event := range events {
		switch e := event.(type) {
		case domain.TokenMinted:
			s.publishAlert(ports.TokenMinted, ports.TokenMintedAlert{
				TokenID:     e.TokenID,
				AssetName:   e.AssetName,
				MintAddress: e.MintAddress,
				Source:      e.Source.String(),
				Payment:     e.Lovelace,
			})
		case domain.RefundSubmitted:
			s.publishAlert(ports.RefundSubmitted, ports.RefundSubmittedAlert{
				Source:        e.Source.String(),
				RefundAddress: e.RefundAddress,
				NetAmount:     e.NetAmount,
				MinerFee:      e.MinerFee,
			})
		case domain.AttemptFailedEvent:
			s.publishAlert(ports.AttemptFailed, ports.AttemptFailedAlert{
				Kind:    string(e.Kind),
				TokenID: e.TokenID,
				Source:  e.Source.String(),
				Stage:   string(e.Stage),
				Reason:  e.Reason,
			})
		}
	}
}

func (s *service) sendCompletedAlert(checkpoint *domain.Checkpoint) {
	counters := s.orchestrator.counters
	s.publishAlert(ports.SalesCompleted, ports.SalesCompletedAlert{
		Minted:    int(counters.minted.Load()),
		Refunded:  int(counters.refunded.Load()),
		Failed:    int(counters.failed.Load()),
		Watermark: checkpoint.Watermark.LastSeenOutputIndex,
	})
}

func (s *service) publishAlert(topic ports.Topic, message any) {
	if s.alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.alerts.Publish(ctx, topic, message); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish alert")
	}
}
