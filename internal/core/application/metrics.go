package application

import (
	"context"

	"github.com/tokenfund/mintd/internal/core/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tokenfund/mintd/internal/core/application"

type metrics struct {
	payments       metric.Int64Counter
	attempts       metric.Int64Counter
	pollFailures   metric.Int64Counter
	minUTXORetries metric.Int64Counter
	lovelaceOut    metric.Int64Counter
	nextTokenID    metric.Int64Gauge
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	meter := provider.Meter(meterName)

	payments, err := meter.Int64Counter(
		"mintd.payments.detected",
		metric.WithDescription("Qualifying payments detected at the treasury address"),
		metric.WithUnit("{payment}"),
	)
	if err != nil {
		return nil, err
	}
	attempts, err := meter.Int64Counter(
		"mintd.attempts",
		metric.WithDescription("Mint and refund attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	pollFailures, err := meter.Int64Counter(
		"mintd.poll.failures",
		metric.WithDescription("Failed unspent output queries"),
	)
	if err != nil {
		return nil, err
	}
	minUTXORetries, err := meter.Int64Counter(
		"mintd.build.min_utxo_retries",
		metric.WithDescription("Mint builds reissued with the ledger minimum output value"),
	)
	if err != nil {
		return nil, err
	}
	lovelaceOut, err := meter.Int64Counter(
		"mintd.lovelace.sent",
		metric.WithDescription("Lovelace sent back to payers"),
		metric.WithUnit("{lovelace}"),
	)
	if err != nil {
		return nil, err
	}
	nextTokenID, err := meter.Int64Gauge(
		"mintd.mint.next_token_id",
		metric.WithDescription("Next token id to be minted"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		payments:       payments,
		attempts:       attempts,
		pollFailures:   pollFailures,
		minUTXORetries: minUTXORetries,
		lovelaceOut:    lovelaceOut,
		nextTokenID:    nextTokenID,
	}, nil
}

func (m *metrics) paymentDetected(ctx context.Context, phase domain.Phase) {
	m.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(phase))))
}

func (m *metrics) attemptFinished(ctx context.Context, attempt domain.Attempt) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(attempt.Kind)),
		attribute.String("status", string(attempt.Status)),
		attribute.String("stage", string(attempt.Stage)),
	))
}

func (m *metrics) pollFailed(ctx context.Context, phase domain.Phase) {
	m.pollFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", string(phase))))
}

func (m *metrics) minUTXORetry(ctx context.Context) {
	m.minUTXORetries.Add(ctx, 1)
}

func (m *metrics) lovelaceSent(ctx context.Context, kind domain.AttemptKind, amount uint64) {
	m.lovelaceOut.Add(
		ctx, int64(amount), metric.WithAttributes(attribute.String("kind", string(kind))),
	)
}

func (m *metrics) tokenIDAdvanced(ctx context.Context, next int) {
	m.nextTokenID.Record(ctx, int64(next))
}
