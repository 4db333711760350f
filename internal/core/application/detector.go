package application

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

type eventDetector struct {
	ledger  ports.ChainQuerier
	address string
	fee     uint64
}

func newEventDetector(ledger ports.ChainQuerier, address string, fee uint64) *eventDetector {
	return &eventDetector{ledger, address, fee}
}

// poll returns the first output, in ledger order, that is past the watermark
// and pays exactly the fee. It returns nil if there is none.
// Failed or malformed queries are logged and count as no event. The error is
// still returned so that the caller can back off.
func (d *eventDetector) poll(
	ctx context.Context, watermark domain.Watermark,
) (*domain.UnspentOutput, error) {
	outputs, err := d.ledger.ListUnspentOutputs(ctx, d.address)
	if err != nil {
		entry := log.WithError(err)
		if typed, ok := errors.As(err); ok {
			entry = typed.Log().WithError(err)
		}
		entry.WithField("address", d.address).Warn("failed to list unspent outputs")
		return nil, err
	}

	for _, out := range outputs {
		if !watermark.Admits(out) || !out.Qualifies(d.fee) {
			continue
		}
		payment := out
		return &payment, nil
	}
	return nil, nil
}
