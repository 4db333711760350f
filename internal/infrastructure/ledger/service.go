package ledger

import (
	"context"
	"fmt"

	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

type service struct {
	ports.ChainQuerier
	ports.TxTooling
}

// NewService serves chain queries from the given querier and everything
// transaction related from the tooling.
func NewService(querier ports.ChainQuerier, tooling ports.TxTooling) (ports.LedgerClient, error) {
	if querier == nil {
		return nil, fmt.Errorf("missing chain querier")
	}
	if tooling == nil {
		return nil, fmt.Errorf("missing tx tooling")
	}
	return &service{querier, tooling}, nil
}

type staticResolver struct {
	address string
}

// NewStaticResolver resolves every payment to the same address.
func NewStaticResolver(address string) (ports.PayerResolver, error) {
	if address == "" {
		return nil, fmt.Errorf("missing payer address")
	}
	return staticResolver{address}, nil
}

func (r staticResolver) ResolvePayer(_ context.Context, txHash string) (string, error) {
	if txHash == "" {
		return "", errors.PAYER_UNRESOLVED.New("empty transaction hash").
			WithMetadata(errors.PayerMetadata{Txid: txHash})
	}
	return r.address, nil
}
