package blockfrost

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/pkg/errors"
)

const (
	defaultTimeout = 15 * time.Second
	pageSize       = 100
	lovelaceUnit   = "lovelace"
)

type Client struct {
	http *resty.Client
}

// NewClient returns a Blockfrost backed chain querier and payer resolver.
func NewClient(baseURL, projectID string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing blockfrost url")
	}
	if projectID == "" {
		return nil, fmt.Errorf("missing blockfrost project id")
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("project_id", projectID).
		SetHeader("Accept", "application/json").
		SetTimeout(defaultTimeout)

	return &Client{httpClient}, nil
}

type latestBlock struct {
	Slot *uint64 `json:"slot"`
}

func (c *Client) CurrentSlot(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/blocks/latest", nil)
	if err != nil {
		return 0, errors.CHAIN_QUERY_FAILED.Wrap(err).
			WithMetadata(errors.QueryMetadata{Query: "tip"})
	}

	var block latestBlock
	if err := json.Unmarshal(body, &block); err != nil || block.Slot == nil {
		return 0, malformed("tip", string(body))
	}
	return *block.Slot, nil
}

type amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

type addressUtxo struct {
	TxHash      string   `json:"tx_hash"`
	OutputIndex *int     `json:"output_index"`
	Amount      []amount `json:"amount"`
}

// ListUnspentOutputs walks every page of the address outputs, oldest first.
// An address the indexer has never seen has no outputs.
func (c *Client) ListUnspentOutputs(
	ctx context.Context, address string,
) ([]domain.UnspentOutput, error) {
	utxos := make([]domain.UnspentOutput, 0)
	for page := 1; ; page++ {
		body, err := c.get(ctx, fmt.Sprintf("/addresses/%s/utxos", address), map[string]string{
			"page":  strconv.Itoa(page),
			"count": strconv.Itoa(pageSize),
			"order": "asc",
		})
		if err != nil {
			if isNotFound(err) {
				return utxos, nil
			}
			return nil, errors.CHAIN_QUERY_FAILED.Wrap(err).
				WithMetadata(errors.QueryMetadata{Query: "utxo", Address: address})
		}

		var entries []addressUtxo
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, malformed("utxo", string(body))
		}
		for _, entry := range entries {
			utxo, err := entry.toDomain(address)
			if err != nil {
				return nil, err
			}
			utxos = append(utxos, *utxo)
		}

		if len(entries) < pageSize {
			return utxos, nil
		}
	}
}

type txUtxos struct {
	Inputs []struct {
		Address string `json:"address"`
	} `json:"inputs"`
}

// ResolvePayer returns the address spent by the first input of the given
// transaction.
func (c *Client) ResolvePayer(ctx context.Context, txHash string) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("/txs/%s/utxos", txHash), nil)
	if err != nil {
		return "", errors.PAYER_UNRESOLVED.Wrap(err).
			WithMetadata(errors.PayerMetadata{Txid: txHash})
	}

	var tx txUtxos
	if err := json.Unmarshal(body, &tx); err != nil {
		return "", errors.PAYER_UNRESOLVED.New("invalid transaction document").
			WithMetadata(errors.PayerMetadata{Txid: txHash})
	}
	if len(tx.Inputs) == 0 || tx.Inputs[0].Address == "" {
		return "", errors.PAYER_UNRESOLVED.New("transaction has no inputs").
			WithMetadata(errors.PayerMetadata{Txid: txHash})
	}
	return tx.Inputs[0].Address, nil
}

type statusError struct {
	status int
	body   string
}

func (e statusError) Error() string {
	return fmt.Sprintf("blockfrost responded with status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(statusError)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		log.WithField("path", path).Debugf("blockfrost status %d", resp.StatusCode())
		return nil, statusError{resp.StatusCode(), strings.TrimSpace(resp.String())}
	}
	return resp.Body(), nil
}

func (u addressUtxo) toDomain(address string) (*domain.UnspentOutput, error) {
	if !domain.IsTxHash(u.TxHash) || u.OutputIndex == nil || *u.OutputIndex < 0 {
		return nil, malformed("utxo", u.TxHash)
	}
	outpoint := domain.Outpoint{TxHash: u.TxHash, OutputIndex: *u.OutputIndex}

	for _, a := range u.Amount {
		if a.Unit != lovelaceUnit {
			continue
		}
		lovelace, err := strconv.ParseUint(a.Quantity, 10, 64)
		if err != nil {
			return nil, malformed("utxo", outpoint.String())
		}
		return &domain.UnspentOutput{
			Outpoint: outpoint,
			Address:  address,
			Lovelace: lovelace,
		}, nil
	}
	return nil, malformed("utxo", outpoint.String())
}

func malformed(query, line string) error {
	return errors.MALFORMED_LEDGER_RESPONSE.New("unexpected %s response: %q", query, line).
		WithMetadata(errors.MalformedResponseMetadata{Query: query, Line: line})
}
