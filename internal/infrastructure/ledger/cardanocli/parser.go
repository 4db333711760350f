package cardanocli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/pkg/errors"
)

var (
	minUTXORegexp      = regexp.MustCompile(`Minimum required UTxO:\s*Lovelace\s+(\d+)`)
	estimatedFeeRegexp = regexp.MustCompile(`Estimated transaction fee:\s*(?:[A-Za-z]+\s+)?(\d+)`)
)

const submittedMessage = "Transaction successfully submitted"

// submitAccepted recognizes both the legacy confirmation line and the json
// document printed by newer nodes, e.g. {"txhash": "..."}.
func submitAccepted(out []byte) bool {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var res struct {
			TxHash string `json:"txhash"`
		}
		return json.Unmarshal(trimmed, &res) == nil && domain.IsTxHash(res.TxHash)
	}
	return strings.Contains(string(trimmed), submittedMessage)
}

// parseTip reads the slot out of the `query tip` json document.
func parseTip(out []byte) (uint64, error) {
	var tip struct {
		Slot *uint64 `json:"slot"`
	}
	if err := json.Unmarshal(out, &tip); err != nil || tip.Slot == nil {
		return 0, malformed("tip", strings.TrimSpace(string(out)))
	}
	return *tip.Slot, nil
}

// parseUTxOs accepts both the tabular and the json output of `query utxo`.
// Outputs are returned in the order they are listed.
func parseUTxOs(address string, out []byte) ([]domain.UnspentOutput, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return []domain.UnspentOutput{}, nil
	}
	if trimmed[0] == '{' {
		return parseUTxOsJSON(address, trimmed)
	}
	return parseUTxOsTable(address, trimmed)
}

func parseUTxOsTable(address string, out []byte) ([]domain.UnspentOutput, error) {
	utxos := make([]domain.UnspentOutput, 0)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "TxHash" || strings.HasPrefix(fields[0], "---") {
			continue
		}
		if len(fields) < 4 || !domain.IsTxHash(fields[0]) || fields[3] != "lovelace" {
			return nil, malformed("utxo", line)
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil || index < 0 {
			return nil, malformed("utxo", line)
		}
		amount, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, malformed("utxo", line)
		}

		utxos = append(utxos, domain.UnspentOutput{
			Outpoint: domain.Outpoint{TxHash: fields[0], OutputIndex: index},
			Address:  address,
			Lovelace: amount,
		})
	}
	return utxos, nil
}

type utxoEntry struct {
	Address string                     `json:"address"`
	Value   map[string]json.RawMessage `json:"value"`
}

func parseUTxOsJSON(address string, out []byte) ([]domain.UnspentOutput, error) {
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, malformed("utxo", string(out))
	}

	utxos := make([]domain.UnspentOutput, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed("utxo", string(out))
		}
		key, _ := tok.(string)

		var outpoint domain.Outpoint
		if err := outpoint.FromString(key); err != nil {
			return nil, malformed("utxo", key)
		}

		var entry utxoEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, malformed("utxo", key)
		}
		var lovelace uint64
		if err := json.Unmarshal(entry.Value["lovelace"], &lovelace); err != nil {
			return nil, malformed("utxo", key)
		}
		if entry.Address != "" {
			address = entry.Address
		}

		utxos = append(utxos, domain.UnspentOutput{
			Outpoint: outpoint,
			Address:  address,
			Lovelace: lovelace,
		})
	}
	return utxos, nil
}

// classifyBuild turns the free text printed by `transaction build` into a
// typed result.
func classifyBuild(txFile string, stdout, stderr []byte, runErr error) (uint64, error) {
	output := strings.TrimSpace(string(stdout) + "\n" + string(stderr))

	if match := minUTXORegexp.FindStringSubmatch(output); match != nil {
		minLovelace, err := strconv.ParseUint(match[1], 10, 64)
		if err == nil {
			return 0, errors.MIN_UTXO_VIOLATION.New("%s", output).
				WithMetadata(errors.MinUTXOMetadata{TxFile: txFile, MinLovelace: minLovelace})
		}
	}

	if runErr == nil {
		if match := estimatedFeeRegexp.FindStringSubmatch(output); match != nil {
			fee, err := strconv.ParseUint(match[1], 10, 64)
			if err == nil {
				return fee, nil
			}
		}
	}

	reason := output
	if reason == "" && runErr != nil {
		reason = runErr.Error()
	}
	return 0, errors.BUILD_REJECTED.New("%s", reason).
		WithMetadata(errors.BuildMetadata{TxFile: txFile, Output: output})
}

// parseMinFee reads outputs like "174785 Lovelace".
func parseMinFee(out []byte) (uint64, error) {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty fee estimation output")
	}
	return strconv.ParseUint(fields[0], 10, 64)
}

func malformed(query, line string) error {
	return errors.MALFORMED_LEDGER_RESPONSE.New("unexpected %s output: %q", query, line).
		WithMetadata(errors.MalformedResponseMetadata{Query: query, Line: line})
}
