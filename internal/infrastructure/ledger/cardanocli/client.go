package cardanocli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

const (
	defaultBinary       = "cardano-cli"
	DefaultTestnetMagic = 1097911063

	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

type Config struct {
	Binary             string
	Network            string
	TestnetMagic       uint32
	Era                string
	ProtocolParamsFile string
}

type Option func(*client)

func WithRunner(runner Runner) Option {
	return func(c *client) {
		c.runner = runner
	}
}

type client struct {
	binary      string
	networkArgs []string
	eraArgs     []string
	paramsFile  string
	runner      Runner

	paramsMu sync.Mutex
}

func NewClient(cfg Config, opts ...Option) (ports.LedgerClient, error) {
	svc, err := newClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// NewPolicyTooling returns the key and policy commands of the same binary.
func NewPolicyTooling(cfg Config, opts ...Option) (ports.PolicyTooling, error) {
	svc, err := newClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newClient(cfg Config, opts ...Option) (*client, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}

	var networkArgs []string
	switch cfg.Network {
	case NetworkMainnet:
		networkArgs = []string{"--mainnet"}
	case NetworkTestnet, "":
		magic := cfg.TestnetMagic
		if magic == 0 {
			magic = DefaultTestnetMagic
		}
		networkArgs = []string{"--testnet-magic", strconv.FormatUint(uint64(magic), 10)}
	default:
		return nil, fmt.Errorf("unknown network %s", cfg.Network)
	}

	var eraArgs []string
	if cfg.Era != "" {
		eraArgs = []string{"--" + strings.TrimPrefix(cfg.Era, "--")}
	}

	paramsFile := cfg.ProtocolParamsFile
	if paramsFile == "" {
		paramsFile = "protocol.json"
	}

	svc := &client{
		binary:      binary,
		networkArgs: networkArgs,
		eraArgs:     eraArgs,
		paramsFile:  paramsFile,
		runner:      execRunner{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (c *client) CurrentSlot(ctx context.Context) (uint64, error) {
	stdout, stderr, err := c.run(ctx, c.withNetwork("query", "tip")...)
	if err != nil {
		return 0, errors.CHAIN_QUERY_FAILED.New("%s", failureReason(stderr, err)).
			WithMetadata(errors.QueryMetadata{Query: "tip"})
	}
	return parseTip(stdout)
}

func (c *client) ListUnspentOutputs(
	ctx context.Context, address string,
) ([]domain.UnspentOutput, error) {
	stdout, stderr, err := c.run(
		ctx, c.withNetwork("query", "utxo", "--address", address)...,
	)
	if err != nil {
		return nil, errors.CHAIN_QUERY_FAILED.New("%s", failureReason(stderr, err)).
			WithMetadata(errors.QueryMetadata{Query: "utxo", Address: address})
	}
	return parseUTxOs(address, stdout)
}

func (c *client) BuildTransaction(
	ctx context.Context, req ports.BuildRequest,
) (*ports.BuildResult, error) {
	if err := ensureDir(req.OutFile); err != nil {
		return nil, err
	}

	args := append([]string{"transaction", "build"}, c.eraArgs...)
	args = append(args, inputArgs(req.Inputs)...)
	args = append(args, outputArgs(req.Outputs)...)
	args = append(args, "--change-address", req.ChangeAddress)
	if req.Mint != nil {
		args = append(args,
			"--mint", assetsValue(req.Mint.Assets),
			"--minting-script-file", req.Mint.ScriptFile,
		)
	}
	if req.MetadataFile != "" {
		args = append(args, "--metadata-json-file", req.MetadataFile)
	}
	if req.InvalidHereafter > 0 {
		args = append(args, "--invalid-hereafter", strconv.FormatUint(req.InvalidHereafter, 10))
	}
	if req.WitnessOverride > 0 {
		args = append(args, "--witness-override", strconv.Itoa(req.WitnessOverride))
	}
	args = append(args, "--out-file", req.OutFile)

	stdout, stderr, err := c.run(ctx, c.withNetwork(args...)...)
	fee, err := classifyBuild(req.OutFile, stdout, stderr, err)
	if err != nil {
		return nil, err
	}

	log.Debugf("built %s, estimated fee %d", req.OutFile, fee)
	return &ports.BuildResult{TxFile: req.OutFile, EstimatedFee: fee}, nil
}

func (c *client) BuildRawTransaction(
	ctx context.Context, req ports.RawBuildRequest,
) (*ports.BuildResult, error) {
	if err := ensureDir(req.OutFile); err != nil {
		return nil, err
	}

	args := append([]string{"transaction", "build-raw"}, c.eraArgs...)
	args = append(args, inputArgs(req.Inputs)...)
	args = append(args, outputArgs(req.Outputs)...)
	args = append(args,
		"--ttl", strconv.FormatUint(req.TTL, 10),
		"--fee", strconv.FormatUint(req.Fee, 10),
		"--out-file", req.OutFile,
	)

	_, stderr, err := c.run(ctx, args...)
	if err != nil || len(strings.TrimSpace(string(stderr))) > 0 {
		reason := failureReason(stderr, err)
		return nil, errors.BUILD_REJECTED.New("%s", reason).
			WithMetadata(errors.BuildMetadata{TxFile: req.OutFile, Output: reason})
	}
	return &ports.BuildResult{TxFile: req.OutFile, EstimatedFee: req.Fee}, nil
}

func (c *client) EstimateMinFee(ctx context.Context, req ports.FeeRequest) (uint64, error) {
	if err := c.ensureProtocolParams(ctx); err != nil {
		return 0, errors.FEE_ESTIMATION_FAILED.Wrap(err).
			WithMetadata(errors.TxFileMetadata{TxFile: req.TxFile})
	}

	args := c.withNetwork(
		"transaction", "calculate-min-fee",
		"--tx-body-file", req.TxFile,
		"--tx-in-count", strconv.Itoa(req.InputCount),
		"--tx-out-count", strconv.Itoa(req.OutputCount),
		"--witness-count", strconv.Itoa(req.WitnessCount),
		"--byron-witness-count", "0",
	)
	args = append(args, "--protocol-params-file", c.paramsFile)

	stdout, stderr, err := c.run(ctx, args...)
	if err != nil {
		return 0, errors.FEE_ESTIMATION_FAILED.New("%s", failureReason(stderr, err)).
			WithMetadata(errors.TxFileMetadata{TxFile: req.TxFile})
	}
	fee, err := parseMinFee(stdout)
	if err != nil {
		return 0, errors.FEE_ESTIMATION_FAILED.Wrap(err).
			WithMetadata(errors.TxFileMetadata{TxFile: req.TxFile})
	}
	return fee, nil
}

func (c *client) Sign(
	ctx context.Context, txFile string, signingKeys []string, outFile string,
) (string, error) {
	if err := ensureDir(outFile); err != nil {
		return "", err
	}

	args := []string{"transaction", "sign", "--tx-body-file", txFile}
	for _, key := range signingKeys {
		args = append(args, "--signing-key-file", key)
	}
	args = c.withNetwork(args...)
	args = append(args, "--out-file", outFile)

	_, stderr, err := c.run(ctx, args...)
	if err != nil || len(strings.TrimSpace(string(stderr))) > 0 {
		return "", errors.SIGNING_FAILED.New("%s", failureReason(stderr, err)).
			WithMetadata(errors.TxFileMetadata{TxFile: txFile})
	}
	return outFile, nil
}

// Submit hands the signed transaction to the node exactly once.
func (c *client) Submit(ctx context.Context, signedTxFile string) error {
	stdout, stderr, err := c.run(
		ctx, c.withNetwork("transaction", "submit", "--tx-file", signedTxFile)...,
	)
	if err != nil || !submitAccepted(stdout) {
		reason := failureReason(stderr, err)
		if reason == "" {
			reason = strings.TrimSpace(string(stdout))
		}
		return errors.SUBMIT_REJECTED.New("%s", reason).
			WithMetadata(errors.TxFileMetadata{TxFile: signedTxFile})
	}
	return nil
}

func (c *client) ensureProtocolParams(ctx context.Context) error {
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()

	if _, err := os.Stat(c.paramsFile); err == nil {
		return nil
	}
	if err := ensureDir(c.paramsFile); err != nil {
		return err
	}

	log.Debugf("fetching protocol parameters into %s", c.paramsFile)
	_, stderr, err := c.run(ctx, c.withNetwork(
		"query", "protocol-parameters", "--out-file", c.paramsFile,
	)...)
	if err != nil {
		return fmt.Errorf("failed to query protocol parameters: %s", failureReason(stderr, err))
	}
	return nil
}

func (c *client) run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	log.Tracef("%s %s", c.binary, strings.Join(args, " "))
	return c.runner.Run(ctx, c.binary, args...)
}

func (c *client) withNetwork(args ...string) []string {
	return append(args, c.networkArgs...)
}

func inputArgs(inputs []domain.Outpoint) []string {
	args := make([]string, 0, 2*len(inputs))
	for _, in := range inputs {
		args = append(args, "--tx-in", in.String())
	}
	return args
}

func outputArgs(outputs []ports.TxOutput) []string {
	args := make([]string, 0, 2*len(outputs))
	for _, out := range outputs {
		value := fmt.Sprintf("%s+%d", out.Address, out.Lovelace)
		if len(out.Assets) > 0 {
			value += "+" + assetsValue(out.Assets)
		}
		args = append(args, "--tx-out", value)
	}
	return args
}

func assetsValue(assets []domain.Asset) string {
	values := make([]string, 0, len(assets))
	for _, a := range assets {
		values = append(values, fmt.Sprintf("%d %s", a.Quantity, a.Unit()))
	}
	return strings.Join(values, "+")
}

func failureReason(stderr []byte, err error) string {
	if reason := strings.TrimSpace(string(stderr)); reason != "" {
		return reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func ensureDir(file string) error {
	dir := filepath.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
