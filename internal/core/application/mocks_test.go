package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"go.opentelemetry.io/otel/metric/noop"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CurrentSlot(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockLedger) ListUnspentOutputs(
	ctx context.Context, address string,
) ([]domain.UnspentOutput, error) {
	args := m.Called(ctx, address)
	var res []domain.UnspentOutput
	if a := args.Get(0); a != nil {
		res = a.([]domain.UnspentOutput)
	}
	return res, args.Error(1)
}

func (m *mockLedger) BuildTransaction(
	ctx context.Context, req ports.BuildRequest,
) (*ports.BuildResult, error) {
	args := m.Called(ctx, req)
	var res *ports.BuildResult
	if a := args.Get(0); a != nil {
		res = a.(*ports.BuildResult)
	}
	return res, args.Error(1)
}

func (m *mockLedger) BuildRawTransaction(
	ctx context.Context, req ports.RawBuildRequest,
) (*ports.BuildResult, error) {
	args := m.Called(ctx, req)
	var res *ports.BuildResult
	if a := args.Get(0); a != nil {
		res = a.(*ports.BuildResult)
	}
	return res, args.Error(1)
}

func (m *mockLedger) EstimateMinFee(ctx context.Context, req ports.FeeRequest) (uint64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockLedger) Sign(
	ctx context.Context, txFile string, signingKeys []string, outFile string,
) (string, error) {
	args := m.Called(ctx, txFile, signingKeys, outFile)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) Submit(ctx context.Context, signedTxFile string) error {
	args := m.Called(ctx, signedTxFile)
	return args.Error(0)
}

type mockPolicyTooling struct {
	mock.Mock
}

func (m *mockPolicyTooling) GenerateKeys(
	ctx context.Context, verificationKeyFile, signingKeyFile string,
) error {
	args := m.Called(ctx, verificationKeyFile, signingKeyFile)
	return args.Error(0)
}

func (m *mockPolicyTooling) KeyHash(ctx context.Context, verificationKeyFile string) (string, error) {
	args := m.Called(ctx, verificationKeyFile)
	return args.String(0), args.Error(1)
}

func (m *mockPolicyTooling) PolicyID(ctx context.Context, scriptFile string) (string, error) {
	args := m.Called(ctx, scriptFile)
	return args.String(0), args.Error(1)
}

type mockMetadata struct {
	mock.Mock
}

func (m *mockMetadata) PolicyID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockMetadata) PolicyScriptFile() string {
	return "policy/policy.script"
}

func (m *mockMetadata) MetadataFile(ctx context.Context, tokenID int) (string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.Error(1)
}

func (m *mockMetadata) AssetName(tokenID int) string {
	return fmt.Sprintf("token%05d", tokenID)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolvePayer(ctx context.Context, txHash string) (string, error) {
	args := m.Called(ctx, txHash)
	return args.String(0), args.Error(1)
}

type mockAlerts struct {
	mock.Mock
}

func (m *mockAlerts) Publish(ctx context.Context, topic ports.Topic, message any) error {
	args := m.Called(ctx, topic, message)
	return args.Error(0)
}

// fakeLedger is a deterministic in-memory ledger: submitting a transaction
// removes the output it spends from the unspent set.
type fakeLedger struct {
	mu      sync.Mutex
	slot    uint64
	utxos   []domain.UnspentOutput
	inputs  map[string]domain.Outpoint
	polls   int
	builds  []ports.BuildRequest
	raws    []ports.RawBuildRequest
	signed  []string
	submits []string

	fee        uint64
	failSignOn map[string]bool
	onPoll     func(polls int)
}

func newFakeLedger(utxos ...domain.UnspentOutput) *fakeLedger {
	return &fakeLedger{
		slot:       1000,
		utxos:      utxos,
		inputs:     make(map[string]domain.Outpoint),
		fee:        174785,
		failSignOn: make(map[string]bool),
	}
}

func (f *fakeLedger) pay(out domain.UnspentOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utxos = append(f.utxos, out)
}

func (f *fakeLedger) CurrentSlot(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slot++
	return f.slot, nil
}

func (f *fakeLedger) ListUnspentOutputs(context.Context, string) ([]domain.UnspentOutput, error) {
	f.mu.Lock()
	f.polls++
	polls, onPoll := f.polls, f.onPoll
	f.mu.Unlock()

	if onPoll != nil {
		onPoll(polls)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UnspentOutput{}, f.utxos...), nil
}

func (f *fakeLedger) BuildTransaction(
	_ context.Context, req ports.BuildRequest,
) (*ports.BuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, req)
	f.inputs[req.OutFile] = req.Inputs[0]
	return &ports.BuildResult{TxFile: req.OutFile, EstimatedFee: f.fee}, nil
}

func (f *fakeLedger) BuildRawTransaction(
	_ context.Context, req ports.RawBuildRequest,
) (*ports.BuildResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raws = append(f.raws, req)
	f.inputs[req.OutFile] = req.Inputs[0]
	return &ports.BuildResult{TxFile: req.OutFile}, nil
}

func (f *fakeLedger) EstimateMinFee(context.Context, ports.FeeRequest) (uint64, error) {
	return f.fee, nil
}

func (f *fakeLedger) Sign(
	_ context.Context, txFile string, _ []string, outFile string,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSignOn[txFile] {
		delete(f.failSignOn, txFile)
		return "", fmt.Errorf("missing signing key")
	}
	f.inputs[outFile] = f.inputs[txFile]
	f.signed = append(f.signed, outFile)
	return outFile, nil
}

func (f *fakeLedger) Submit(_ context.Context, signedTxFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	spent, ok := f.inputs[signedTxFile]
	if !ok {
		return fmt.Errorf("unknown transaction %s", signedTxFile)
	}
	f.submits = append(f.submits, signedTxFile)
	utxos := make([]domain.UnspentOutput, 0, len(f.utxos))
	for _, u := range f.utxos {
		if u.Outpoint != spent {
			utxos = append(utxos, u)
		}
	}
	f.utxos = utxos
	return nil
}

func (f *fakeLedger) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeRepoManager struct {
	checkpoints *fakeCheckpointRepo
	attempts    *fakeAttemptRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		checkpoints: &fakeCheckpointRepo{},
		attempts:    &fakeAttemptRepo{attempts: make(map[string]domain.Attempt)},
	}
}

func (r *fakeRepoManager) Checkpoints() domain.CheckpointRepository { return r.checkpoints }
func (r *fakeRepoManager) Attempts() domain.AttemptRepository       { return r.attempts }
func (r *fakeRepoManager) Close()                                   {}

type fakeCheckpointRepo struct {
	mu         sync.Mutex
	checkpoint *domain.Checkpoint
	history    []domain.Checkpoint

	getErr error
	// failFrom makes the nth upsert, and every later one, fail.
	failFrom int
	upserts  int
}

func (r *fakeCheckpointRepo) Get(context.Context) (*domain.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.checkpoint == nil {
		return nil, nil
	}
	c := *r.checkpoint
	return &c, nil
}

func (r *fakeCheckpointRepo) Upsert(_ context.Context, checkpoint domain.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.failFrom > 0 && r.upserts >= r.failFrom {
		return fmt.Errorf("disk full")
	}
	r.checkpoint = &checkpoint
	r.history = append(r.history, checkpoint)
	return nil
}

func (r *fakeCheckpointRepo) Close() {}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
}

func (r *fakeAttemptRepo) Add(_ context.Context, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, attempt domain.Attempt) error {
	return r.Add(ctx, attempt)
}

func (r *fakeAttemptRepo) Get(_ context.Context, id string) (*domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *fakeAttemptRepo) List(
	_ context.Context, kind domain.AttemptKind,
) ([]domain.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]domain.Attempt, 0, len(r.attempts))
	for _, a := range r.attempts {
		if kind == "" || a.Kind == kind {
			list = append(list, a)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		if list[i].TokenID != list[j].TokenID {
			return list[i].TokenID < list[j].TokenID
		}
		return list[i].Source.OutputIndex < list[j].Source.OutputIndex
	})
	return list, nil
}

func (r *fakeAttemptRepo) ListFailed(ctx context.Context) ([]domain.Attempt, error) {
	all, err := r.List(ctx, "")
	if err != nil {
		return nil, err
	}
	failed := make([]domain.Attempt, 0)
	for _, a := range all {
		if a.IsFailed() {
			failed = append(failed, a)
		}
	}
	return failed, nil
}

func (r *fakeAttemptRepo) Close() {}

// fakeClock advances only when the code under test sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

const (
	testTreasury = "addr_test1treasury"
	testFee      = uint64(100000000)
)

func testConfig() Config {
	return Config{
		TreasuryAddress:   testTreasury,
		Fee:               testFee,
		SlotMargin:        10000,
		StartingID:        1,
		TotalMint:         3,
		RefundTime:        4 * time.Hour,
		IdleBackoff:       5 * time.Second,
		CycleBackoff:      15 * time.Second,
		MintTxDir:         "matx",
		RefundTxDir:       "refund",
		PaymentSigningKey: "payment.skey",
		PolicySigningKey:  "policy/policy.skey",
	}
}

func testMetrics() *metrics {
	m, err := newMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}

func newTestOrchestrator(
	ledger ports.LedgerClient, metadata ports.MetadataProvider, resolver ports.PayerResolver,
	repo ports.RepoManager, clock *fakeClock,
) *orchestrator {
	cfg := testConfig()
	m := testMetrics()
	return &orchestrator{
		cfg:         cfg,
		detector:    newEventDetector(ledger, cfg.TreasuryAddress, cfg.Fee),
		builder:     newTxBuilder(ledger, metadata, cfg, m),
		resolver:    resolver,
		repoManager: repo,
		metrics:     m,
		counters:    &counters{},
		sleep:       clock.Sleep,
		now:         clock.Now,
	}
}
