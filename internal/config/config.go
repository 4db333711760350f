package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/application"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/internal/infrastructure/alertsmanager"
	"github.com/tokenfund/mintd/internal/infrastructure/db"
	watermillbus "github.com/tokenfund/mintd/internal/infrastructure/events/watermill"
	"github.com/tokenfund/mintd/internal/infrastructure/ledger"
	"github.com/tokenfund/mintd/internal/infrastructure/ledger/blockfrost"
	"github.com/tokenfund/mintd/internal/infrastructure/ledger/cardanocli"
	inmemorylock "github.com/tokenfund/mintd/internal/infrastructure/lock/inmemory"
	redislock "github.com/tokenfund/mintd/internal/infrastructure/lock/redis"
	filemetadata "github.com/tokenfund/mintd/internal/infrastructure/metadata/file"
	timescheduler "github.com/tokenfund/mintd/internal/infrastructure/scheduler/gocron"
	slotscheduler "github.com/tokenfund/mintd/internal/infrastructure/scheduler/slot"
	"github.com/urfave/cli/v2"
)

var (
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
		"slot":   {},
	}
	supportedLocks = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedChainBackends = supportedType{
		"cli":        {},
		"blockfrost": {},
	}
	supportedPayerResolvers = supportedType{
		"blockfrost": {},
		"static":     {},
	}
	supportedNetworks = supportedType{
		cardanocli.NetworkMainnet: {},
		cardanocli.NetworkTestnet: {},
	}
)

type Config struct {
	Datadir  string
	LogLevel int

	TreasuryAddress   string
	Fee               uint64
	SlotMargin        uint64
	StartingID        int
	TotalMint         int
	RefundTime        time.Duration
	IdleBackoff       time.Duration
	CycleBackoff      time.Duration
	HeartbeatInterval time.Duration

	WorkDir           string
	AssetPrefix       string
	MintTxDir         string
	RefundTxDir       string
	PaymentSigningKey string
	PolicySigningKey  string

	CardanoCliPath     string
	Network            string
	TestnetMagic       uint32
	Era                string
	ProtocolParamsFile string

	ChainBackend        string
	BlockfrostURL       string
	BlockfrostProjectID string
	PayerResolver       string
	StaticPayerAddress  string

	DbType       string
	DbDir        string
	DbUrl        string
	DbAutoCreate bool

	LockType            string
	RedisUrl            string
	RedisTxNumOfRetries int
	LockTTL             time.Duration

	SchedulerType string

	AlertManagerURL string
	ExplorerURL     string

	OtelCollectorEndpoint string
	OtelPushInterval      int64
	PyroscopeServerURL    string

	repo      ports.RepoManager
	svc       application.Service
	ledger    ports.LedgerClient
	metadata  ports.MetadataProvider
	resolver  ports.PayerResolver
	bus       ports.EventBus
	lock      ports.InstanceLock
	scheduler ports.SchedulerService
	alerts    ports.Alerts
}

func (c *Config) String() string {
	clone := *c
	if clone.BlockfrostProjectID != "" {
		clone.BlockfrostProjectID = "••••••"
	}
	if clone.DbUrl != "" {
		clone.DbUrl = "••••••"
	}
	if clone.RedisUrl != "" {
		clone.RedisUrl = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = appDataDir("mintd")
	defaultLogLevel            = 4
	defaultFee                 = 100000000
	defaultSlotMargin          = 10000
	defaultStartingID          = 1
	defaultTotalMint           = 1
	defaultRefundTime          = 4 * time.Hour
	defaultIdleBackoff         = 5 * time.Second
	defaultCycleBackoff        = 15 * time.Second
	defaultHeartbeatInterval   = 60 * time.Second
	defaultAssetPrefix         = filemetadata.DefaultAssetPrefix
	defaultCardanoCliPath      = "cardano-cli"
	defaultNetwork             = cardanocli.NetworkTestnet
	defaultTestnetMagic        = cardanocli.DefaultTestnetMagic
	defaultEra                 = "alonzo-era"
	defaultChainBackend        = "cli"
	defaultPayerResolver       = "blockfrost"
	defaultBlockfrostURL       = "https://cardano-testnet.blockfrost.io/api/v0"
	defaultDbType              = "sqlite"
	defaultLockType            = "inmemory"
	defaultRedisTxNumOfRetries = 10
	defaultLockTTL             = 30 * time.Second
	defaultSchedulerType       = "gocron"
	defaultExplorerURL         = "https://testnet.cardanoscan.io"
	defaultOtelPushInterval    = 10 // seconds
)

// env returns a list of strings prefixed with `MINTD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("MINTD_%s", value)
	}
	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	TreasuryAddress = &cli.StringFlag{
		Usage: "Address receiving the payments, it is also used to fund mints and refunds",
		Name:  "treasury-address", EnvVars: env("TREASURY_ADDRESS"),
	}

	Fee = &cli.Uint64Flag{
		Usage: "Exact payment in lovelace that buys one token",
		Name:  "fee", EnvVars: env("FEE"),
		Value: uint64(defaultFee),
	}

	SlotMargin = &cli.Uint64Flag{
		Usage: "Number of slots after the current tip a transaction stays valid for",
		Name:  "slot-margin", EnvVars: env("SLOT_MARGIN"),
		Value: uint64(defaultSlotMargin),
	}

	StartingID = &cli.IntFlag{
		Usage: "Id of the first token to mint",
		Name:  "starting-id", EnvVars: env("STARTING_ID"),
		Value: defaultStartingID,
	}

	TotalMint = &cli.IntFlag{
		Usage: "Id of the last token to mint",
		Name:  "total-mint", EnvVars: env("TOTAL_MINT"),
		Value: defaultTotalMint,
	}

	RefundTime = &cli.DurationFlag{
		Usage: "How long payments are refunded once the collection is sold out",
		Name:  "refund-time", EnvVars: env("REFUND_TIME"),
		Value: defaultRefundTime,
	}

	IdleBackoff = &cli.DurationFlag{
		Usage: "Pause between chain polls when no payment is found",
		Name:  "idle-backoff", EnvVars: env("IDLE_BACKOFF"),
		Value: defaultIdleBackoff,
	}

	CycleBackoff = &cli.DurationFlag{
		Usage: "Pause after every submitted or failed attempt",
		Name:  "cycle-backoff", EnvVars: env("CYCLE_BACKOFF"),
		Value: defaultCycleBackoff,
	}

	HeartbeatInterval = &cli.DurationFlag{
		Usage: "Interval between progress reports, 0 disables them",
		Name:  "heartbeat-interval", EnvVars: env("HEARTBEAT_INTERVAL"),
		Value: defaultHeartbeatInterval,
	}

	WorkDir = &cli.StringFlag{
		Usage: "Directory holding the policy/ and metadata/ folders, defaults to the datadir",
		Name:  "work-dir", EnvVars: env("WORK_DIR"),
	}

	AssetPrefix = &cli.StringFlag{
		Usage: "Prefix of the on-chain token names",
		Name:  "asset-prefix", EnvVars: env("ASSET_PREFIX"),
		Value: defaultAssetPrefix,
	}

	MintTxDir = &cli.StringFlag{
		Usage: "Directory for mint transaction files, defaults to <work-dir>/matx",
		Name:  "mint-tx-dir", EnvVars: env("MINT_TX_DIR"),
	}

	RefundTxDir = &cli.StringFlag{
		Usage: "Directory for refund transaction files, defaults to <work-dir>/refund",
		Name:  "refund-tx-dir", EnvVars: env("REFUND_TX_DIR"),
	}

	PaymentSigningKey = &cli.StringFlag{
		Usage: "Signing key file of the treasury address, defaults to <work-dir>/payment.skey",
		Name:  "payment-skey", EnvVars: env("PAYMENT_SKEY"),
	}

	PolicySigningKey = &cli.StringFlag{
		Usage: "Signing key file of the minting policy, defaults to <work-dir>/policy/policy.skey",
		Name:  "policy-skey", EnvVars: env("POLICY_SKEY"),
	}

	CardanoCliPath = &cli.StringFlag{
		Usage: "Path of the cardano-cli binary",
		Name:  "cardano-cli", EnvVars: env("CARDANO_CLI"),
		Value: defaultCardanoCliPath,
	}

	Network = &cli.StringFlag{
		Usage: "Cardano network (mainnet, testnet)",
		Name:  "network", EnvVars: env("NETWORK"),
		Value: defaultNetwork,
	}

	TestnetMagic = &cli.UintFlag{
		Usage: "Network magic used when the network is testnet",
		Name:  "testnet-magic", EnvVars: env("TESTNET_MAGIC"),
		Value: uint(defaultTestnetMagic),
	}

	Era = &cli.StringFlag{
		Usage: "Ledger era flag passed to cardano-cli transaction commands",
		Name:  "era", EnvVars: env("ERA"),
		Value: defaultEra,
	}

	ProtocolParamsFile = &cli.StringFlag{
		Usage: "Protocol parameters file, fetched from the node if missing, defaults to <datadir>/protocol.json",
		Name:  "protocol-params-file", EnvVars: env("PROTOCOL_PARAMS_FILE"),
	}

	ChainBackend = &cli.StringFlag{
		Usage: "Backend for chain queries (cli, blockfrost)",
		Name:  "chain-backend", EnvVars: env("CHAIN_BACKEND"),
		Value: defaultChainBackend,
	}

	BlockfrostURL = &cli.StringFlag{
		Usage: "Blockfrost api url",
		Name:  "blockfrost-url", EnvVars: env("BLOCKFROST_URL"),
		Value: defaultBlockfrostURL,
	}

	BlockfrostProjectID = &cli.StringFlag{
		Usage: "Blockfrost project id",
		Name:  "blockfrost-project-id", EnvVars: env("BLOCKFROST_PROJECT_ID"),
	}

	PayerResolver = &cli.StringFlag{
		Usage: "How refund recipients are resolved (blockfrost, static)",
		Name:  "payer-resolver", EnvVars: env("PAYER_RESOLVER"),
		Value: defaultPayerResolver,
	}

	StaticPayerAddress = &cli.StringFlag{
		Usage: "Refund address if MINTD_PAYER_RESOLVER is set to static",
		Name:  "static-payer-address", EnvVars: env("STATIC_PAYER_ADDRESS"),
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (postgres, sqlite, badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if MINTD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	DbAutoCreate = &cli.BoolFlag{
		Usage: "Create the postgres database if it does not exist",
		Name:  "pg-db-autocreate", EnvVars: env("PG_DB_AUTOCREATE"),
	}

	LockType = &cli.StringFlag{
		Usage: "Instance lock type (inmemory, redis)",
		Name:  "lock-type", EnvVars: env("LOCK_TYPE"),
		Value: defaultLockType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if MINTD_LOCK_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	LockTTL = &cli.DurationFlag{
		Usage: "Lease duration of the redis instance lock",
		Name:  "lock-ttl", EnvVars: env("LOCK_TTL"),
		Value: defaultLockTTL,
	}

	SchedulerType = &cli.StringFlag{
		Usage: "Scheduler type for periodic reports (gocron, slot)",
		Name:  "scheduler-type", EnvVars: env("SCHEDULER_TYPE"),
		Value: defaultSchedulerType,
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "Alertmanager url, alerts are disabled if empty",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}

	ExplorerURL = &cli.StringFlag{
		Usage: "Block explorer url used to link transactions in alerts",
		Name:  "explorer-url", EnvVars: env("EXPLORER_URL"),
		Value: defaultExplorerURL,
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint",
		Name:  "otel-collector-endpoint", EnvVars: env("OTEL_COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "OpenTelemetry push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: int64(defaultOtelPushInterval),
	}

	PyroscopeServerURL = &cli.StringFlag{
		Usage: "Pyroscope server url, profiling is disabled if empty",
		Name:  "pyroscope-server-url", EnvVars: env("PYROSCOPE_SERVER_URL"),
	}
)

var Flags = []cli.Flag{
	Datadir,
	LogLevel,
	TreasuryAddress,
	Fee,
	SlotMargin,
	StartingID,
	TotalMint,
	RefundTime,
	IdleBackoff,
	CycleBackoff,
	HeartbeatInterval,
	WorkDir,
	AssetPrefix,
	MintTxDir,
	RefundTxDir,
	PaymentSigningKey,
	PolicySigningKey,
	CardanoCliPath,
	Network,
	TestnetMagic,
	Era,
	ProtocolParamsFile,
	ChainBackend,
	BlockfrostURL,
	BlockfrostProjectID,
	PayerResolver,
	StaticPayerAddress,
	DbType,
	DbUrl,
	DbAutoCreate,
	LockType,
	RedisUrl,
	RedisTxNumOfRetries,
	LockTTL,
	SchedulerType,
	AlertManagerURL,
	ExplorerURL,
	OtelCollectorEndpoint,
	OtelPushInterval,
	PyroscopeServerURL,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	datadir := c.String(Datadir.Name)
	dbPath := filepath.Join(datadir, "db")

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(LockType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("lock type set to 'redis' but redis url is missing")
		}
	}

	workDir := c.String(WorkDir.Name)
	if workDir == "" {
		workDir = datadir
	}

	return &Config{
		Datadir:             datadir,
		LogLevel:            c.Int(LogLevel.Name),
		TreasuryAddress:     c.String(TreasuryAddress.Name),
		Fee:                 c.Uint64(Fee.Name),
		SlotMargin:          c.Uint64(SlotMargin.Name),
		StartingID:          c.Int(StartingID.Name),
		TotalMint:           c.Int(TotalMint.Name),
		RefundTime:          c.Duration(RefundTime.Name),
		IdleBackoff:         c.Duration(IdleBackoff.Name),
		CycleBackoff:        c.Duration(CycleBackoff.Name),
		HeartbeatInterval:   c.Duration(HeartbeatInterval.Name),
		WorkDir:             workDir,
		AssetPrefix:         c.String(AssetPrefix.Name),
		MintTxDir:           withDefault(c.String(MintTxDir.Name), workDir, "matx"),
		RefundTxDir:         withDefault(c.String(RefundTxDir.Name), workDir, "refund"),
		PaymentSigningKey:   withDefault(c.String(PaymentSigningKey.Name), workDir, "payment.skey"),
		PolicySigningKey:    withDefault(c.String(PolicySigningKey.Name), workDir, "policy", "policy.skey"),
		CardanoCliPath:      c.String(CardanoCliPath.Name),
		Network:             c.String(Network.Name),
		TestnetMagic:        uint32(c.Uint(TestnetMagic.Name)),
		Era:                 c.String(Era.Name),
		ProtocolParamsFile:  withDefault(c.String(ProtocolParamsFile.Name), datadir, "protocol.json"),
		ChainBackend:        c.String(ChainBackend.Name),
		BlockfrostURL:       c.String(BlockfrostURL.Name),
		BlockfrostProjectID: c.String(BlockfrostProjectID.Name),
		PayerResolver:       c.String(PayerResolver.Name),
		StaticPayerAddress:  c.String(StaticPayerAddress.Name),
		DbType:              c.String(DbType.Name),
		DbDir:               dbPath,
		DbUrl:               dbUrl,
		DbAutoCreate:        c.Bool(DbAutoCreate.Name),
		LockType:            c.String(LockType.Name),
		RedisUrl:            redisUrl,
		RedisTxNumOfRetries: c.Int(RedisTxNumOfRetries.Name),
		LockTTL:             c.Duration(LockTTL.Name),
		SchedulerType:       c.String(SchedulerType.Name),
		AlertManagerURL:     c.String(AlertManagerURL.Name),
		ExplorerURL:         c.String(ExplorerURL.Name),

		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
		PyroscopeServerURL:    c.String(PyroscopeServerURL.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func withDefault(value, baseDir string, elem ...string) string {
	if value != "" {
		return value
	}
	return filepath.Join(append([]string{baseDir}, elem...)...)
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf(
			"scheduler type not supported, please select one of: %s",
			supportedSchedulers,
		)
	}
	if !supportedLocks.supports(c.LockType) {
		return fmt.Errorf("lock type not supported, please select one of: %s", supportedLocks)
	}
	if !supportedChainBackends.supports(c.ChainBackend) {
		return fmt.Errorf(
			"chain backend not supported, please select one of: %s",
			supportedChainBackends,
		)
	}
	if !supportedPayerResolvers.supports(c.PayerResolver) {
		return fmt.Errorf(
			"payer resolver not supported, please select one of: %s",
			supportedPayerResolvers,
		)
	}
	if !supportedNetworks.supports(c.Network) {
		return fmt.Errorf("network not supported, please select one of: %s", supportedNetworks)
	}
	if c.TreasuryAddress == "" {
		return fmt.Errorf("missing treasury address")
	}
	if c.Fee == 0 {
		return fmt.Errorf("invalid fee, must be greater than zero")
	}
	if c.StartingID < 0 {
		return fmt.Errorf("invalid starting id, must not be negative")
	}
	if c.TotalMint < c.StartingID {
		return fmt.Errorf("invalid total mint, must not be lower than starting id")
	}
	if c.RefundTime < 0 {
		return fmt.Errorf("invalid refund time, must not be negative")
	}
	if c.IdleBackoff < 0 || c.CycleBackoff < 0 {
		return fmt.Errorf("invalid backoff, must not be negative")
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("invalid heartbeat interval, must not be negative")
	}
	if (c.ChainBackend == "blockfrost" || c.PayerResolver == "blockfrost") &&
		c.BlockfrostProjectID == "" {
		return fmt.Errorf("blockfrost selected but blockfrost project id is missing")
	}
	if c.PayerResolver == "static" && c.StaticPayerAddress == "" {
		return fmt.Errorf("payer resolver set to 'static' but static payer address is missing")
	}
	if c.LockType == "redis" && c.RedisTxNumOfRetries < 1 {
		return fmt.Errorf("invalid redis num of retries, must be at least 1")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval < 1 {
		return fmt.Errorf("invalid otel push interval, must be at least 1 second")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.ledgerService(); err != nil {
		return err
	}
	if err := c.metadataService(); err != nil {
		return err
	}
	if err := c.resolverService(); err != nil {
		return err
	}
	if err := c.lockService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	c.bus = watermillbus.NewBus()
	if err := c.appService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, c.DbAutoCreate}
	default:
		return fmt.Errorf("unknown db type")
	}

	if c.DbType != "postgres" {
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return fmt.Errorf("failed to create db dir: %s", err)
		}
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) ledgerService() error {
	cliClient, err := cardanocli.NewClient(c.cardanoCliConfig())
	if err != nil {
		return err
	}
	querier, err := c.chainQuerier(cliClient)
	if err != nil {
		return err
	}

	svc, err := ledger.NewService(querier, cliClient)
	if err != nil {
		return err
	}

	c.ledger = svc
	return nil
}

// PolicyService wires the policy preparation, which needs the chain tip and
// cardano-cli but none of the sales settings.
func (c *Config) PolicyService() (application.PolicyService, error) {
	if !supportedChainBackends.supports(c.ChainBackend) {
		return nil, fmt.Errorf(
			"chain backend not supported, please select one of: %s",
			supportedChainBackends,
		)
	}
	if !supportedNetworks.supports(c.Network) {
		return nil, fmt.Errorf("network not supported, please select one of: %s", supportedNetworks)
	}
	if c.ChainBackend == "blockfrost" && c.BlockfrostProjectID == "" {
		return nil, fmt.Errorf("blockfrost selected but blockfrost project id is missing")
	}

	cliClient, err := cardanocli.NewClient(c.cardanoCliConfig())
	if err != nil {
		return nil, err
	}
	querier, err := c.chainQuerier(cliClient)
	if err != nil {
		return nil, err
	}
	tooling, err := cardanocli.NewPolicyTooling(c.cardanoCliConfig())
	if err != nil {
		return nil, err
	}
	return application.NewPolicyService(
		querier, tooling, filepath.Join(c.WorkDir, "policy"), c.PolicySigningKey,
	)
}

func (c *Config) cardanoCliConfig() cardanocli.Config {
	return cardanocli.Config{
		Binary:             c.CardanoCliPath,
		Network:            c.Network,
		TestnetMagic:       c.TestnetMagic,
		Era:                c.Era,
		ProtocolParamsFile: c.ProtocolParamsFile,
	}
}

func (c *Config) chainQuerier(cliClient ports.ChainQuerier) (ports.ChainQuerier, error) {
	switch c.ChainBackend {
	case "cli":
		return cliClient, nil
	case "blockfrost":
		client, err := c.blockfrostClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown chain backend")
	}
}

func (c *Config) blockfrostClient() (*blockfrost.Client, error) {
	return blockfrost.NewClient(c.BlockfrostURL, c.BlockfrostProjectID)
}

func (c *Config) metadataService() error {
	svc, err := filemetadata.NewService(c.WorkDir, c.AssetPrefix)
	if err != nil {
		return err
	}

	c.metadata = svc
	return nil
}

func (c *Config) resolverService() error {
	var svc ports.PayerResolver
	var err error
	switch c.PayerResolver {
	case "blockfrost":
		svc, err = c.blockfrostClient()
	case "static":
		svc, err = ledger.NewStaticResolver(c.StaticPayerAddress)
	default:
		err = fmt.Errorf("unknown payer resolver")
	}
	if err != nil {
		return err
	}

	c.resolver = svc
	return nil
}

func (c *Config) lockService() error {
	var svc ports.InstanceLock
	switch c.LockType {
	case "inmemory":
		svc = inmemorylock.NewLock()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		svc = redislock.NewLock(rdb, c.LockTTL, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown lock type")
	}

	c.lock = svc
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	case "slot":
		if c.ledger == nil {
			return fmt.Errorf("ledger not set")
		}
		svc, err = slotscheduler.NewScheduler(c.ledger)
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL, c.ExplorerURL)
	return nil
}

func (c *Config) appService() error {
	if c.svc != nil {
		return nil
	}

	svc, err := application.NewService(
		application.Config{
			TreasuryAddress:   c.TreasuryAddress,
			Fee:               c.Fee,
			SlotMargin:        c.SlotMargin,
			StartingID:        c.StartingID,
			TotalMint:         c.TotalMint,
			RefundTime:        c.RefundTime,
			IdleBackoff:       c.IdleBackoff,
			CycleBackoff:      c.CycleBackoff,
			HeartbeatInterval: c.HeartbeatInterval,
			MintTxDir:         c.MintTxDir,
			RefundTxDir:       c.RefundTxDir,
			PaymentSigningKey: c.PaymentSigningKey,
			PolicySigningKey:  c.PolicySigningKey,
		},
		c.ledger, c.metadata, c.resolver, c.repo, c.bus, c.alerts, c.lock, c.scheduler,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
