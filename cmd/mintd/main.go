package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/config"
	"github.com/tokenfund/mintd/internal/core/application"
	"github.com/tokenfund/mintd/internal/telemetry"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

const (
	configFlagName       = "config"
	failedFlagName       = "failed"
	mintableTimeFlagName = "mintable-time"
)

var (
	configFlag = &cli.StringFlag{
		Name:    configFlagName,
		Usage:   "path of a yaml, toml or json file with flag values",
		EnvVars: []string{"MINTD_CONFIG"},
	}
	failedFlag = &cli.BoolFlag{
		Name:  failedFlagName,
		Usage: "list only failed attempts",
	}
	mintableTimeFlag = &cli.Uint64Flag{
		Name:     mintableTimeFlagName,
		Usage:    "number of slots, from the current tip, the policy allows minting for",
		Required: true,
	}
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "mintd"
	app.Version = Version
	app.Usage = "mint tokens for exact payments and refund late ones"
	app.Flags = append([]cli.Flag{configFlag}, config.Flags...)
	app.Before = loadConfigFile
	app.Action = runAction
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Start the sales engine",
			Action: runAction,
		},
		{
			Name:   "status",
			Usage:  "Show the persisted progress of the sales run",
			Action: statusAction,
		},
		{
			Name:   "policy",
			Usage:  "Create the minting policy script and its id under <work-dir>/policy",
			Flags:  []cli.Flag{mintableTimeFlag},
			Action: policyAction,
		},
		{
			Name:   "attempts",
			Usage:  "List the recorded mint and refund attempts",
			Flags:  []cli.Flag{failedFlag},
			Action: attemptsAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadAndValidate(c)
	if err != nil {
		return err
	}

	if cfg.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(cfg.OtelPushInterval) * time.Second
		shutdown, err := telemetry.InitOtelSDK(
			c.Context, cfg.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return fmt.Errorf("failed to init otel sdk: %s", err)
		}
		log.AddHook(telemetry.NewOTelHook())
		log.RegisterExitHandler(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.WithError(err).Warn("failed to shutdown otel sdk")
			}
		})
	}

	stopProfiler, err := telemetry.InitPyroscope(cfg.PyroscopeServerURL)
	if err != nil {
		return err
	}
	if stopProfiler != nil {
		log.RegisterExitHandler(func() {
			// nolint
			stopProfiler()
		})
	}

	svc, err := cfg.AppService()
	if err != nil {
		return fmt.Errorf("failed to create service: %s", err)
	}

	log.Debugf("mintd config: %s", cfg)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start service: %s", err)
	}

	log.RegisterExitHandler(svc.Stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)

	select {
	case <-sigChan:
		log.Info("shutting down service...")
	case <-svc.Done():
		log.Info("sales run completed, shutting down service...")
	case <-svc.Halted():
		log.WithError(svc.Err()).Error("sales run halted, shutting down service...")
		log.Exit(1)
	}
	log.Exit(0)
	return nil
}

func statusAction(c *cli.Context) error {
	cfg, err := loadAndValidate(c)
	if err != nil {
		return err
	}
	svc, err := cfg.AppService()
	if err != nil {
		return err
	}
	defer svc.Stop()

	status, err := svc.GetStatus(c.Context)
	if err != nil {
		return err
	}
	return printJSON(toStatusJSON(status))
}

func attemptsAction(c *cli.Context) error {
	cfg, err := loadAndValidate(c)
	if err != nil {
		return err
	}
	svc, err := cfg.AppService()
	if err != nil {
		return err
	}
	defer svc.Stop()

	attempts, err := svc.ListAttempts(c.Context, c.Bool(failedFlagName))
	if err != nil {
		return err
	}
	return printJSON(attempts)
}

func policyAction(c *cli.Context) error {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	svc, err := cfg.PolicyService()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	mintableTime := c.Uint64(mintableTimeFlagName)
	log.Infof("the policy will be open for %.2f days", float64(mintableTime)/86400)

	policy, err := svc.Create(c.Context, mintableTime)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"policyId":   policy.ID,
		"keyHash":    policy.KeyHash,
		"expirySlot": policy.ExpirySlot,
		"scriptFile": policy.ScriptFile,
	})
}

func loadAndValidate(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	return cfg, nil
}

type statusJSON struct {
	Phase          string `json:"phase"`
	State          string `json:"state"`
	NextTokenID    int    `json:"nextTokenId"`
	TotalMint      int    `json:"totalMint"`
	Watermark      int    `json:"watermark"`
	RefundDeadline string `json:"refundDeadline,omitempty"`
}

func toStatusJSON(status *application.Status) statusJSON {
	out := statusJSON{
		Phase:       string(status.Phase),
		State:       status.State,
		NextTokenID: status.NextTokenID,
		TotalMint:   status.TotalMint,
		Watermark:   status.Watermark,
	}
	if !status.RefundDeadline.IsZero() {
		out.RefundDeadline = status.RefundDeadline.UTC().Format(time.RFC3339)
	}
	return out
}

func printJSON(resp interface{}) error {
	jsonBytes, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonBytes))
	return nil
}
