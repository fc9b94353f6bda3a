package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/inconshreveable/log15"
	"github.com/robfig/cron/v3"

	"github.com/GESkunkworks/snapkeeper"
	"github.com/GESkunkworks/snapkeeper/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	dryRun := flag.Bool("dry-run", false, "log actions without creating or deleting anything")
	once := flag.Bool("once", false, "run a single patrol even if a schedule is configured")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	// config errors are fatal before any AWS call
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level, *debug)

	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if cfg.AWS.Region != "" {
		opts.Config = aws.Config{Region: &cfg.AWS.Region}
	}
	sess := session.Must(session.NewSessionWithOptions(opts))

	run := func() {
		marker := cfg.RetentionMarker()
		policy := cfg.RetentionPolicy()
		patrolInput := snapkeeper.PatrolInput{
			Session:  sess,
			Marker:   &marker,
			Policy:   &policy,
			SNSTopic: &cfg.Notification.SNSTopic,
			DryRun:   &cfg.DryRun,
			Logger:   &logger,
		}
		patrol, err := snapkeeper.New(&patrolInput)
		if err != nil {
			logger.Error("failed to set up patrol", "error", err.Error())
			return
		}
		if err := patrol.Start(); err != nil {
			logger.Error("patrol failed", "error", err.Error())
			return
		}
		for _, line := range patrol.GetSummary() {
			fmt.Println(line)
		}
	}

	if cfg.Schedule == "" || *once {
		run()
		return
	}

	logger.Info("running on schedule", "schedule", cfg.Schedule)
	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, run); err != nil {
		// Validate already parsed this, so this shouldn't happen
		logger.Error("failed to register schedule", "error", err.Error())
		os.Exit(1)
	}
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")
	ctx := c.Stop()
	<-ctx.Done()
}

// newLogger builds the process logger. The -debug flag wins over the
// configured level.
func newLogger(level string, debug bool) log15.Logger {
	lvl := log15.LvlInfo
	if parsed, err := log15.LvlFromString(level); err == nil {
		lvl = parsed
	}
	if debug {
		lvl = log15.LvlDebug
	}
	logger := log15.New()
	logger.SetHandler(
		log15.LvlFilterHandler(
			lvl,
			log15.StreamHandler(os.Stdout, log15.LogfmtFormat()),
		),
	)
	return logger
}
