package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lotterylab/lotteryd/internal/config"
	webservice "github.com/lotterylab/lotteryd/internal/interface/web"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "lotteryd",
		Usage:   "round-based lottery daemon",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			urlFlag,
		},
		Action: daemonAction,
		Commands: append(
			cli.Commands{},
			statusCmd,
			winnersCmd,
			buyCmd,
			faucetCmd,
			balanceCmd,
		),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func daemonAction(_ *cli.Context) error {
	// a missing .env file is not an error, env vars may come from elsewhere
	//nolint:errcheck
	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	appSvc, err := cfg.AppService()
	if err != nil {
		log.Fatal(err)
	}

	svc, err := webservice.NewService(webservice.Config{Port: cfg.Port}, appSvc)
	if err != nil {
		log.Fatal(err)
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
