package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wardenbridge/boltdb"
	"wardenbridge/config"
	"wardenbridge/logger"
	"wardenbridge/metrics"
	"wardenbridge/redis"
	"wardenbridge/registry"
	"wardenbridge/wallet"
	"wardenbridge/workers"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:          "warden",
		Short:        "Bridge warden relayer",
		SilenceUsage: true,
	}
	relayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Run one relay pass over both chains and print the report",
		RunE:  runRelay,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Relay periodically and serve the status API",
		RunE:  runServe,
	}
)

func init() {
	// console output until the configured logger takes over
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML configuration file")
	rootCmd.AddCommand(relayCmd, serveCmd)
}

type store interface {
	workers.RelayStore
	Close() error
}

type app struct {
	cfg      *config.Configuration
	reg      *registry.Registry
	warden   *wallet.Warden
	store    store
	promReg  *prometheus.Registry
	relayer  *workers.Relayer
	logClose io.Closer
}

// setup loads configuration and wires every component. The warden key only
// travels from the registry into wallet.NewWarden.
func setup() (*app, error) {
	// reading config error is fatal
	cfg := config.Init(configPath)

	logg, logClose, err := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat, cfg.Server.LogDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("source", cfg.Chains.Source.Name).Str("destination", cfg.Chains.Destination.Name).
		Str("store", cfg.Store.Driver).Str("scanMode", cfg.Relay.ScanMode).Msg("Starting bridge warden")

	reg, err := registry.Load(cfg)
	if err != nil {
		logClose.Close()
		return nil, err
	}
	warden, err := wallet.NewWarden(reg.Warden().PrivateKey, reg.Warden().Address)
	if err != nil {
		logClose.Close()
		return nil, err
	}
	log.Info().Str("warden", warden.Address().Hex()).Msg("Warden key loaded")

	st, err := openStore(cfg.Store)
	if err != nil {
		logClose.Close()
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relayer := workers.NewRelayer(reg, warden, st, cfg.Relay,
		workers.WithMetrics(metrics.NewMetrics(promReg)),
		workers.WithLogger(logg.With().Str("component", "relayer").Logger()),
	)

	return &app{
		cfg:      cfg,
		reg:      reg,
		warden:   warden,
		store:    st,
		promReg:  promReg,
		relayer:  relayer,
		logClose: logClose,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("closing relay store")
	}
	a.logClose.Close()
}

// connect to the store, without persistence do not continue
func openStore(cfg config.StoreConfig) (store, error) {
	switch cfg.Driver {
	case "redis":
		s := redis.NewStore(cfg.RedisHost, cfg.RedisPort)
		if err := s.Ping(); err != nil {
			s.Close()
			return nil, errors.Wrap(err, "redis store")
		}
		return s, nil
	case "bolt":
		s, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			return nil, errors.Wrap(err, "bolt store")
		}
		return s, nil
	}
	return nil, errors.Newf("unknown store driver %q", cfg.Driver)
}

func runRelay(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := a.relayer.Relay(ctx, a.cfg.Relay.Window)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Wrap(err, "encoding report")
	}

	var failed []string
	for _, rr := range report.Roles {
		if rr.Error != "" {
			failed = append(failed, rr.Role)
		}
	}
	if len(failed) > 0 {
		return errors.Newf("relay pass failed for %v", failed)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a pass may wait out a receipt per event, leave it a few intervals
	staleAfter := 3*a.cfg.Server.Interval + 2*a.cfg.Relay.ReceiptTimeout
	router := workers.NewRouter(a.relayer, a.store, a.reg, a.warden.Address(), a.promReg, staleAfter)

	// there are 2 worker threads:
	// * periodic relay passes over both chains
	// * status API and metrics HTTP server
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers.Worker_relay(ctx, a.relayer, a.cfg.Relay.Window, a.cfg.Server.Interval)
		return nil
	})
	g.Go(func() error {
		return workers.Worker_HTTP(ctx, a.cfg.Server.HTTPAddr, router)
	})

	err = g.Wait()
	if err != nil {
		log.Error().Err(err).Msg("warden stopped")
	} else {
		log.Info().Msg("warden stopped")
	}
	return err
}
