package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   = "info"
	configPath = ""
	backend    = BackendPeriph
	listenAddr = "0.0.0.0:3141"
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return nil
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pibattery",
		Short: "pibattery reports battery voltage and charge level from an analog sense pin",
		Long: `pibattery reports battery voltage and charge level from an analog sense pin.

The level is a linear mapping of the sampled voltage between the configured
empty and full voltages.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "JSON file of modules to initialize at startup")
	cmd.PersistentFlags().StringVar(&backend, "backend", backend, "GPIO backend for activation pins (periph or rpio)")

	cmd.AddCommand(
		NewServeCommand(),
		NewReadCommand(),
	)

	return cmd
}

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the module HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			mgr, err := startManager()
			if err != nil {
				return err
			}
			defer stopManager(mgr)

			return serve(mgr, listenAddr)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "addr", "a", listenAddr, "address to listen on")

	return cmd
}

func NewReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read MODULE [ACTION]",
		Short: "Take a single reading from a module in the config file",
		Long: `Take a single reading from a module in the config file and print it as JSON.

ACTION defaults to "status".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("read requires --config")
			}

			action := "status"
			if len(args) == 2 {
				action = args[1]
			}

			mgr, err := startManager()
			if err != nil {
				return err
			}
			defer stopManager(mgr)

			result, err := mgr.Act(args[0], action, RawBinder(nil))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	return cmd
}

func startManager() (*ManagerAgent, error) {
	sp, err := NewServiceProvider(backend)
	if err != nil {
		return nil, err
	}

	mgr := NewManagerAgent(sp)
	if configPath == "" {
		return mgr, nil
	}

	config, err := LoadFileConfig(configPath)
	if err != nil {
		_ = sp.Close()
		return nil, err
	}
	if err := mgr.InitializeModules(config.Modules); err != nil {
		stopManager(mgr)
		return nil, err
	}
	logrus.WithField("config", configPath).Infof("initialized %d modules", len(config.Modules))

	return mgr, nil
}

func stopManager(mgr *ManagerAgent) {
	if err := mgr.Stop(); err != nil {
		logrus.WithError(err).Warn("failed stopping modules")
	}
	if err := mgr.ServiceProvider.Close(); err != nil {
		logrus.WithError(err).Warn("failed closing service provider")
	}
}

func serve(mgr *ManagerAgent, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: buildRouter(mgr),
	}

	errc := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("serving module API")
		errc <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case sig := <-sigc:
		logrus.WithField("signal", sig).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
