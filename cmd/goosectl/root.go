package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slonegd/gogoose/config"
	"github.com/slonegd/gogoose/logger"
	"github.com/slonegd/gogoose/transport"
)

type globalFlags struct {
	logLevel string
	config   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "goosectl",
		Short:        "IEC 61850 GOOSE publisher and subscriber",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := logger.Init("goosectl", g.logLevel, cmd.ErrOrStderr()); err != nil {
				return fmt.Errorf("log level %q: %w", g.logLevel, err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.PersistentFlags().StringVarP(&g.config, "config", "c", "goose.toml", "control blocks, .toml or .yaml")

	cmd.AddCommand(cmdInterfaces())
	cmd.AddCommand(cmdPublish(g))
	cmd.AddCommand(cmdSubscribe(g))
	cmd.AddCommand(cmdDecode())
	return cmd
}

// signalContext завершается по SIGINT и SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openPort открывает интерфейс вместе с конфигурацией блоков управления
func openPort(g *globalFlags, iface string) (*config.Config, *transport.RawPort, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, nil, err
	}
	port, err := transport.OpenRaw(iface, transport.WithLogger(logger.NewLogger("transport")))
	if err != nil {
		return nil, nil, err
	}
	return cfg, port, nil
}
