package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/slonegd/gogoose"
	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

type publishFlags struct {
	blocks      []string
	iface       string
	set         []string
	interval    time.Duration
	test        bool
	metricsAddr string
}

func cmdPublish(g *globalFlags) *cobra.Command {
	f := &publishFlags{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish control blocks from the configuration",
		Example: `  goosectl publish -c substation.toml --cb GOOSE_1 --iface eth0 --set 1.1.9=true
  goosectl publish --cb GOOSE_1 --iface eth0 --interval 10s --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd.Context(), g)
		},
	}
	cmd.Flags().StringArrayVar(&f.blocks, "cb", nil, "control block name, repeatable")
	cmd.Flags().StringVarP(&f.iface, "iface", "i", "", "network interface")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "signal value as casdu.ioa.ti=value, repeatable")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "publish a new state every interval")
	cmd.Flags().BoolVar(&f.test, "test", false, "set the test flag")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /frames on this address")
	_ = cmd.MarkFlagRequired("cb")
	_ = cmd.MarkFlagRequired("iface")
	return cmd
}

// parseAssignments разбирает значения вида "1.1.9=true"
func parseAssignments(set []string) (map[string]string, error) {
	out := make(map[string]string, len(set))
	for _, s := range set {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("%w: --set %q, want key=value", goose.ErrConfig, s)
		}
		if _, _, _, err := goose.ParseSignalKey(key); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// applyAssignments записывает значения в те кадры, где такие ключи есть
func applyAssignments(e *gogoose.Engine, names []string, values map[string]string) error {
	used := make(map[string]bool, len(values))
	for _, name := range names {
		frame, err := e.Frame(name)
		if err != nil {
			return err
		}
		for _, key := range frame.Keys() {
			v, ok := values[key]
			if !ok {
				continue
			}
			if err := frame.SetValueByKey(key, v); err != nil {
				return fmt.Errorf("%s %s: %w", name, key, err)
			}
			used[key] = true
		}
	}
	for key := range values {
		if !used[key] {
			return fmt.Errorf("%w: %s", goose.ErrUnknownKey, key)
		}
	}
	return nil
}

func (f *publishFlags) run(ctx context.Context, g *globalFlags) error {
	values, err := parseAssignments(f.set)
	if err != nil {
		return err
	}
	cfg, port, err := openPort(g, f.iface)
	if err != nil {
		return err
	}
	defer port.Close()

	log := logger.NewLogger("publish")
	e := gogoose.NewEngine(port, cfg, gogoose.WithLogger(logger.NewLogger("engine")))
	for _, name := range f.blocks {
		err := e.Register(gogoose.Transmit, name, func(frame *goose.Frame) {
			h := frame.Header()
			log.Info("%s: stNum %d", name, h.StNum+1)
		})
		if err != nil {
			return err
		}
		frame, err := e.Frame(name)
		if err != nil {
			return err
		}
		frame.SetTest(f.test)
	}
	if err := applyAssignments(e, f.blocks, values); err != nil {
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return e.Run(ctx)
	})
	if f.metricsAddr != "" {
		eg.Go(func() error {
			return serveStatus(ctx, f.metricsAddr, newStatusRouter(e))
		})
	}

	for _, name := range f.blocks {
		if err := e.Enable(name); err != nil {
			stop()
			_ = eg.Wait()
			return err
		}
	}

	if f.interval > 0 {
		eg.Go(func() error {
			ticker := time.NewTicker(f.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, name := range f.blocks {
						if err := e.Trigger(name); err != nil {
							log.Warn("%s: %v", name, err)
						}
					}
				}
			}
		})
	}
	return eg.Wait()
}
