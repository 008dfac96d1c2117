package main

import (
	"context"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/slonegd/gogoose"
	"github.com/slonegd/gogoose/goose"
	"github.com/slonegd/gogoose/logger"
)

type subscribeFlags struct {
	blocks      []string
	iface       string
	all         bool
	metricsAddr string
}

func cmdSubscribe(g *globalFlags) *cobra.Command {
	f := &subscribeFlags{}
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Print GOOSE frames received on an interface",
		Example: `  goosectl subscribe -c substation.toml --cb GOOSE_1 --iface eth0
  goosectl subscribe --iface eth0 --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd.Context(), g, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&f.blocks, "cb", nil, "control block name, repeatable")
	cmd.Flags().StringVarP(&f.iface, "iface", "i", "", "network interface")
	cmd.Flags().BoolVar(&f.all, "all", false, "also print frames of control blocks missing from the configuration")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /frames on this address")
	_ = cmd.MarkFlagRequired("iface")
	return cmd
}

func (f *subscribeFlags) run(ctx context.Context, g *globalFlags, w io.Writer) error {
	cfg, port, err := openPort(g, f.iface)
	if err != nil {
		return err
	}
	defer port.Close()

	// обработчики разных блоков вызываются из разных горутин
	var mu sync.Mutex
	printer := func(name string) gogoose.Handler {
		return func(frame *goose.Frame) {
			mu.Lock()
			defer mu.Unlock()
			writeFrame(w, name, frame)
		}
	}

	e := gogoose.NewEngine(port, cfg, gogoose.WithLogger(logger.NewLogger("engine")))
	names := f.blocks
	for _, name := range names {
		if err := e.Register(gogoose.Receive, name, printer(name)); err != nil {
			return err
		}
	}
	if f.all || len(names) == 0 {
		if err := e.RegisterDefault(printer(gogoose.DefaultName)); err != nil {
			return err
		}
		names = append(names, gogoose.DefaultName)
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
	for _, name := range names {
		if err := e.Enable(name); err != nil {
			stop()
			_ = eg.Wait()
			return err
		}
	}
	return eg.Wait()
}
