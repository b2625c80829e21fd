package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/meshlink/internal/adapters/log"
	"github.com/bft-labs/meshlink/internal/adapters/metrics"
	zmqAdapter "github.com/bft-labs/meshlink/internal/adapters/zmq"
	"github.com/bft-labs/meshlink/internal/cliconfig"
	"github.com/bft-labs/meshlink/internal/codec"
	"github.com/bft-labs/meshlink/pkg/meshlink"
	"github.com/bft-labs/meshlink/plugins/configwatcher"
	"github.com/bft-labs/meshlink/plugins/resourcegating"
)

const helpDescription = `
Run a mesh node that slices, queues and forwards messages to its neighbours.

Highlights:
  - Long messages travel as ordered slices that share one package id.
  - Per-neighbour queues give priority traffic the head of the line.
  - Queued work is shed when the process nears its memory budget.
  - Limits reload live when the config file changes.

Lines read from stdin are sent as messages: "@<node id> <text>" sends to
one neighbour, anything else is broadcast to all of them.
`

var exampleUsage = strings.TrimSpace(`
  meshlink --node-id 1 --listen tcp://0.0.0.0:5670 --peer 2@tcp://10.0.0.2:5670
  meshlink --config $HOME/.meshlink/config.toml --metrics-addr :9090
  meshlink encode --dest 2 --type single "hello"
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var peerFlags []string

	log := cliconfig.Logger(cliconfig.DefaultLogLevel)

	root := &cobra.Command{
		Use:          "meshlink",
		Short:        "Outbound transport for mesh network nodes",
		Long:         strings.TrimSpace(helpDescription),
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// MESHLINK_* variables override the file but not flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if changed["peer"] {
				peers, err := cliconfig.ParsePeers(strings.Join(peerFlags, ","))
				if err != nil {
					return err
				}
				cfg.Peers = peers
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log = cliconfig.Logger(cfg.LogLevel)
			log.Info().Interface("config", cfg).Msg("configuration")

			return run(cfg, cfgFile, log)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.meshlink/config.toml)")
	root.Flags().Uint32Var(&cfg.NodeID, "node-id", cfg.NodeID, "mesh id of this node")
	root.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to accept packages on")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve Prometheus metrics on (disabled when empty)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringSliceVar(&peerFlags, "peer", nil, "neighbour to connect to as <node id>@<address> (repeatable)")

	root.Flags().Uint64Var(&cfg.MemoryBudget, "memory-budget", cfg.MemoryBudget, "bytes the process may use before queued work is shed")
	root.Flags().DurationVar(&cfg.SampleInterval, "sample-interval", cfg.SampleInterval, "memory sampling interval")
	root.Flags().DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "time allowed to connect to each peer")

	root.Flags().IntVar(&cfg.Limits.MaxSliceBytes, "max-slice-bytes", cfg.Limits.MaxSliceBytes, "largest payload carried by one slice")
	root.Flags().IntVar(&cfg.Limits.MaxBundleSlices, "max-bundle-slices", cfg.Limits.MaxBundleSlices, "reject messages whose last slice index reaches this")
	root.Flags().IntVar(&cfg.Limits.MaxQueueDepth, "max-queue-depth", cfg.Limits.MaxQueueDepth, "per-neighbour queue capacity")
	root.Flags().Uint64Var(&cfg.Limits.MinFreeMemory, "min-free-memory", cfg.Limits.MinFreeMemory, "free memory floor in bytes")
	root.Flags().IntVar(&cfg.Limits.MaxPackageBytes, "max-package-bytes", cfg.Limits.MaxPackageBytes, "largest encoded package")

	root.AddCommand(newEncodeCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("meshlink")
		os.Exit(1)
	}
}

func run(cfg cliconfig.Config, cfgFile string, log zerolog.Logger) error {
	logger := logAdapter.NewZerologAdapter(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := metrics.New(registry, "meshlink")

	transport := zmqAdapter.NewTransport(zmqAdapter.Config{NodeID: cfg.NodeID}, nil, logger.Component("zmq"))
	defer transport.Close()

	opts := []meshlink.Option{
		meshlink.WithLogger(logger.Component("node")),
		meshlink.WithTransport(transport),
		meshlink.WithObserver(observer),
		meshlink.WithEventHandler(&cliEvents{log: log}),
		resourcegating.WithResourceGating(resourcegating.Config{
			MemoryBudget:   cfg.MemoryBudget,
			SampleInterval: cfg.SampleInterval,
		}),
	}
	if cfgFile != "" {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}))
	}

	node, err := meshlink.New(meshlink.Config{NodeID: cfg.NodeID, Limits: cfg.Limits}, opts...)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	transport.SetSink(node)

	if _, err := transport.Listen(cfg.ListenAddr, inboundLogger(log)); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	for _, p := range cfg.Peers {
		dialCtx, dialCancel := context.WithTimeout(ctx, cfg.DialTimeout)
		err := node.AddConnection(dialCtx, p.NodeID, p.Addr)
		dialCancel()
		if err != nil {
			log.Error().Err(err).Str("peer", p.String()).Msg("failed to connect peer")
			continue
		}
		log.Info().Str("peer", p.String()).Msg("peer connected")
	}

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		readInput(ctx, node, os.Stdin, log)
	}()

	select {
	case <-sigCh:
		log.Info().Msg("received signal, stopping...")
	case <-inputDone:
		log.Info().Msg("input closed, stopping...")
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := node.Stop(); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	return nil
}

// readInput sends every stdin line until EOF or ctx is done.
func readInput(ctx context.Context, node *meshlink.Node, in io.Reader, log zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		dest, msg, direct, err := parseLine(line)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring input line")
			continue
		}

		if direct {
			if err := node.SendMessage(ctx, dest, meshlink.TypeSingle, msg, false); err != nil {
				log.Error().Err(err).Uint32("dest", dest).
					Bool("retryable", meshlink.IsRetryable(err)).
					Msg("send failed")
			}
			continue
		}

		ok, err := node.Broadcast(ctx, meshlink.TypeBroadcast, msg, 0)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("broadcast failed")
		case !ok:
			log.Warn().Msg("broadcast did not reach every neighbour")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("read input")
	}
}

// parseLine splits "@<node id> <text>" into its parts. Lines without the
// prefix are broadcast text.
func parseLine(line string) (dest uint32, msg string, direct bool, err error) {
	if !strings.HasPrefix(line, "@") {
		return 0, line, false, nil
	}
	id, text, _ := strings.Cut(line[1:], " ")
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, "", false, fmt.Errorf("invalid destination %q", id)
	}
	return uint32(n), strings.TrimSpace(text), true, nil
}

// inboundLogger logs every package received from a neighbour.
func inboundLogger(log zerolog.Logger) func([]byte) {
	return func(wire []byte) {
		p, err := codec.Decode(wire)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(wire)).Msg("dropping undecodable package")
			return
		}
		log.Info().
			Uint32("from", p.From).
			Uint32("dest", p.Dest).
			Str("type", p.Type.String()).
			Uint32("package_id", p.PackageID).
			Uint16("slice", p.SliceNum).
			Uint16("slices", p.Slices).
			Str("payload", p.Payload).
			Msg("package received")
	}
}

// cliEvents logs node events.
type cliEvents struct {
	meshlink.BaseEventHandler
	log zerolog.Logger
}

func (e *cliEvents) OnStateChange(ev meshlink.StateChangeEvent) {
	e.log.Info().
		Str("from", ev.Previous.String()).
		Str("to", ev.Current.String()).
		Str("reason", ev.Reason).
		Msg("node state changed")
}

func (e *cliEvents) OnDropped(ev meshlink.DropEvent) {
	e.log.Warn().Uint32("node", ev.NodeID).Err(ev.Reason).Msg("package dropped")
}
