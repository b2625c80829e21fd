package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/meshlink/internal/adapters/memory"
	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/pkg/meshlink"
)

type encodeOptions struct {
	from      uint32
	dest      uint32
	typeName  string
	packageID uint32
	sliceSize int
	priority  bool
}

func newEncodeCommand() *cobra.Command {
	opts := encodeOptions{from: 1, dest: 2, typeName: "single"}

	cmd := &cobra.Command{
		Use:   "encode [message]",
		Short: "Print the wire packages a message is sent as",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wires, err := encodeMessage(cmd.Context(), opts, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, w := range wires {
				fmt.Fprintln(cmd.OutOrStdout(), string(w))
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&opts.from, "from", opts.from, "sender node id")
	cmd.Flags().Uint32Var(&opts.dest, "dest", opts.dest, "destination node id")
	cmd.Flags().StringVar(&opts.typeName, "type", opts.typeName, "package type name or number")
	cmd.Flags().Uint32Var(&opts.packageID, "package-id", 0, "package id (random when 0)")
	cmd.Flags().IntVar(&opts.sliceSize, "max-slice-bytes", domain.DefaultMaxSliceBytes, "largest payload carried by one slice")
	cmd.Flags().BoolVar(&opts.priority, "priority", false, "send as priority traffic")
	return cmd
}

// encodeMessage runs msg through a node wired to an in-memory transport
// and returns the packages it handed over.
func encodeMessage(ctx context.Context, opts encodeOptions, msg string) ([][]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t, err := parseType(opts.typeName)
	if err != nil {
		return nil, err
	}

	limits := meshlink.DefaultLimits()
	limits.MaxSliceBytes = opts.sliceSize
	if limits.MaxPackageBytes <= opts.sliceSize {
		// Leave the usual header headroom above the slice size.
		limits.MaxPackageBytes = opts.sliceSize + domain.DefaultMaxPackageBytes - domain.DefaultMaxSliceBytes
	}

	transport := memory.NewTransport()
	nodeOpts := []meshlink.Option{meshlink.WithTransport(transport)}
	if opts.packageID != 0 {
		id := opts.packageID
		nodeOpts = append(nodeOpts, meshlink.WithIDSource(func() uint32 { return id }))
	}

	if opts.from == opts.dest {
		return nil, fmt.Errorf("--from and --dest must differ")
	}
	node, err := meshlink.New(meshlink.Config{NodeID: opts.from, Limits: limits}, nodeOpts...)
	if err != nil {
		return nil, err
	}
	transport.AutoComplete(node)

	if err := node.Start(ctx); err != nil {
		return nil, err
	}
	defer node.Stop()

	if err := node.AddConnection(ctx, opts.dest, "memory"); err != nil {
		return nil, err
	}
	if err := node.SendMessage(ctx, opts.dest, t, msg, opts.priority); err != nil {
		return nil, err
	}

	// SendMessage returns once the last slice is queued; wait for it to go out.
	for {
		depth, err := node.QueueDepth(ctx, opts.dest)
		if err != nil {
			return nil, err
		}
		if depth == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return transport.SentTo(opts.dest), nil
}

// parseType accepts a package type name such as "single" or its number.
func parseType(s string) (meshlink.PackageType, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return domain.ParsePackageType(uint8(n))
	}
	for v := uint8(domain.TypeDrop); v <= uint8(domain.TypeSingle); v++ {
		t := meshlink.PackageType(v)
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPackageType, s)
}
