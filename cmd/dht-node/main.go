package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kaddht/node/pkg/config"
	"github.com/kaddht/node/pkg/dht"
)

var (
	bindAddr   string
	peersFlag  string
	configPath string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatalf("dht-node: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dht-node",
		Short: "Run a Kademlia DHT node",
		Long:  "dht-node runs a single Kademlia DHT participant over TCP: a routing table, in-memory TTL storage, and a pooled RPC transport.",
		RunE:  runInteractive,
	}

	root.PersistentFlags().StringVar(&bindAddr, "addr", "", "address to bind this node to (host:port), required")
	root.PersistentFlags().StringVar(&peersFlag, "peers", "", "comma-separated list of bootstrap peer addresses")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built in if omitted)")
	root.MarkPersistentFlagRequired("addr")

	root.AddCommand(newStoreCmd(), newGetCmd(), newPeersCmd(), newStatsCmd())
	return root
}

// bootNode loads config, constructs the node, starts the inbound listener
// and maintenance scheduler, and bootstraps against --peers. It is shared
// by every subcommand and by interactive mode, mirroring main.rs's
// single setup path ahead of branching on Commands.
func bootNode() (*dht.DhtNode, context.Context, context.CancelFunc, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	node := dht.New(bindAddr, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)
	go func() {
		err := node.Serve(ctx)
		if err != nil {
			log.Printf("listener stopped: %v", err)
		}
		serveErr <- err
	}()
	// Give the listener a moment to bind before bootstrap dials out or a
	// subcommand runs, matching the teacher's startup ordering of
	// "initialize, then serve, then background tasks". A listener that
	// fails within that window is a startup failure.
	select {
	case err := <-serveErr:
		cancel()
		return nil, nil, nil, fmt.Errorf("starting listener: %w", err)
	case <-time.After(50 * time.Millisecond):
	}

	node.StartMaintenanceService()

	if peersFlag != "" {
		seeds := strings.Split(peersFlag, ",")
		for i := range seeds {
			seeds[i] = strings.TrimSpace(seeds[i])
		}
		bootCtx, bootCancel := context.WithTimeout(ctx, 10*time.Second)
		defer bootCancel()
		if err := node.Bootstrap(bootCtx, seeds); err != nil {
			log.Printf("bootstrap failed: %v", err)
		}
	}

	return node, ctx, cancel, nil
}

func newStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store <key> <value>",
		Short: "Store a key-value pair in the DHT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, ctx, cancel, err := bootNode()
			if err != nil {
				return err
			}
			defer cancel()
			defer node.Close()

			if err := node.Store(ctx, []byte(args[0]), []byte(args[1])); err != nil {
				return fmt.Errorf("store failed: %w", err)
			}
			fmt.Println("Value stored successfully")
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value from the DHT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, ctx, cancel, err := bootNode()
			if err != nil {
				return err
			}
			defer cancel()
			defer node.Close()

			value, ok := node.FindValue(ctx, []byte(args[0]))
			if !ok {
				fmt.Println("Value not found")
				return nil
			}
			fmt.Printf("Value: %s\n", value)
			return nil
		},
	}
}

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List all known peers in the routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, _, cancel, err := bootNode()
			if err != nil {
				return err
			}
			defer cancel()
			defer node.Close()

			printPeers(node)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show DHT statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, _, cancel, err := bootNode()
			if err != nil {
				return err
			}
			defer cancel()
			defer node.Close()

			printStats(node)
			return nil
		},
	}
}

func printPeers(node *dht.DhtNode) {
	peers := node.ListPeers()
	if len(peers) == 0 {
		fmt.Println("No known peers")
		return
	}
	fmt.Printf("Known peers (%d):\n", len(peers))
	for _, p := range peers {
		fmt.Printf("- ID: %s, Addr: %s\n", p.Id, p.Addr)
	}
}

func printStats(node *dht.DhtNode) {
	s := node.GetStats()
	fmt.Println("DHT Statistics:")
	fmt.Printf("- Store operations: %d\n", s.StoreOps)
	fmt.Printf("- Successful stores: %d\n", s.StoreSuccess)
	fmt.Printf("- Find operations: %d\n", s.FindValueOps)
	fmt.Printf("- Successful finds: %d\n", s.FindValueSuccess)
	fmt.Printf("- RPC requests: %d\n", s.RPCRequests)
	fmt.Printf("- RPC failures: %d\n", s.RPCFailures)
	fmt.Printf("- Known peers: %d\n", s.KnownPeers)
	fmt.Printf("- Storage size: %d\n", s.StorageSize)
}

// runInteractive is the root command's default action: with no
// subcommand given, boot the node and drop into the REPL, the same
// branch main.rs takes when cli.command is None.
func runInteractive(cmd *cobra.Command, args []string) error {
	node, ctx, cancel, err := bootNode()
	if err != nil {
		return err
	}
	defer cancel()
	defer node.Close()

	fmt.Printf("DHT node running at %s\n", node.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived shutdown signal, exiting...")
		cancel()
		os.Exit(0)
	}()

	runREPL(ctx, node)
	return nil
}
