package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kaddht/node/pkg/dht"
)

// runREPL implements the interactive line-mode shell main.rs falls back
// to when no subcommand is given: store/get/peers/stats/help/exit, each
// dispatched against the already-running node.
func runREPL(ctx context.Context, node *dht.DhtNode) {
	fmt.Println("Running in interactive mode. Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "store":
			if len(parts) != 3 {
				fmt.Println("Usage: store <key> <value>")
				continue
			}
			if err := node.Store(ctx, []byte(parts[1]), []byte(parts[2])); err != nil {
				fmt.Printf("Failed to store value: %v\n", err)
				continue
			}
			fmt.Println("Value stored successfully")

		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				continue
			}
			value, ok := node.FindValue(ctx, []byte(parts[1]))
			if !ok {
				fmt.Println("Value not found")
				continue
			}
			fmt.Printf("Value: %s\n", value)

		case "peers":
			printPeers(node)

		case "stats":
			printStats(node)

		case "help":
			printHelp()

		case "exit", "quit":
			return

		default:
			fmt.Println("Unknown command. Type 'help' for available commands.")
		}
	}
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  store <key> <value> - Store a key-value pair")
	fmt.Println("  get <key>           - Retrieve a value by key")
	fmt.Println("  peers               - List known peers")
	fmt.Println("  stats               - Show DHT statistics")
	fmt.Println("  exit                - Exit the application")
}
