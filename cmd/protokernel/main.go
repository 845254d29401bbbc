// cmd/protokernel/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"protokernel/cmd/protokernel/commands"
)

const VERSION = "0.1.0"

var commandAliases = map[string]string{
	"e": "emit",
	"w": "watch",
	"s": "serve",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}
	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		fmt.Printf("protokernel %s\n", VERSION)
		return
	}

	switch cmd {
	case "emit":
		if err := commands.EmitCommand(args[1:]); err != nil {
			log.Fatalf("emit: %v", err)
		}
	case "watch":
		if err := commands.WatchCommand(args[1:]); err != nil {
			log.Fatalf("watch: %v", err)
		}
	case "serve":
		if err := commands.ServeCommand(args[1:]); err != nil {
			log.Fatalf("serve: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`protokernel — ProtoKernel bytecode emitter CLI

Usage:
  protokernel emit <dfg.json> [-o out.pkb] [--store registry.db] [--name NAME] [--version VER] [--emitter-* flags]
  protokernel watch <dfg.json> [--push :8089] [...same emit flags]
  protokernel serve [addr]
  protokernel version

Emit flags (configuration bag):
  --emit-compact, --emit-semicompact, --hexdump
  --emitter-verbosity=N, --emitter-max-loops=N, --emitter-paranoid, --emitter-op-debug`)
}
