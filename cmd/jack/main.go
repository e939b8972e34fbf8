package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "weights":
		err = cmdWeights(os.Args[2:])
	case "paths":
		err = cmdPaths(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "freeze":
		err = cmdFreeze(os.Args[2:])
	case "play":
		err = cmdPlay(os.Args[2:])
	case "worker":
		err = cmdWorker()
	case "serve":
		err = cmdServe(os.Args[2:])
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("jack %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`JACK - stage-graph exercises, scoring and freezing

Usage:
  jack <command> [arguments]

Authoring Commands:
  validate <file>          Check an exercise graph for structural problems
  weights <file>           Show the suffix weight of every stage
  paths <file> [stage]     List the weighted paths from a stage to an end

Storage Commands:
  import <file>... | --all Save exercise files, or all content, as new revisions
  freeze <id> [revision]   Freeze an exercise or course revision (default: latest)

Runtime Commands:
  play <file|slug>         Play an exercise in the terminal
  worker                   Grade checker jobs from the queue
  serve [addr]             Serve the exercise API over HTTP (default :PORT)

Integration Commands:
  mcp [--http addr]        Start the MCP server (stdio by default)

Other:
  help                     Show this help message
  version                  Show version information

Environment:
  DATABASE_URL             Use PostgreSQL instead of the local SQLite file
  RABBITMQ_URL             Broker for asynchronous checker jobs
  EVALUATOR_URL            Remote expression evaluator (local if unset)
  PORT                     HTTP port for serve (default 8080)

Examples:
  jack validate content/exercises/fractions.yaml
  jack import content/exercises/fractions.yaml
  jack freeze 5b0c7a52-8f7e-4d0b-9a51-3c1f2e6a9d10
  jack mcp`)
}
