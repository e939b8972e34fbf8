package main

import (
	"fmt"
	"log/slog"

	mcpserver "github.com/ccogit/JACK3-Competencies-sub004/internal/mcp"
)

// cmdMCP starts the MCP server on stdio, or on HTTP with --http addr
func cmdMCP(args []string) error {
	addr := ""
	if len(args) > 0 {
		if args[0] != "--http" || len(args) < 2 {
			return fmt.Errorf("usage: jack mcp [--http addr]")
		}
		addr = args[1]
	}

	e, err := loadEnv("jack-mcp")
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	registry, err := e.registry()
	if err != nil {
		return err
	}
	ev, closeEval := e.evaluator()
	defer closeEval()

	st, err := e.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Registry:    registry,
		Evaluator:   ev,
		Revisions:   st.revisions,
		Freezer:     st.freezer(),
		Submissions: st.submissions,
		Logger:      slog.Default(),
		Version:     Version,
	})

	if addr != "" {
		slog.Info("mcp server listening", "addr", addr)
		return mcpSrv.ServeHTTP(ctx, addr)
	}
	// stdout carries the protocol
	return mcpSrv.ServeStdio(ctx)
}
