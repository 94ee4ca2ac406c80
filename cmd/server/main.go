// Package main provides the entry point for the axiomforge MCP server.
//
// This server is designed to be spawned as a child process by an MCP client
// and communicates via stdio using the Model Context Protocol. It exposes
// the reasoning core's session API surface (create-session, advance-mcts,
// coverage-report, graph-snapshot, resolve-intervention) as five tools.
//
// Environment variables:
//   - DEBUG: set to "true" to enable debug logging
//   - AXIOMFORGE_EXTRACT_MODEL_PATH, AXIOMFORGE_REASON_MODEL_PATH: model paths
//   - AXIOMFORGE_GRAPH_NODE_CAP: override the graph's node capacity
//   - AXIOMFORGE_SNAPSHOT_PATH: on-disk path for session snapshot persistence
package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"axiomforge/internal/config"
	"axiomforge/internal/mcpserver"
	"axiomforge/internal/persistence"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Starting axiomforge server in debug mode...")
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := persistence.Open(persistence.ConfigFromEnv())
	if err != nil {
		log.Printf("Warning: snapshot persistence disabled: %v", err)
		store = nil
	} else {
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("Warning: failed to close snapshot store: %v", err)
			}
		}()
		log.Println("Initialized snapshot persistence")
	}

	srv := mcpserver.New(*cfg, store)
	log.Println("Created session server")

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "axiomforge-server",
		Version: "1.0.0",
	}, nil)
	log.Println("Created MCP server")

	srv.RegisterTools(mcpServer)
	log.Println("Registered tools: create-session, advance-mcts, coverage-report, graph-snapshot, resolve-intervention")

	transport := &mcp.StdioTransport{}
	log.Println("Created stdio transport")

	ctx := context.Background()
	log.Println("Starting MCP server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
