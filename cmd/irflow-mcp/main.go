package main

import (
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/ludo-technologies/irflow/internal/version"
	"github.com/ludo-technologies/irflow/mcp"
)

const serverName = "irflow"

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// MCP uses stdout for JSON-RPC
	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	server := mcpserver.NewMCPServer(
		serverName,
		version.Short(),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)

	handlers := mcp.NewHandlerSet(mcp.NewDependencies(logger, *configPath))
	mcp.RegisterTools(server, handlers)

	logger.Info().
		Str("version", version.Short()).
		Strs("tools", []string{"analyze_program", "run_program"}).
		Msg("server ready, waiting for MCP client connection")

	if err := mcpserver.ServeStdio(server); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
