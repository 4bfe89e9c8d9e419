// Command rfield serves receptive fields over HTTP or MCP, or runs a
// pipeline over point clouds on disk.
//
// Usage:
//
//	rfield [flags] serve   # HTTP API
//	rfield [flags] mcp     # MCP tools over stdio
//	rfield [flags] run     # run the configured pipeline once
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/rfield/internal/config"
	rfmcp "github.com/sanonone/rfield/internal/mcp"
	"github.com/sanonone/rfield/internal/server"
	"github.com/sanonone/rfield/pkg/engine"
	"github.com/sanonone/rfield/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	httpAddr := flag.String("http-addr", "", "Address of the HTTP API (overrides server.http_addr)")
	dataDir := flag.String("data-dir", "", "Snapshot directory (overrides engine.data_dir)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides log.level)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] serve|mcp|run\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	mode := "serve"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *dataDir != "" {
		cfg.Engine.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if token := os.Getenv("RFIELD_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Logs go to stderr: in mcp mode stdout carries the protocol.
	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "serve":
		err = serve(ctx, cfg)
	case "mcp":
		err = serveMCP(ctx, cfg)
	case "run":
		err = runPipeline(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("rfield failed", "mode", mode, "error", err)
		os.Exit(1)
	}
}

func openEngine(cfg config.Config) (*engine.Engine, error) {
	eng, err := engine.Open(cfg.EngineOptions())
	if err != nil {
		return nil, err
	}
	if cfg.Field.Name == "" {
		return eng, nil
	}
	if _, err := eng.Get(cfg.Field.Name); err == nil {
		return eng, nil
	}
	if _, err := eng.Create(cfg.Field.Name, cfg.Field.FieldConfig); err != nil {
		_ = eng.Close()
		return nil, fmt.Errorf("creating field '%s': %w", cfg.Field.Name, err)
	}
	return eng, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	srv, err := server.NewServer(eng, server.Options{
		Addr:         cfg.Server.HTTPAddr,
		AuthToken:    cfg.Server.AuthToken,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		Pipeline:     cfg.Pipeline,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	srv.Shutdown()
	return <-errCh
}

func serveMCP(ctx context.Context, cfg config.Config) error {
	eng, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	slog.Info("[MCP] Serving tools on stdio")
	err = rfmcp.NewMCPServer(eng).Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runPipeline(ctx context.Context, cfg config.Config) error {
	if cfg.Pipeline == nil {
		return fmt.Errorf("the configuration has no pipeline section")
	}
	p, err := pipeline.New(*cfg.Pipeline)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}

func closeEngine(eng *engine.Engine) {
	if err := eng.Close(); err != nil {
		slog.Error("[ENGINE] Close failed", "error", err)
	}
}
