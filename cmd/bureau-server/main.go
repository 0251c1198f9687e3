// Command bureau-server is the TCP front end for bureau (spec §6): it
// binds a listener, recovers Engine/Dispatcher state from disk, and
// serves bureau's binary wire protocol over one goroutine per connection.
//
// Grounded on mrsladoje-HundDB's app.go bootstrap sequence (load
// config/state, construct the LSM, serve requests) and flydb's
// connection-per-goroutine server loop, using github.com/spf13/pflag for
// flag parsing per calvinalkan-agent-task's cmd/ entrypoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"bureau/internal/bureaulog"
	"bureau/internal/config"
	"bureau/internal/dispatcher"
	"bureau/internal/engine"
	"bureau/internal/protocol"
	"bureau/internal/storage"
)

func main() {
	var (
		bindAddr   = flag.String("addr", "", "override the configured bind address")
		configPath = flag.String("config", "", "path to a JSONC config file")
	)
	flag.Parse()

	logger := bureaulog.New("server", slog.LevelInfo)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", bureaulog.Err(err))
		os.Exit(1)
	}
	if *bindAddr != "" {
		cfg.BindAddr = *bindAddr
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", bureaulog.Err(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	dataStore, err := storage.NewFS(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	logStore, err := storage.NewFS(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("open log dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dcfg := dispatcher.Config{
		BlockTargetSize:        cfg.BlockTargetSize,
		BloomFalsePositiveRate: cfg.BloomFalsePositiveRate,
		CompactionCap:          cfg.CompactionWindowCap,
		CacheCapacity:          cfg.CacheCapacity,
	}
	d, err := dispatcher.Recover(ctx, dataStore, dcfg)
	if err != nil {
		return fmt.Errorf("recover dispatcher: %w", err)
	}
	go d.Run(ctx)

	ecfg := engine.Config{
		MemtableTargetSize: cfg.MemtableTargetSize,
		ShadowPoolCapacity: cfg.ShadowPoolCapacity,
	}
	e, err := engine.Recover(ctx, logStore, d, ecfg)
	if err != nil {
		return fmt.Errorf("recover engine: %w", err)
	}
	go e.Run(ctx)

	listener, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.BindAddr, err)
	}
	defer listener.Close()
	logger.Info("listening", "addr", cfg.BindAddr)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				<-e.Done()
				<-d.Done()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		go handleConn(ctx, conn, e, logger)
	}
}

func handleConn(ctx context.Context, conn net.Conn, e *engine.Engine, logger *slog.Logger) {
	defer conn.Close()
	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("connection read error", bureaulog.Err(err))
			}
			return
		}
		if err := dispatchRequest(ctx, conn, e, req); err != nil {
			logger.Debug("connection write error", bureaulog.Err(err))
			return
		}
	}
}

func dispatchRequest(ctx context.Context, conn net.Conn, e *engine.Engine, req *protocol.Request) error {
	switch req.Opcode {
	case protocol.OpGet:
		value, found, err := e.Get(ctx, req.Key)
		if err != nil {
			return protocol.WriteError(conn, protocol.ErrCodeInternal, err.Error())
		}
		return protocol.WriteGetReply(conn, value, found)
	case protocol.OpSet:
		err := e.Set(ctx, req.Key, req.Value)
		return protocol.WriteSetReply(conn, err)
	case protocol.OpSetAsync:
		err := e.SetAsync(ctx, req.Key, req.Value)
		return protocol.WriteSetReply(conn, err)
	default:
		return protocol.WriteError(conn, protocol.ErrCodeBadRequest, "unknown opcode")
	}
}
