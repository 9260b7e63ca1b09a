// Command curiodbd is the TCP entrypoint for one curiodb cluster node: it
// loads configuration and the command metadata table, wires up the
// partitioned KeyManager/Router/Aggregator core, and serves RESP connections
// until SIGINT/SIGTERM. A client's SHUTDOWN command closes only that
// client's connection; it does not stop the server.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"curiodb/internal/bootstrap"
	"curiodb/internal/config"
	"curiodb/internal/descriptor"
	"curiodb/internal/logging"
	"curiodb/internal/persistence"
	"curiodb/internal/valuenode"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a curiodb YAML config file")
	metadataPath := flag.String("metadata", "", "path to a command metadata YAML file (overrides the embedded default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if node := flag.Arg(0); node != "" {
		cfg.Node = node
	}
	if *metadataPath != "" {
		cfg.MetadataFile = *metadataPath
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logging.Configure(level, cfg.LogPretty)
	log := logging.Component("server")

	table, err := loadTable(cfg.MetadataFile)
	if err != nil {
		return fmt.Errorf("curiodbd: %w", err)
	}
	valuenode.SetPrecision(uint8(cfg.HyperLogLog.RegisterLog))

	store, err := persistence.NewFileStore(cfg.DataDir, persistMode(cfg.PersistAfterMS))
	if err != nil {
		return fmt.Errorf("curiodbd: %w", err)
	}

	node, err := bootstrap.Build(cfg, table, store)
	if err != nil {
		return fmt.Errorf("curiodbd: %w", err)
	}

	addr, err := cfg.Listen()
	if err != nil {
		return fmt.Errorf("curiodbd: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("curiodbd: listen %s: %w", addr, err)
	}
	log.Info().Str("node", cfg.Node).Str("addr", addr).Int("partitions", len(node.Managers)).Msg("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			node.Accept(conn)
		}()
	}
	wg.Wait()

	node.Stop()
	log.Info().Msg("shutdown complete")
	return nil
}

func loadTable(path string) (*descriptor.Table, error) {
	if path == "" {
		return descriptor.LoadDefault()
	}
	return descriptor.LoadFile(path)
}

func persistMode(persistAfterMS int) persistence.Mode {
	if persistAfterMS < 0 {
		return persistence.ModeDisabled
	}
	if persistAfterMS == 0 {
		return persistence.ModeSync
	}
	return persistence.ModeDebounce
}
