package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"campchain/config"
	"campchain/core"
	"campchain/native/fees"
	"campchain/observability/logging"
	telemetry "campchain/observability/otel"
	"campchain/rpc"
	"campchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("CAMP_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("campd", env, logging.Options{File: cfg.Node.LogFile})

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "campd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	db, err := openDatabase(cfg.Node)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	policy := fees.Policy{FeePercent: cfg.Node.FeePercent}
	if treasury := strings.TrimSpace(cfg.Node.Treasury); treasury != "" {
		policy.Treasury = common.HexToAddress(treasury)
	}

	alloc, err := genesisAlloc(cfg.Node.Alloc)
	if err != nil {
		logger.Error("Failed to parse genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, policy, alloc, logger)
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(node, cfg.Node.RPCToken)
	logger.Info("RPC server listening", "address", cfg.Node.RPCAddress, "backend", cfg.Node.Backend)
	if err := server.Start(cfg.Node.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg config.NodeConfig) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func genesisAlloc(entries []config.Alloc) ([]core.GenesisAlloc, error) {
	alloc := make([]core.GenesisAlloc, 0, len(entries))
	for _, entry := range entries {
		address := strings.TrimSpace(entry.Address)
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("invalid genesis address %q", entry.Address)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(entry.Balance), 10)
		if !ok || balance.Sign() < 0 {
			return nil, fmt.Errorf("invalid genesis balance %q for %s", entry.Balance, entry.Address)
		}
		alloc = append(alloc, core.GenesisAlloc{
			Address: common.HexToAddress(address),
			Balance: balance,
		})
	}
	return alloc, nil
}
