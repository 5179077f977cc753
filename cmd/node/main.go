package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openswap-labs/escrowdex/params"
	"github.com/openswap-labs/escrowdex/pkg/api"
	"github.com/openswap-labs/escrowdex/pkg/custody"
	"github.com/openswap-labs/escrowdex/pkg/events"
	"github.com/openswap-labs/escrowdex/pkg/exchange"
	"github.com/openswap-labs/escrowdex/pkg/storage"
	"github.com/openswap-labs/escrowdex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	if !common.IsHexAddress(cfg.Node.EscrowAddress) {
		sugar.Fatalw("invalid escrow address", "address", cfg.Node.EscrowAddress)
	}
	escrow := common.HexToAddress(cfg.Node.EscrowAddress)

	// ---- Custody ledger ----
	vault, err := custody.NewVault(filepath.Join(cfg.Storage.DataDir, "ledger.db"))
	if err != nil {
		sugar.Fatalw("failed to open vault", "err", err)
	}
	defer vault.Close()

	// ---- Order table ----
	orderStore, err := storage.NewOrderStore(filepath.Join(cfg.Storage.DataDir, "orders.db"))
	if err != nil {
		sugar.Fatalw("failed to open order store", "err", err)
	}
	defer orderStore.Close()

	// ---- Notifications: websocket hub always, Kafka when configured ----
	var notifiers exchange.MultiNotifier

	var kafkaNotifier *events.KafkaNotifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier = events.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
		sugar.Infow("kafka_notifier_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// The hub is created by the API server; register it after construction.
	registry, err := exchange.NewRegistry(exchange.RegistryConfig{
		Escrow:   escrow,
		Custody:  vault,
		Store:    orderStore,
		Notifier: &notifiers,
		Logger:   logger,
	})
	if err != nil {
		sugar.Fatalw("failed to create registry", "err", err)
	}

	engine := exchange.NewEngine(registry, &notifiers, logger)

	server := api.NewServer(registry, engine, vault, logger)
	notifiers = append(notifiers, server.Hub())

	sugar.Infow("node_starting",
		"escrow", escrow.Hex(),
		"orders", registry.Count(),
		"listen", cfg.API.ListenAddr,
	)

	go func() {
		if err := server.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api server failed", "err", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	sugar.Infow("node_shutting_down")
}
