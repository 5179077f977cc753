package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type API struct {
	ListenAddr string
}

type Storage struct {
	// DataDir holds the Pebble databases (orders, ledger) and log files.
	DataDir string
}

type Kafka struct {
	// Brokers empty disables Kafka event publishing.
	Brokers []string
	Topic   string
}

type Node struct {
	// EscrowAddress is the exchange's own account in the custody ledger;
	// every open order's cost sits there until the order closes.
	EscrowAddress string
	LogFile       string
}

type Config struct {
	API     API
	Storage Storage
	Kafka   Kafka
	Node    Node
}

func Default() Config {
	return Config{
		API: API{
			ListenAddr: ":8080",
		},
		Storage: Storage{
			DataDir: "./data",
		},
		Kafka: Kafka{
			Brokers: nil,
			Topic:   "escrowdex.events",
		},
		Node: Node{
			EscrowAddress: "0x00000000000000000000000000000000000E5C04",
			LogFile:       "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment
// variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if addr := os.Getenv("API_LISTEN_ADDR"); addr != "" {
		cfg.API.ListenAddr = addr
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Kafka.Topic = topic
	}
	if escrow := os.Getenv("ESCROW_ADDRESS"); escrow != "" {
		cfg.Node.EscrowAddress = escrow
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Node.LogFile = logFile
	}

	return cfg
}
