package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of a storage node
type Config struct {
	// NodeID identifies the node in the cluster. A random id is generated when empty.
	NodeID string `env:"RAFTSTORE_NODE_ID"`
	// DataDir is the directory holding the transaction log
	DataDir string `env:"RAFTSTORE_DATA_DIR" envDefault:"./data"`
	// TxLogFile is the name of the transaction log file inside DataDir
	TxLogFile string `env:"RAFTSTORE_TXLOG_FILE" envDefault:"txlog.db"`
	// ListenAddr is the address the gRPC server binds to once recovery has completed
	ListenAddr string `env:"RAFTSTORE_LISTEN_ADDR" envDefault:"localhost:50051"`
}

// Load reads the configuration from environment variables
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// TxLogPath returns the full path of the transaction log file
func (c Config) TxLogPath() string {
	return filepath.Join(c.DataDir, c.TxLogFile)
}

// Validate rejects configurations a node cannot start with
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	if strings.TrimSpace(c.TxLogFile) == "" {
		errs = append(errs, errors.New("transaction log file is required"))
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	return errors.Join(errs...)
}
