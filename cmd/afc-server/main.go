// Command afc-server runs the AFC spectrum-inquiry HTTP service: it loads
// a persistent JSON config (flags and environment variables override it),
// loads the parameter set and incumbent registry from YAML, and serves
// requests until canceled.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rjboer/afc-engine/internal/discovery"
	"github.com/rjboer/afc-engine/internal/logging"
	"github.com/rjboer/afc-engine/internal/params"
	"github.com/rjboer/afc-engine/internal/protocol"
	"github.com/rjboer/afc-engine/internal/service"
)

func main() {
	const configPath = "afc-server.json"

	persistentCfg, err := loadOrCreateConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persistentCfg)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		log.Fatalf("save config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		log.Fatalf("parse log level: %v", err)
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		log.Fatalf("parse log format: %v", err)
	}
	logger := logging.New(level, format, os.Stdout)
	logging.SetDefault(logger)

	paramSet := params.DefaultParameterSet()
	if cfg.paramsPath != "" {
		paramSet, err = params.LoadParameterSet(cfg.paramsPath)
		if err != nil {
			log.Fatalf("load parameter set: %v", err)
		}
	}

	var incumbents []params.Incumbent
	if cfg.incumbentsPath != "" {
		incumbents, err = params.LoadIncumbents(cfg.incumbentsPath)
		if err != nil {
			log.Fatalf("load incumbents: %v", err)
		}
	}

	if cfg.discoverPeers {
		peers, err := discovery.DiscoverPeers(3)
		if err != nil {
			logger.Warn("peer discovery failed", logging.Field{Key: "error", Value: err.Error()})
		} else {
			for _, p := range peers {
				logger.Info("discovered afc peer", logging.Field{Key: "instance", Value: p.Instance}, logging.Field{Key: "hostname", Value: p.Hostname})
			}
		}
	}

	reg := prometheus.NewRegistry()
	srv := service.New(service.Config{Addr: cfg.listenAddr}, logger, reg, paramSet, incumbents, protocol.Policy{})

	logger.Info("afc-server starting", logging.Field{Key: "addr", Value: cfg.listenAddr}, logging.Field{Key: "incumbents", Value: len(incumbents)})
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

type cliConfig struct {
	listenAddr     string
	paramsPath     string
	incumbentsPath string
	logLevel       string
	logFormat      string
	discoverPeers  bool
}

type persistentConfig struct {
	ListenAddr     string `json:"listen_addr"`
	ParamsPath     string `json:"params_path"`
	IncumbentsPath string `json:"incumbents_path"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	DiscoverPeers  bool   `json:"discover_peers"`
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("afc-server", flag.ContinueOnError)
	fs.StringVar(&cfg.listenAddr, "listen-addr", envString(lookup, "AFC_LISTEN_ADDR", defaults.ListenAddr), "HTTP listen address")
	fs.StringVar(&cfg.paramsPath, "params", envString(lookup, "AFC_PARAMS_PATH", defaults.ParamsPath), "Path to the YAML parameter set")
	fs.StringVar(&cfg.incumbentsPath, "incumbents", envString(lookup, "AFC_INCUMBENTS_PATH", defaults.IncumbentsPath), "Path to the YAML incumbent registry")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "AFC_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "AFC_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.BoolVar(&cfg.discoverPeers, "discover-peers", envBool(lookup, "AFC_DISCOVER_PEERS", defaults.DiscoverPeers), "Browse mDNS for sibling AFC instances at startup")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		ListenAddr:     cfg.listenAddr,
		ParamsPath:     cfg.paramsPath,
		IncumbentsPath: cfg.incumbentsPath,
		LogLevel:       cfg.logLevel,
		LogFormat:      cfg.logFormat,
		DiscoverPeers:  cfg.discoverPeers,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	var cfg persistentConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
