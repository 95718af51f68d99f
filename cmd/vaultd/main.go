package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossvault/core/events"
	"crossvault/native/bridge"
	"crossvault/native/vault"
	"crossvault/observability/logging"
)

var (
	founder = addr(0x01)
	trader  = addr(0x02)
)

func main() {
	cfgPath := flag.String("config", "", "path to a TOML configuration file")
	flag.Parse()

	logger := logging.Setup("vaultd", os.Getenv("VAULTD_ENV"))

	cfg := defaultConfig()
	if *cfgPath != "" {
		if _, err := toml.DecodeFile(*cfgPath, &cfg); err != nil {
			logger.Error("load config", "path", *cfgPath, "err", err)
			os.Exit(1)
		}
	}
	if err := run(logger, cfg); err != nil {
		logger.Error("vaultd failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg appConfig) error {
	relay := bridge.NewLoopback(logger)
	registry := prometheus.NewRegistry()

	vaults := make(map[string]*vault.Vault, len(cfg.Vaults))
	ledgers := make(map[string]*vault.MemoryTokenLedger, len(cfg.Vaults))
	shareLedgers := make(map[string]*vault.MemoryShareLedger, len(cfg.Vaults))
	for _, node := range cfg.Vaults {
		params, err := node.Engine.Parameters()
		if err != nil {
			return fmt.Errorf("vault %s: %w", node.Name, err)
		}
		tokens := vault.NewMemoryTokenLedger()
		shares := vault.NewMemoryShareLedger()
		escrows := vault.NewMemoryEscrowLedger()
		for i, bal := range node.InitialBalances {
			amount, ok := new(big.Int).SetString(bal, 10)
			if !ok {
				return fmt.Errorf("vault %s: bad initial balance %q", node.Name, bal)
			}
			tokens.CreditVault(params.Assets[i].ID, amount)
			// The trader keeps a working balance of every asset.
			tokens.CreditAccount(params.Assets[i].ID, trader, amount)
		}
		if err := shares.Mint(founder, genesisShares()); err != nil {
			return fmt.Errorf("vault %s: genesis mint: %w", node.Name, err)
		}
		v, err := vault.New(params, tokens, shares, escrows, relay.Endpoint(node.Name))
		if err != nil {
			return fmt.Errorf("vault %s: %w", node.Name, err)
		}
		v.SetLogger(logger.With("vault", node.Name))
		v.SetEmitter(&events.MemoryEmitter{})
		v.SetMetrics(vault.NewMetrics(prometheus.WrapRegistererWith(prometheus.Labels{"vault": node.Name}, registry)))
		relay.Register(node.Name, v)
		vaults[node.Name] = v
		ledgers[node.Name] = tokens
		shareLedgers[node.Name] = shares
	}

	// Whitelist every vault pair on the shared channel.
	for name, v := range vaults {
		for peer := range vaults {
			if peer != name {
				v.SetConnection(cfg.Channel, peer, true)
			}
		}
	}

	if err := runDemo(logger, cfg, relay, vaults, ledgers, shareLedgers); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		return http.ListenAndServe(cfg.MetricsAddr, mux)
	}
	return nil
}

func genesisShares() *big.Int {
	out, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	return out
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}
