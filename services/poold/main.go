package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/config"
	"dollarpool/core/events"
	nativecommon "dollarpool/native/common"
	"dollarpool/native/pool"
	"dollarpool/native/token"
	"dollarpool/observability/logging"
	otelinit "dollarpool/observability/otel"
	"dollarpool/services/poold/server"
	auditstore "dollarpool/services/poold/storage"
	"dollarpool/storage"
)

const dollarDecimals = 18

func main() {
	configPath := flag.String("config", "config.toml", "path to the poold configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("poold exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Service.Name, cfg.Service.Environment, cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otelinit.Init(ctx, otelinit.Config{
			ServiceName: cfg.Service.Name,
			Environment: cfg.Service.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.Storage.StatePath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	poolStore := pool.NewStore(storage.NewKVStore(db))

	audit, err := auditstore.Open(cfg.Storage.AuditDSN)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	bank := token.NewBank()
	stableToken, err := bank.Create(common.HexToAddress(cfg.Stable.Address), cfg.Stable.Symbol, dollarDecimals)
	if err != nil {
		return fmt.Errorf("create stable ledger: %w", err)
	}

	seedLedgers := make([]*token.Token, 0, len(cfg.Collateral))
	for _, seed := range cfg.Collateral {
		ledger, err := bank.Create(common.HexToAddress(seed.Address), seed.Symbol, seed.Decimals)
		if err != nil {
			return fmt.Errorf("create collateral ledger %s: %w", seed.Symbol, err)
		}
		seedLedgers = append(seedLedgers, ledger)
	}
	vaults := make(map[common.Address]*token.Vault, len(cfg.AmoVaults))
	seedVaults := make([]*token.Vault, 0, len(cfg.AmoVaults))
	for _, seed := range cfg.AmoVaults {
		vault, err := token.NewVault(common.HexToAddress(seed.Address), seedLedgers[seed.CollateralIndex], seed.CollateralIndex)
		if err != nil {
			return fmt.Errorf("create amo vault %s: %w", seed.Address, err)
		}
		vaults[vault.Address()] = vault
		seedVaults = append(seedVaults, vault)
	}

	oracle := pool.NewPostedPrice(cfg.Pool.PriceMaxAge.Duration)
	admin := common.HexToAddress(cfg.Pool.Admin)
	engine := pool.NewEngine(admin, common.HexToAddress(cfg.Pool.PoolAddress), stableToken, oracle)
	engine.SetStore(poolStore)

	switchboard := nativecommon.NewSwitchboard()
	engine.SetPauses(switchboard)
	engine.SetEmitter(events.MultiEmitter{
		&auditEmitter{store: audit, logger: logger},
		logEmitter{logger: logger},
	})

	hasState, err := poolStore.HasState()
	if err != nil {
		return fmt.Errorf("inspect state: %w", err)
	}
	if hasState {
		resolver := &runtimeResolver{bank: bank, vaults: vaults}
		if err := engine.Restore(resolver); err != nil {
			return fmt.Errorf("restore pool state: %w", err)
		}
		logger.Info("pool state restored", "collaterals", engine.CollateralCount(), "minters", len(engine.AmoMinters()))
	} else {
		if err := seedEngine(engine, admin, cfg, seedLedgers, seedVaults); err != nil {
			return fmt.Errorf("seed pool: %w", err)
		}
		logger.Info("pool seeded from configuration", "collaterals", engine.CollateralCount())
	}

	srv, err := server.New(cfg, server.Deps{
		Engine:      engine,
		Bank:        bank,
		Oracle:      oracle,
		Audit:       audit,
		Switchboard: switchboard,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	return srv.Run(ctx)
}

// seedEngine registers configured collateral and vaults on an empty pool.
func seedEngine(engine *pool.Engine, admin common.Address, cfg *config.Config, ledgers []*token.Token, vaults []*token.Vault) error {
	if err := engine.SetPriceThresholds(admin, cfg.Pool.MintPriceThreshold, cfg.Pool.RedeemPriceThreshold); err != nil {
		return err
	}
	if err := engine.SetRedemptionDelay(admin, cfg.Pool.RedemptionDelay); err != nil {
		return err
	}
	for i, seed := range cfg.Collateral {
		ceiling, err := seedCeiling(seed.Ceiling)
		if err != nil {
			return fmt.Errorf("collateral %s: %w", seed.Symbol, err)
		}
		index, err := engine.AddCollateral(admin, ledgers[i], ceiling)
		if err != nil {
			return fmt.Errorf("register %s: %w", seed.Symbol, err)
		}
		if seed.MintingFee > 0 || seed.RedemptionFee > 0 {
			if err := engine.SetFees(admin, index, seed.MintingFee, seed.RedemptionFee); err != nil {
				return fmt.Errorf("fees for %s: %w", seed.Symbol, err)
			}
		}
		if seed.Enabled {
			if err := engine.ToggleCollateral(admin, index); err != nil {
				return fmt.Errorf("enable %s: %w", seed.Symbol, err)
			}
		}
	}
	for _, vault := range vaults {
		if err := engine.AddAmoMinter(admin, vault); err != nil {
			return fmt.Errorf("register vault %s: %w", vault.Address().Hex(), err)
		}
	}
	return nil
}

func seedCeiling(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	ceiling, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || ceiling.Sign() < 0 {
		return nil, fmt.Errorf("invalid ceiling %q", raw)
	}
	return ceiling, nil
}

// runtimeResolver rebinds persisted handles through the bank and the vault set
// built from configuration.
type runtimeResolver struct {
	bank   *token.Bank
	vaults map[common.Address]*token.Vault
}

func (r *runtimeResolver) ResolveCollateral(addr common.Address) (pool.CollateralToken, bool) {
	return r.bank.ResolveCollateral(addr)
}

func (r *runtimeResolver) ResolveAmoMinter(addr common.Address) (pool.AmoMinter, bool) {
	vault, ok := r.vaults[addr]
	if !ok {
		return nil, false
	}
	return vault, true
}

// auditEmitter appends every pool event to the sqlite audit log.
type auditEmitter struct {
	store  *auditstore.Storage
	logger *slog.Logger
}

func (a *auditEmitter) Emit(evt events.Event) {
	if err := a.store.RecordEvent(context.Background(), evt.EventType(), evt.Attributes()); err != nil {
		a.logger.Error("audit event write failed", "type", evt.EventType(), "error", err)
	}
}

// logEmitter mirrors pool events onto the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	l.logger.Info("pool event", "type", evt.EventType(), "attributes", evt.Attributes())
}
