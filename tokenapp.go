// Package tokenapp wires the token workflow together: configuration, the RPC
// gateway, balance polling, metrics and the token manager.
//
// Example:
//
//	cfg, _ := tokenapp.LoadConfig("")
//	app, _ := tokenapp.Open(ctx, cfg, logger)
//	defer app.Close()
//
//	app.Manager.Connect(solanago.NewKeypairWallet(key))
//	res, _ := app.Manager.CreateMint(ctx, tokenmanager.CreateMintRequest{Name: "Test", Symbol: "TST", Decimals: "9"})
//	app.Manager.MintSupply(ctx, tokenmanager.MintRequest{Amount: "2.5"})
package tokenapp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Ojas-Arora/token-app/config"
	"github.com/Ojas-Arora/token-app/gateway"
	"github.com/Ojas-Arora/token-app/metrics"
	"github.com/Ojas-Arora/token-app/poller"
	"github.com/Ojas-Arora/token-app/tokenmanager"
)

// LoadConfig reads settings from config.yaml, .env and TOKEN_APP_* variables.
var LoadConfig = config.Load

// NewGateway creates an RPC gateway.
//
// Example:
//
// gw := NewGateway(rpc.New(rpc.DevNet_RPC), gateway.WithCommitment(rpc.CommitmentConfirmed))
var NewGateway = gateway.New

// NewTokenManager creates a token manager on top of a gateway.
var NewTokenManager = tokenmanager.NewTokenManager

// NewPoller creates a standalone balance poller.
var NewPoller = poller.New

type App struct {
	Config   *config.Config
	RPC      *rpc.Client
	WS       *ws.Client
	Gateway  *gateway.Gateway
	Poller   *poller.Poller
	Manager  *tokenmanager.TokenManager
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Open connects to the configured endpoints and builds the workflow. The
// websocket client is only dialled when solana.ws_url is set.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	commitment, err := cfg.CommitmentType()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		RPC:      rpc.New(cfg.Solana.RPCURL),
		Registry: prometheus.NewRegistry(),
	}
	app.Metrics = metrics.NewMetrics("token_app", app.Registry)

	opts := []gateway.Option{
		gateway.WithCommitment(commitment),
		gateway.WithConfirmTimeout(cfg.Solana.ConfirmTimeout),
		gateway.WithMetrics(app.Metrics),
		gateway.WithLogger(log.With().Str("component", "gateway").Logger()),
	}
	if cfg.Solana.WSURL != "" {
		app.WS, err = ws.Connect(ctx, cfg.Solana.WSURL)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Solana.WSURL, err)
		}
		opts = append(opts, gateway.WithWebsocket(app.WS))
	}
	app.Gateway = NewGateway(app.RPC, opts...)

	app.Poller = NewPoller(app.Gateway,
		poller.WithNativeInterval(cfg.Poll.NativeInterval),
		poller.WithTokenInterval(cfg.Poll.TokenInterval),
		poller.WithMetrics(app.Metrics),
		poller.WithLogger(log.With().Str("component", "poller").Logger()),
	)
	app.Manager = NewTokenManager(app.Gateway,
		tokenmanager.WithTracker(app.Poller),
		tokenmanager.WithMetrics(app.Metrics),
		tokenmanager.WithLogger(log.With().Str("component", "tokenmanager").Logger()),
	)
	return app, nil
}

// Close stops polling and releases the connections.
func (a *App) Close() {
	a.Poller.Stop()
	if a.WS != nil {
		a.WS.Close()
	}
	_ = a.RPC.Close()
}

// LoadPrivateKey accepts either a solana-keygen JSON file or a base58
// encoded private key.
func LoadPrivateKey(keypair string) (solana.PrivateKey, error) {
	keypair = strings.TrimSpace(keypair)
	if keypair == "" {
		return nil, fmt.Errorf("no keypair configured, set solana.keypair or TOKEN_APP_SOLANA_KEYPAIR")
	}
	if _, err := os.Stat(keypair); err == nil {
		return solana.PrivateKeyFromSolanaKeygenFile(keypair)
	}
	key, err := solana.PrivateKeyFromBase58(keypair)
	if err != nil {
		return nil, fmt.Errorf("keypair is neither a readable file nor a base58 private key: %w", err)
	}
	return key, nil
}
