// Command token-app creates SPL token mints, mints supply and transfers it
// from the configured wallet.
//
//	token-app create-mint --name Test --symbol TST --decimals 9
//	token-app mint --mint <address> --amount 2.5
//	token-app transfer --mint <address> --to <wallet> --amount 1
//	token-app balance --mint <address> [--watch]
//	token-app status <signature>
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	tokenapp "github.com/Ojas-Arora/token-app"
	"github.com/Ojas-Arora/token-app/metrics"
	solanago "github.com/Ojas-Arora/token-app/solana"
	"github.com/Ojas-Arora/token-app/tokenmanager"
)

const usage = `usage: token-app [--config file] <command> [flags]

commands:
  create-mint  create a new mint owned by the wallet
  mint         mint supply into the wallet's associated account
  transfer     transfer supply to another wallet
  balance      print native and token balances
  status       look up a transaction by signature
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := pflag.NewFlagSet("token-app", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "config file (default ./config.yaml when present)")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := tokenapp.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	level, _ := cfg.LogLevel()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := tokenapp.Open(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open")
		return 1
	}
	defer app.Close()

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	if cmd == "status" {
		return status(ctx, app, cmdArgs)
	}

	key, err := tokenapp.LoadPrivateKey(cfg.Solana.Keypair)
	if err != nil {
		log.Error().Err(err).Msg("load wallet")
		return 1
	}
	if err = app.Manager.Connect(solanago.NewKeypairWallet(key)); err != nil {
		log.Error().Err(err).Msg("connect wallet")
		return 1
	}

	switch cmd {
	case "create-mint":
		return createMint(ctx, app, cmdArgs)
	case "mint":
		return mintSupply(ctx, app, cmdArgs)
	case "transfer":
		return transfer(ctx, app, cmdArgs)
	case "balance":
		return balance(ctx, app, cmdArgs, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func printJSON(v any) {
	out, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(out))
}

// fail reports err the way the user should see it and returns the exit code.
func fail(err error) int {
	fmt.Fprintln(os.Stderr, tokenmanager.UserMessage(err))
	if errors.Is(err, tokenmanager.ErrIndeterminate) {
		return 3
	}
	return 1
}

type resultView struct {
	Mint      string `json:"mint,omitempty"`
	Signature string `json:"signature,omitempty"`
	Amount    uint64 `json:"raw_amount,omitempty"`
	Decimals  uint8  `json:"decimals"`
}

func view(app *tokenapp.App, res *tokenmanager.Result) resultView {
	v := resultView{Mint: res.Mint.String(), Amount: res.Amount}
	if res.Signature != (solana.Signature{}) {
		v.Signature = res.Signature.String()
	}
	if session, ok := app.Manager.Session(); ok {
		v.Decimals = session.Decimals
	}
	return v
}

func useMint(ctx context.Context, app *tokenapp.App, mint string) int {
	if mint == "" {
		fmt.Fprintln(os.Stderr, "--mint is required")
		return 2
	}
	if _, err := app.Manager.UseMint(ctx, mint); err != nil {
		return fail(err)
	}
	return 0
}

func createMint(ctx context.Context, app *tokenapp.App, args []string) int {
	fs := pflag.NewFlagSet("create-mint", pflag.ContinueOnError)
	name := fs.String("name", "", "token name")
	symbol := fs.String("symbol", "", "token symbol")
	decimals := fs.String("decimals", "9", "decimal places, 0 to 9")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	res, err := app.Manager.CreateMint(ctx, tokenmanager.CreateMintRequest{Name: *name, Symbol: *symbol, Decimals: *decimals})
	if err != nil {
		return fail(err)
	}
	printJSON(view(app, res))
	return 0
}

func mintSupply(ctx context.Context, app *tokenapp.App, args []string) int {
	fs := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	mint := fs.String("mint", "", "mint address")
	amount := fs.String("amount", "", "amount in whole tokens, e.g. 2.5")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if code := useMint(ctx, app, *mint); code != 0 {
		return code
	}

	res, err := app.Manager.MintSupply(ctx, tokenmanager.MintRequest{Amount: *amount})
	if err != nil {
		return fail(err)
	}
	printJSON(view(app, res))
	return 0
}

func transfer(ctx context.Context, app *tokenapp.App, args []string) int {
	fs := pflag.NewFlagSet("transfer", pflag.ContinueOnError)
	mint := fs.String("mint", "", "mint address")
	to := fs.String("to", "", "recipient wallet address")
	amount := fs.String("amount", "", "amount in whole tokens")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if code := useMint(ctx, app, *mint); code != 0 {
		return code
	}
	// the advisory balance check needs a fresh snapshot
	if err := app.Poller.Refresh(ctx); err != nil {
		return fail(err)
	}

	res, err := app.Manager.Transfer(ctx, tokenmanager.TransferRequest{Recipient: *to, Amount: *amount})
	if err != nil {
		return fail(err)
	}
	printJSON(view(app, res))
	return 0
}

type balanceView struct {
	Owner    string `json:"owner"`
	SOL      string `json:"sol"`
	Mint     string `json:"mint,omitempty"`
	Token    string `json:"token,omitempty"`
	TokenRaw uint64 `json:"token_raw,omitempty"`
}

func printBalance(app *tokenapp.App) {
	s, ok := app.Manager.Balances()
	if !ok {
		return
	}
	v := balanceView{Owner: s.Owner.String(), SOL: s.NativeDisplay()}
	if !s.Mint.IsZero() {
		v.Mint = s.Mint.String()
		v.Token = s.TokenDisplay()
		v.TokenRaw = s.TokenRaw
	}
	printJSON(v)
}

func balance(ctx context.Context, app *tokenapp.App, args []string, log zerolog.Logger) int {
	fs := pflag.NewFlagSet("balance", pflag.ContinueOnError)
	mint := fs.String("mint", "", "mint address")
	watch := fs.Bool("watch", false, "keep polling and print every change")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *mint != "" {
		if code := useMint(ctx, app, *mint); code != 0 {
			return code
		}
	}
	if err := app.Poller.Refresh(ctx); err != nil {
		return fail(err)
	}
	printBalance(app)
	if !*watch {
		return 0
	}

	if addr := app.Config.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(app.Registry))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", addr).Msg("metrics server")
			}
		}()
		defer srv.Close()
		log.Info().Str("addr", addr).Msg("serving metrics")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last, _ := app.Manager.Balances()
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			s, _ := app.Manager.Balances()
			if s.UpdatedAt.After(last.UpdatedAt) && (s.Lamports != last.Lamports || s.TokenRaw != last.TokenRaw) {
				printBalance(app)
			}
			last = s
		}
	}
}

func status(ctx context.Context, app *tokenapp.App, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: token-app status <signature>")
		return 2
	}
	sig, err := solana.SignatureFromBase58(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid signature: %v\n", err)
		return 2
	}

	st, err := app.Gateway.SignatureStatus(ctx, sig)
	if err != nil {
		fmt.Fprintln(os.Stderr, tokenmanager.UserMessage(fmt.Errorf("%w: %v", tokenmanager.ErrRPCTransient, err)))
		return 1
	}
	if st == nil {
		printJSON(map[string]any{"signature": sig.String(), "status": "unknown"})
		return 0
	}
	printJSON(map[string]any{
		"signature":          sig.String(),
		"slot":               st.Slot,
		"confirmationStatus": st.ConfirmationStatus,
		"err":                st.Err,
	})
	return 0
}
