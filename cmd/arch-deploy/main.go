package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/decred/slog"

	"github.com/hoffmabc/arch-deploy/deploy"
	"github.com/hoffmabc/arch-deploy/rpc"
	"github.com/hoffmabc/arch-deploy/signer"
	"github.com/hoffmabc/arch-deploy/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "arch-deploy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		rpcURL      = flag.String("rpc", "", "ledger node JSON-RPC URL (overrides config)")
		network     = flag.String("network", "", "network: regtest, testnet or mainnet (overrides config)")
		binaryPath  = flag.String("binary", "", "path to the compiled program binary")
		keyPath     = flag.String("key", "authority.key", "path to the authority private key (hex); created if missing")
		progKeyPath = flag.String("program-key", "program.key", "path to the program account private key (hex); created if missing")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *binaryPath == "" {
		return fmt.Errorf("-binary is required")
	}

	bknd := slog.NewBackend(os.Stdout)
	log := bknd.Logger("DEPLOY")
	log.SetLevel(slog.LevelInfo)
	if *debug {
		log.SetLevel(slog.LevelDebug)
	}

	cfg, err := deploy.LoadConfig(*configPath, deploy.Overrides{
		RPCURL:  *rpcURL,
		Network: *network,
	})
	if err != nil {
		return err
	}

	binary, err := os.ReadFile(*binaryPath)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}

	authority, err := loadOrCreateKeypair(*keyPath, log)
	if err != nil {
		return err
	}
	programKey, err := loadOrCreateKeypair(*progKeyPath, log)
	if err != nil {
		return err
	}
	log.Infof("authority %s, program account %s", authority.Pubkey(), programKey.Pubkey())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warnf("interrupted; already-submitted transactions will still process")
		cancel()
	}()

	client := rpc.NewClient(cfg.RPCURL, log)

	var candidates []wallet.Wallet
	if cfg.Network.HasFaucet() {
		candidates = append(candidates, &wallet.Faucet{Client: client})
	}
	candidates = append(candidates, &wallet.Prompt{Log: log, Network: cfg.Network})
	w, err := wallet.Probe(ctx, log, candidates...)
	if err != nil {
		return err
	}

	d := deploy.New(cfg, client, w, log, authority, programKey, nil)

	ntfns, unsub := d.Notifications().Subscribe()
	defer unsub()
	go func() {
		for p := range ntfns {
			if p.Level == deploy.LevelError {
				log.Errorf("[%s] %s", p.Phase, p.Message)
			} else {
				log.Infof("[%s] %s", p.Phase, p.Message)
			}
		}
	}()

	return d.Deploy(ctx, binary)
}

// loadOrCreateKeypair reads a hex private key from path, generating and
// persisting a fresh one (0600) when the file does not exist.
func loadOrCreateKeypair(path string, log slog.Logger) (*signer.Keypair, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		kp, err := signer.KeypairFromHex(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return kp, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}

	kp, err := signer.NewKeypair()
	if err != nil {
		return nil, err
	}
	encoded := hex.EncodeToString(kp.PrivKey().Serialize())
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key %s: %w", path, err)
	}
	log.Infof("generated new keypair at %s (pubkey %s)", path, kp.Pubkey())
	return kp, nil
}
