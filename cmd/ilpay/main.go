// Command ilpay sends Interledger payments through Open Payments wallets.
//
// A payment takes two steps because the sender has to authorize it in the
// browser:
//
//	ilpay pay https://wallet.example/alice https://wallet.example/bob 12.50
//	# open the printed redirect URL, then with the interact_ref it returns with:
//	ilpay continue <token> <interact_ref>
//	ilpay status --poll <token>
//
// ilpay serve runs the return endpoint and an MCP server instead, so the
// second step happens automatically.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ilpay",
		Short:         "ilpay - Open Payments client for Interledger wallets",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (yaml, json or toml)")
	flags.String("client-wallet", "", "Wallet address identifying this client")
	flags.String("key-id", "", "Key id registered with the client wallet")
	flags.String("private-key-path", "", "PEM file with the client's Ed25519 private key")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(continueCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(jwksCmd())

	return rootCmd
}
