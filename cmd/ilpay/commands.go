package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/flow"
	opchi "github.com/ilpay/openpayments-go/http/chi"
	opgin "github.com/ilpay/openpayments-go/http/gin"
	mcpserver "github.com/ilpay/openpayments-go/mcp/server"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// env is what a command runs with once the configuration is loaded.
type env struct {
	cfg          *Config
	logger       *slog.Logger
	orchestrator *flow.Orchestrator
}

// setup loads and validates the configuration and wires the orchestrator.
func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	o, err := cfg.Orchestrator(logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, orchestrator: o}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// flowOutput is what pay, continue and status print. Token is the encoded
// pending flow to pass to the next command.
type flowOutput struct {
	Flow            string                        `json:"flow"`
	State           string                        `json:"state"`
	RedirectURL     string                        `json:"redirectUrl,omitempty"`
	IncomingPayment *openpayments.IncomingPayment `json:"incomingPayment,omitempty"`
	Payment         *openpayments.Payment         `json:"payment,omitempty"`
	Token           string                        `json:"token"`
	Error           string                        `json:"error,omitempty"`
}

// printFlow prints p with its token and returns err, so a failed step still
// reports the state the flow ended in.
func (e *env) printFlow(cmd *cobra.Command, p *flow.Pending, err error) error {
	if p == nil {
		return err
	}
	token, encErr := flow.EncodePending(e.orchestrator.Client().Codec(), p)
	if encErr != nil {
		return errors.Join(err, encErr)
	}
	out := flowOutput{
		Flow:            p.ID,
		State:           p.State.String(),
		RedirectURL:     p.RedirectURL,
		IncomingPayment: p.IncomingPayment,
		Payment:         p.Payment,
		Token:           token,
	}
	if err != nil {
		out.Error = err.Error()
	}
	if printErr := printJSON(cmd.OutOrStdout(), out); printErr != nil {
		return errors.Join(err, printErr)
	}
	return err
}

func (e *env) decodeToken(token string) (*flow.Pending, error) {
	return flow.DecodePending(e.orchestrator.Client().Codec(), token)
}

func walletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wallet <address>",
		Short: "Show the asset and servers of a wallet address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			address, err := openpayments.ParseWalletAddress(args[0])
			if err != nil {
				return err
			}
			pointer, err := e.orchestrator.ResolveWallet(cmd.Context(), address)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pointer)
		},
	}
}

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay <sender> <receiver> <amount>",
		Short: "Start a payment and print the URL where the sender authorizes it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := e.cfg.ValidateReturn(); err != nil {
				return err
			}

			sender, err := openpayments.ParseWalletAddress(args[0])
			if err != nil {
				return err
			}
			receiver, err := openpayments.ParseWalletAddress(args[1])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("%w: %v", openpayments.ErrInvalidAmount, err)
			}

			id := flow.NewNonce()
			returnURL, err := flow.ReturnURL(e.cfg.ReturnURL, id)
			if err != nil {
				return err
			}
			order := flow.Order{
				ID:        id,
				Sender:    sender,
				Receiver:  receiver,
				Amount:    amount,
				ReturnURL: returnURL,
			}
			if ext, _ := cmd.Flags().GetString("external-id"); ext != "" {
				order.Metadata = &openpayments.Metadata{ExternalID: ext}
			}

			p, err := e.orchestrator.Start(cmd.Context(), order)
			return e.printFlow(cmd, p, err)
		},
	}
	cmd.Flags().String("external-id", "", "Reference stored with the incoming payment")
	cmd.Flags().String("return-url", "", "URL the sender returns to after authorizing")
	return cmd
}

func continueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continue <token> <interact_ref>",
		Short: "Execute an authorized payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			p, err := e.decodeToken(args[0])
			if err != nil {
				return err
			}
			hash, _ := cmd.Flags().GetString("hash")

			next, err := e.orchestrator.Finish(cmd.Context(), p, args[1], hash)
			return e.printFlow(cmd, next, err)
		},
	}
	cmd.Flags().String("hash", "", "hash query parameter from the return URL, verified when set")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <token>",
		Short: "Check whether the receiver of a payment has been paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			p, err := e.decodeToken(args[0])
			if err != nil {
				return err
			}

			if poll, _ := cmd.Flags().GetBool("poll"); poll {
				next, err := e.orchestrator.Poll(cmd.Context(), p, e.cfg.Poll)
				return e.printFlow(cmd, next, err)
			}
			next, err := e.orchestrator.Status(cmd.Context(), p)
			return e.printFlow(cmd, next, err)
		},
	}
	cmd.Flags().Bool("poll", false, "Poll until paid or the poll budget is spent")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interaction return endpoint and the payment MCP tools",
		Long: `Serve runs an HTTP server with:
- GET /payments/return, where the auth server sends the user back
- GET /payments/flows/{id}, the state of a flow
- /mcp, the streamable HTTP MCP endpoint with the payment tools

With --stdio only the MCP tools are served, over stdin and stdout.`,
		RunE: runServe,
	}
	cmd.Flags().String("listen-addr", "", "Address to listen on (default :8080)")
	cmd.Flags().String("return-url", "", "Public URL of GET /payments/return")
	cmd.Flags().String("router", "chi", "HTTP router (chi, gin)")
	cmd.Flags().Bool("stdio", false, "Serve MCP over stdin and stdout")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := e.cfg.ValidateReturn(); err != nil {
		return err
	}

	store := flow.NewMemoryStore()
	mcpSrv, err := mcpserver.NewPaymentServer("ilpay", Version, e.orchestrator, store, mcpserver.Config{
		ReturnURL: e.cfg.ReturnURL,
		Logger:    e.logger,
	})
	if err != nil {
		return err
	}

	if stdio, _ := cmd.Flags().GetBool("stdio"); stdio {
		return mcpSrv.ServeStdio()
	}

	router, _ := cmd.Flags().GetString("router")
	handler, err := newServeHandler(router, e, store, mcpSrv.Handler())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              e.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("listening", "addr", srv.Addr, "router", router)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	e.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// newServeHandler mounts the return endpoints and the MCP handler on the
// chosen router.
func newServeHandler(router string, e *env, store flow.Store, mcpHandler http.Handler) (http.Handler, error) {
	switch router {
	case "chi":
		r := chi.NewRouter()
		r.Mount("/payments", opchi.NewRouter(e.orchestrator, store, e.logger))
		r.Handle("/mcp", mcpHandler)
		return r, nil
	case "gin":
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery())
		r.GET("/payments/return", opgin.NewReturnHandler(e.orchestrator, store, e.logger))
		r.GET("/payments/flows/:id", opgin.NewFlowHandler(store))
		r.Any("/mcp", gin.WrapH(mcpHandler))
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown router %q", openpayments.ErrInvalidConfig, router)
	}
}

func jwksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the client's public key as a JWKS to register with the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.validateKey(); err != nil {
				return err
			}
			signer, err := cfg.Signer()
			if err != nil {
				return err
			}
			jwks, err := signer.JWKS()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(jwks))
			return err
		},
	}
}
