// Package server runs an MCP server whose tools drive Open Payments flows:
// resolving wallets, starting a payment, finishing it after the user has
// authorized it and reading its status.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openpayments "github.com/ilpay/openpayments-go"
	"github.com/ilpay/openpayments-go/flow"
	"github.com/ilpay/openpayments-go/mcp"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"
)

// Payments is the part of *flow.Orchestrator the tools use.
type Payments interface {
	ResolveWallet(ctx context.Context, address openpayments.WalletAddress) (*openpayments.PaymentPointer, error)
	Start(ctx context.Context, order flow.Order) (*flow.Pending, error)
	Finish(ctx context.Context, p *flow.Pending, interactRef, hash string) (*flow.Pending, error)
	Status(ctx context.Context, p *flow.Pending) (*flow.Pending, error)
}

// Config holds configuration for the payment server.
type Config struct {
	// ReturnURL is where the auth server sends the user after the
	// interaction. The flow id is added as the "flow" query parameter.
	ReturnURL string

	// Logger receives tool logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// PaymentServer wraps an MCP server with the payment tools registered.
type PaymentServer struct {
	mcpServer *mcpserver.MCPServer
	payments  Payments
	store     flow.Store
	config    Config
	logger    *slog.Logger
}

// NewPaymentServer creates a server named name that runs flows with payments
// and keeps them in store between tool calls.
func NewPaymentServer(name, version string, payments Payments, store flow.Store, config Config) (*PaymentServer, error) {
	if payments == nil || store == nil {
		return nil, fmt.Errorf("%w: payments and store are required", openpayments.ErrInvalidConfig)
	}
	if _, err := flow.ReturnURL(config.ReturnURL, ""); err != nil {
		return nil, err
	}

	s := &PaymentServer{
		mcpServer: mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(false)),
		payments:  payments,
		store:     store,
		config:    config,
		logger:    config.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.mcpServer.AddTool(mcpproto.NewTool(
		mcp.ToolResolveWallet,
		mcpproto.WithDescription("Look up an Open Payments wallet address: asset, scale and servers"),
		mcpproto.WithString(mcp.ArgWalletAddress, mcpproto.Required(), mcpproto.Description("Wallet address URL")),
	), s.resolveWallet)

	s.mcpServer.AddTool(mcpproto.NewTool(
		mcp.ToolStartPayment,
		mcpproto.WithDescription("Start a payment and return the URL where the sender must authorize it"),
		mcpproto.WithString(mcp.ArgSender, mcpproto.Required(), mcpproto.Description("Sender wallet address URL")),
		mcpproto.WithString(mcp.ArgReceiver, mcpproto.Required(), mcpproto.Description("Receiver wallet address URL")),
		mcpproto.WithString(mcp.ArgAmount, mcpproto.Required(), mcpproto.Description("Amount in the receiver's asset, e.g. 12.50")),
		mcpproto.WithString(mcp.ArgExternalID, mcpproto.Description("Reference stored with the incoming payment")),
	), s.startPayment)

	s.mcpServer.AddTool(mcpproto.NewTool(
		mcp.ToolFinishPayment,
		mcpproto.WithDescription("Execute an authorized payment with the interaction reference from the return URL"),
		mcpproto.WithString(mcp.ArgFlow, mcpproto.Required(), mcpproto.Description("Flow id returned by start_payment")),
		mcpproto.WithString(mcp.ArgInteractRef, mcpproto.Required(), mcpproto.Description("interact_ref query parameter")),
		mcpproto.WithString(mcp.ArgHash, mcpproto.Description("hash query parameter, verified when present")),
	), s.finishPayment)

	s.mcpServer.AddTool(mcpproto.NewTool(
		mcp.ToolPaymentStatus,
		mcpproto.WithDescription("Check whether the receiver of a payment has been paid"),
		mcpproto.WithString(mcp.ArgFlow, mcpproto.Required(), mcpproto.Description("Flow id returned by start_payment")),
	), s.paymentStatus)

	return s, nil
}

func (s *PaymentServer) resolveWallet(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	address, err := walletArg(req, mcp.ArgWalletAddress)
	if err != nil {
		return mcpproto.NewToolResultError(err.Error()), nil
	}

	pointer, err := s.payments.ResolveWallet(ctx, address)
	if err != nil {
		return s.toolError(mcp.ToolResolveWallet, "", err), nil
	}
	return mcpproto.NewToolResultJSON(pointer)
}

func (s *PaymentServer) startPayment(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	sender, err := walletArg(req, mcp.ArgSender)
	if err != nil {
		return mcpproto.NewToolResultError(err.Error()), nil
	}
	receiver, err := walletArg(req, mcp.ArgReceiver)
	if err != nil {
		return mcpproto.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString(mcp.ArgAmount)
	if err != nil {
		return mcpproto.NewToolResultError(mcp.InvalidArgument(mcp.ArgAmount, err).Error()), nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.IsNegative() {
		return mcpproto.NewToolResultError(mcp.InvalidArgument(mcp.ArgAmount, openpayments.ErrInvalidAmount).Error()), nil
	}

	id := flow.NewNonce()
	returnURL, err := flow.ReturnURL(s.config.ReturnURL, id)
	if err != nil {
		return s.toolError(mcp.ToolStartPayment, id, err), nil
	}

	order := flow.Order{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		ReturnURL: returnURL,
	}
	if ext := req.GetString(mcp.ArgExternalID, ""); ext != "" {
		order.Metadata = &openpayments.Metadata{ExternalID: ext}
	}

	p, err := s.payments.Start(ctx, order)
	if err != nil {
		return s.toolError(mcp.ToolStartPayment, id, err), nil
	}
	if err := s.store.Save(ctx, p); err != nil {
		return s.toolError(mcp.ToolStartPayment, id, err), nil
	}

	s.logger.Info("payment started", "flow", p.ID, "state", p.State.String())
	return mcpproto.NewToolResultJSON(mcp.Summarize(p))
}

func (s *PaymentServer) finishPayment(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	id, err := req.RequireString(mcp.ArgFlow)
	if err != nil {
		return mcpproto.NewToolResultError(mcp.InvalidArgument(mcp.ArgFlow, err).Error()), nil
	}
	ref, err := req.RequireString(mcp.ArgInteractRef)
	if err != nil {
		return mcpproto.NewToolResultError(mcp.InvalidArgument(mcp.ArgInteractRef, err).Error()), nil
	}

	p, err := s.store.Load(ctx, id)
	if err != nil {
		return s.toolError(mcp.ToolFinishPayment, id, err), nil
	}

	next, finishErr := s.payments.Finish(ctx, p, ref, req.GetString(mcp.ArgHash, ""))
	if next != nil {
		if err := s.store.Save(ctx, next); err != nil {
			return s.toolError(mcp.ToolFinishPayment, id, err), nil
		}
	}
	if finishErr != nil {
		return s.toolError(mcp.ToolFinishPayment, id, finishErr), nil
	}

	s.logger.Info("payment finished", "flow", id, "state", next.State.String())
	return mcpproto.NewToolResultJSON(mcp.Summarize(next))
}

func (s *PaymentServer) paymentStatus(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	id, err := req.RequireString(mcp.ArgFlow)
	if err != nil {
		return mcpproto.NewToolResultError(mcp.InvalidArgument(mcp.ArgFlow, err).Error()), nil
	}

	p, err := s.store.Load(ctx, id)
	if err != nil {
		return s.toolError(mcp.ToolPaymentStatus, id, err), nil
	}
	// Only executed payments can complete; earlier states are reported as stored.
	if p.State != flow.StatePaymentExecuted {
		return mcpproto.NewToolResultJSON(mcp.Summarize(p))
	}

	next, err := s.payments.Status(ctx, p)
	if next != nil {
		if saveErr := s.store.Save(ctx, next); saveErr != nil {
			return s.toolError(mcp.ToolPaymentStatus, id, saveErr), nil
		}
	}
	if err != nil {
		return s.toolError(mcp.ToolPaymentStatus, id, err), nil
	}
	return mcpproto.NewToolResultJSON(mcp.Summarize(next))
}

func (s *PaymentServer) toolError(tool, id string, err error) *mcpproto.CallToolResult {
	s.logger.Warn("payment tool failed", "tool", tool, "flow", id, "error", err)
	return mcpproto.NewToolResultErrorFromErr("payment tool failed", mcp.WrapToolError(err, tool, id))
}

func walletArg(req mcpproto.CallToolRequest, name string) (openpayments.WalletAddress, error) {
	raw, err := req.RequireString(name)
	if err != nil {
		return "", mcp.InvalidArgument(name, err)
	}
	address, err := openpayments.ParseWalletAddress(raw)
	if err != nil {
		return "", mcp.InvalidArgument(name, err)
	}
	return address, nil
}

// Handler returns the streamable HTTP handler for the server.
func (s *PaymentServer) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// Start serves the MCP endpoint on addr until ctx is done.
func (s *PaymentServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	s.logger.Info("starting payment mcp server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeStdio serves the MCP protocol over stdin and stdout.
func (s *PaymentServer) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server (for advanced usage)
func (s *PaymentServer) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
