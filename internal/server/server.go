// Package server exposes the HTTP surface: the OAuth connect/callback routes
// and the API-key-guarded receipts routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/receiptdeck/qbo-backend/internal/intuit"
	"github.com/receiptdeck/qbo-backend/internal/tokenstore"
)

// TokenExchanger drives the OAuth connect and callback routes.
// Implemented by intuit.Lifecycle.
type TokenExchanger interface {
	AuthCodeURL() (string, error)
	Exchange(ctx context.Context, code, realmID string) (tokenstore.Record, error)
}

// ReceiptFetcher serves the receipts routes. Implemented by intuit.Client.
type ReceiptFetcher interface {
	ListReceipts(ctx context.Context) ([]intuit.Receipt, error)
	GetReceipt(ctx context.Context, id string) (intuit.Receipt, error)
}

// Server is the backend's HTTP server.
type Server struct {
	handler http.Handler
	server  *http.Server

	lifecycle   TokenExchanger
	receipts    ReceiptFetcher
	frontendURL string
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates the HTTP surface. frontendURL is both the post-callback
// redirect target and the sole allowed CORS origin; apiKey guards the
// receipts routes.
func New(lifecycle TokenExchanger, receipts ReceiptFetcher, frontendURL, apiKey string) (*Server, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("missing token lifecycle")
	}
	if receipts == nil {
		return nil, fmt.Errorf("missing receipts client")
	}

	s := &Server{
		lifecycle:   lifecycle,
		receipts:    receipts,
		frontendURL: frontendURL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /connect", s.handleConnect)
	mux.HandleFunc("GET /callback", s.handleCallback)
	mux.Handle("GET /receipts", applyMiddlewares(http.HandlerFunc(s.handleReceipts),
		RequireAPIKey(apiKey),
	))
	mux.Handle("GET /receipt/{id}", applyMiddlewares(http.HandlerFunc(s.handleReceipt),
		RequireAPIKey(apiKey),
	))

	s.handler = applyMiddlewares(mux,
		Logging(slog.Default()),
		Recovery,
		RequestID,
		CORS(frontendURL),
	)

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 2 * time.Minute,  // Inbound: Allows a query plus one refresh-and-retry round trip, still bounded
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
