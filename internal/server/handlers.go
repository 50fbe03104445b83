package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/receiptdeck/qbo-backend/internal/intuit"
)

// handleConnect redirects to the upstream authorization URL.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.lifecycle.AuthCodeURL()
	if err != nil {
		http.Error(w, "missing client id or redirect uri", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback exchanges the upstream-supplied authorization code and
// bounces the user back to the frontend.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if oauthErr := q.Get("error"); oauthErr != "" {
		http.Error(w, "OAuth error: "+oauthErr, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	if _, err := s.lifecycle.Exchange(ctx, code, q.Get("realmId")); err != nil {
		slog.ErrorContext(ctx, "authorization code exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, s.frontendURL+"/?connected=true", http.StatusFound)
}

// receiptsResponse wraps the normalized receipt list.
type receiptsResponse struct {
	Receipts []intuit.Receipt `json:"receipts"`
}

// receiptResponse wraps a single normalized receipt.
type receiptResponse struct {
	Receipt intuit.Receipt `json:"receipt"`
}

// handleReceipts serves the normalized receipt list.
func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receipts, err := s.receipts.ListReceipts(ctx)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(ctx, w, receiptsResponse{Receipts: receipts}, http.StatusOK)
}

// handleReceipt serves a single normalized receipt by path id.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receipt, err := s.receipts.GetReceipt(ctx, r.PathValue("id"))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(ctx, w, receiptResponse{Receipt: receipt}, http.StatusOK)
}

// writeQueryError maps receipts client failures to the JSON error surface.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var queryErr *intuit.QueryError
	switch {
	case errors.Is(err, intuit.ErrNoTokens):
		writeJSONError(ctx, w, "no_tokens", http.StatusBadRequest)
	case errors.Is(err, intuit.ErrMissingCredentials):
		writeJSONError(ctx, w, "missing_credentials", http.StatusBadRequest)
	case errors.Is(err, intuit.ErrNotFound):
		writeJSONError(ctx, w, "not_found", http.StatusNotFound)
	case errors.As(err, &queryErr):
		writeJSON(ctx, w, queryFailedResponse{
			Error:  "qbo_query_failed",
			Status: queryErr.Status,
			Text:   queryErr.Body,
		}, http.StatusInternalServerError)
	default:
		slog.ErrorContext(ctx, "receipts request failed", "error", err)
		writeJSONError(ctx, w, "exception", http.StatusInternalServerError)
	}
}
