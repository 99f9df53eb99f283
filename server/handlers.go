package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stablemint/crypto"
	"stablemint/engine"
	"stablemint/journal"
	"stablemint/ledger"
)

type operationRequest struct {
	Account          string `json:"account"`
	Asset            string `json:"asset,omitempty"`
	Amount           string `json:"amount,omitempty"`
	AmountCollateral string `json:"amountCollateral,omitempty"`
	AmountDebt       string `json:"amountDebt,omitempty"`
}

type apiError struct {
	Error        string `json:"error"`
	HealthFactor string `json:"healthFactor,omitempty"`
}

// Deposit handles POST /v1/collateral/deposit.
func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	err := s.engine.DepositCollateral(account, req.Asset, amount)
	s.finish(w, journal.Operation{
		Kind:    journal.KindDeposit,
		Account: req.Account,
		Asset:   strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:  amount.String(),
	}, err)
}

// Redeem handles POST /v1/collateral/redeem.
func (s *Server) Redeem(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	err := s.engine.RedeemCollateral(account, req.Asset, amount)
	s.finish(w, journal.Operation{
		Kind:    journal.KindRedeem,
		Account: req.Account,
		Asset:   strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:  amount.String(),
	}, err)
}

// Mint handles POST /v1/stable/mint.
func (s *Server) Mint(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	err := s.engine.MintStable(account, amount)
	s.finish(w, journal.Operation{
		Kind:    journal.KindMint,
		Account: req.Account,
		Amount:  amount.String(),
	}, err)
}

// Burn handles POST /v1/stable/burn.
func (s *Server) Burn(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount)
	if !ok {
		return
	}
	err := s.engine.BurnStable(account, amount)
	s.finish(w, journal.Operation{
		Kind:    journal.KindBurn,
		Account: req.Account,
		Amount:  amount.String(),
	}, err)
}

// DepositAndMint handles POST /v1/collateral/deposit-and-mint: deposit and
// mint as one atomic unit.
func (s *Server) DepositAndMint(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amountCollateral, ok := s.parseAmount(w, req.AmountCollateral)
	if !ok {
		return
	}
	amountDebt, ok := s.parseAmount(w, req.AmountDebt)
	if !ok {
		return
	}
	err := s.engine.DepositCollateralAndMint(account, req.Asset, amountCollateral, amountDebt)
	s.finish(w, journal.Operation{
		Kind:       journal.KindDepositAndMint,
		Account:    req.Account,
		Asset:      strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:     amountCollateral.String(),
		DebtAmount: amountDebt.String(),
	}, err)
}

// RedeemForBurn handles POST /v1/collateral/redeem-for-burn: burn and redeem
// as one atomic unit.
func (s *Server) RedeemForBurn(w http.ResponseWriter, r *http.Request) {
	req, account, ok := s.decode(w, r)
	if !ok {
		return
	}
	amountCollateral, ok := s.parseAmount(w, req.AmountCollateral)
	if !ok {
		return
	}
	amountDebt, ok := s.parseAmount(w, req.AmountDebt)
	if !ok {
		return
	}
	err := s.engine.RedeemCollateralForBurn(account, req.Asset, amountCollateral, amountDebt)
	s.finish(w, journal.Operation{
		Kind:       journal.KindRedeemForBurn,
		Account:    req.Account,
		Asset:      strings.ToUpper(strings.TrimSpace(req.Asset)),
		Amount:     amountCollateral.String(),
		DebtAmount: amountDebt.String(),
	}, err)
}

type positionResponse struct {
	Account    string            `json:"account"`
	Collateral map[string]string `json:"collateral"`
	ValueUSD   string            `json:"valueUsd"`
	Debt       string            `json:"debt"`
}

// GetPosition handles GET /v1/positions/{address}.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	account, err := crypto.DecodeAddress(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	resp := positionResponse{Account: account.String(), Collateral: make(map[string]string)}
	for _, asset := range s.engine.Assets() {
		amount, err := s.engine.CollateralOf(account, asset)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		if amount.Sign() > 0 {
			resp.Collateral[asset] = amount.String()
		}
	}
	value, err := s.engine.AccountCollateralValue(account)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	debt, err := s.engine.DebtOf(account)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp.ValueUSD = value.String()
	resp.Debt = debt.String()
	s.writeJSON(w, http.StatusOK, resp)
}

// GetJournal handles GET /v1/positions/{address}/journal.
func (s *Server) GetJournal(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	account, err := crypto.DecodeAddress(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid address: %w", err))
		return
	}
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []journal.Operation{})
		return
	}
	ops, err := s.journal.ByAccount(account.String(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ops)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (operationRequest, crypto.Address, bool) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return req, crypto.Address{}, false
	}
	account, err := crypto.DecodeAddress(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid account: %w", err))
		return req, crypto.Address{}, false
	}
	return req, account, true
}

func (s *Server) parseAmount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be a positive base-unit integer"))
		return nil, false
	}
	return amount, true
}

// finish journals the attempt, records metrics, and writes the response.
func (s *Server) finish(w http.ResponseWriter, op journal.Operation, opErr error) {
	status := journal.StatusApplied
	if opErr != nil {
		status = journal.StatusRejected
		op.Reason = opErr.Error()
	}
	op.Status = status
	s.metrics.ObserveOperation(op.Kind, status)
	if s.journal != nil {
		if _, err := s.journal.Record(op); err != nil {
			s.metrics.IncJournalFailure()
			s.logger.Error("journal write failed", "error", err, "kind", op.Kind)
		}
	}
	if opErr != nil {
		var hfErr *engine.HealthFactorError
		if errors.As(opErr, &hfErr) {
			s.metrics.ObserveHealthRejection()
			s.writeJSON(w, http.StatusConflict, apiError{
				Error:        opErr.Error(),
				HealthFactor: hfErr.Value.String(),
			})
			return
		}
		s.writeError(w, httpStatus(opErr), opErr)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrTokenNotAllowed),
		errors.Is(err, engine.ErrLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, engine.ErrHealthFactorTooLow):
		return http.StatusConflict
	case errors.Is(err, engine.ErrReentrantCall):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrTransferFailed),
		errors.Is(err, engine.ErrMintFailed),
		errors.Is(err, engine.ErrBurnFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, apiError{Error: err.Error()})
}
