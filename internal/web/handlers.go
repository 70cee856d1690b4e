package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/profile"
	"github.com/vadiminshakov/coinledger/internal/services/market"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type portfolioResponse struct {
	Key          string               `json:"key"`
	Balance      decimal.Decimal      `json:"balance"`
	BalanceText  string               `json:"balanceText"`
	Holdings     []domain.Holding     `json:"holdings"`
	TradeHistory []domain.TradeRecord `json:"tradeHistory"`
	Stale        bool                 `json:"stale"`
	Warning      string               `json:"warning,omitempty"`
}

type tradeResponse struct {
	Trade     domain.TradeRecord `json:"trade"`
	Portfolio portfolioResponse  `json:"portfolio"`
}

type cardView struct {
	Card       string `json:"card"`
	Expiry     string `json:"expiry"`
	HolderName string `json:"holderName"`
}

type profileView struct {
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Cards     []cardView `json:"cards"`
	CreatedAt time.Time  `json:"createdAt"`
	Active    bool       `json:"active"`
}

type chargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type tradeRequest struct {
	CoinID string          `json:"coinID"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type createProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Pin   string `json:"pin"`
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type cardRequest struct {
	Number      string `json:"number"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holderName"`
}

var errBadRequest = errors.New("malformed request body")

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal JSON response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func (s *Server) respondWithError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	reason := domain.Reason(err)
	if errors.Is(err, errBadRequest) {
		reason = "Malformed request"
	}
	s.respondWithJSON(w, code, errorResponse{Error: err.Error(), Reason: reason})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCoin),
		errors.Is(err, domain.ErrInvalidTradeType),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNoSuchHolding),
		errors.Is(err, domain.ErrInsufficientHoldings),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidPin),
		errors.Is(err, domain.ErrInvalidCard):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrIncorrectPin):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProfileExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

// respondApplied answers a mutation. A save failure after the change was applied
// is reported as a warning, anything else as an error.
func (s *Server) respondApplied(w http.ResponseWriter, err error, payload func(warning string) interface{}) {
	if err != nil && !ledger.IsPersistenceOnly(err) {
		s.respondWithError(w, err)
		return
	}
	warning := ""
	if err != nil {
		s.logger.Warn("change applied but not saved", zap.Error(err))
		warning = domain.Reason(err)
	}
	s.respondWithJSON(w, http.StatusOK, payload(warning))
}

func (s *Server) portfolio(warning string) portfolioResponse {
	p := s.ledger.Snapshot()
	return portfolioResponse{
		Key:          s.ledger.Key(),
		Balance:      p.Balance,
		BalanceText:  s.ledger.BalanceText(),
		Holdings:     p.Holdings,
		TradeHistory: p.TradeHistory,
		Stale:        s.ledger.Stale(),
		Warning:      warning,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"marketLive": s.market.Live(),
		"stale":      s.ledger.Stale(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.portfolio(""))
}

// POST /portfolio/charge
func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decode(r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}

	err := s.ledger.Charge(r.Context(), req.Amount)
	s.respondApplied(w, err, func(warning string) interface{} {
		return s.portfolio(warning)
	})
}

// POST /portfolio/trade
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decode(r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}
	tradeType, err := domain.ParseTradeType(req.Type)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	coin, err := s.market.Coin(r.Context(), req.CoinID)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	record, err := s.ledger.Trade(r.Context(), coin, tradeType, req.Amount)
	s.respondApplied(w, err, func(warning string) interface{} {
		return tradeResponse{Trade: record, Portfolio: s.portfolio(warning)}
	})
}

// POST /portfolio/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Reset(r.Context())
	s.respondApplied(w, err, func(warning string) interface{} {
		return s.portfolio(warning)
	})
}

// GET /coins?sort=price&reverse=true&q=btc
func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reverse, _ := strconv.ParseBool(q.Get("reverse"))

	coins := s.market.Search(r.Context(), q.Get("q"))
	s.respondWithJSON(w, http.StatusOK, market.SortCoins(coins, market.ParseSortKey(q.Get("sort")), reverse))
}

func (s *Server) handleTopList(list func(ctx context.Context) []domain.Coin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondWithJSON(w, http.StatusOK, list(r.Context()))
	}
}

// POST /coins/refresh
func (s *Server) handleRefreshCoins(w http.ResponseWriter, r *http.Request) {
	s.market.ClearCache()
	coins := s.market.Sorted(r.Context(), market.SortByMarketCap, false)
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"coins": len(coins),
		"live":  s.market.Live(),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	active := s.profiles.ActiveID()
	profiles := s.profiles.List()

	out := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, newProfileView(p, active))
	}
	s.respondWithJSON(w, http.StatusOK, out)
}

// POST /profiles
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decode(r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}

	p, err := s.profiles.Create(r.Context(), req.Name, req.Email, req.Pin)
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, newProfileView(p, s.profiles.ActiveID()))
}

// POST /profiles/{email}/activate
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	email := emailParam(r)
	var req pinRequest
	if err := decode(r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}

	if err := s.profiles.Login(r.Context(), email, req.Pin); err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]string{"active": s.profiles.ActiveID()})
}

// POST /profiles/signout
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.SignOut(r.Context()); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /profiles/{email}/cards
func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decode(r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}

	card, err := s.profiles.AddCard(r.Context(), emailParam(r), profile.CardInput{
		Number:      req.Number,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		CVV:         req.CVV,
		HolderName:  req.HolderName,
	})
	if err != nil {
		s.respondWithError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, newCardView(card))
}

// DELETE /profiles/{email}
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(r.Context(), emailParam(r)); err != nil {
		s.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func emailParam(r *http.Request) string {
	email := chi.URLParam(r, "email")
	if unescaped, err := url.PathUnescape(email); err == nil {
		return unescaped
	}
	return email
}

func newProfileView(p domain.Profile, active string) profileView {
	cards := make([]cardView, 0, len(p.Cards))
	for _, c := range p.Cards {
		cards = append(cards, newCardView(c))
	}
	return profileView{
		Email:     p.Email,
		Name:      p.Name,
		Cards:     cards,
		CreatedAt: p.CreatedAt,
		Active:    p.Email == active,
	}
}

func newCardView(c domain.PaymentCard) cardView {
	return cardView{Card: c.Masked(), Expiry: c.Expiry(), HolderName: c.HolderName}
}
