package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/events"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/profile"
	"github.com/vadiminshakov/coinledger/internal/services/market"
	"github.com/vadiminshakov/coinledger/internal/session"
	"github.com/vadiminshakov/coinledger/internal/storage/journal"
	"github.com/vadiminshakov/coinledger/internal/storage/portfoliostate"
	"github.com/vadiminshakov/coinledger/internal/storage/profilestate"
	"github.com/vadiminshakov/coinledger/pkg/retrier"
)

type fixture struct {
	srv     *httptest.Server
	ledger  *ledger.Ledger
	journal *journal.WALStore
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*domain.Portfolio, error) { return nil, nil }
func (brokenStore) Save(context.Context, string, domain.Portfolio) error {
	return errors.New("disk full")
}
func (brokenStore) Delete(context.Context, string) error { return nil }

func newFixture(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	dir := t.TempDir()

	if store == nil {
		fileStore, err := portfoliostate.NewStore(dir + "/portfolios")
		require.NoError(t, err)
		store = fileStore
	}
	wal, err := journal.NewWALStore(dir + "/journal")
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	changes := events.NewBroadcaster[events.PortfolioChanged](16)
	l, err := ledger.New(store,
		ledger.WithJournal(wal),
		ledger.WithBroadcaster(changes),
		ledger.WithRetrier(retrier.New(retrier.WithMaxRetries(0))),
	)
	require.NoError(t, err)

	registry, err := profilestate.NewStore(dir)
	require.NoError(t, err)
	profiles, err := profile.NewManager(context.Background(), registry, profile.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	s := NewServer(":0", l, market.NewCatalogue(nil), session.New(profiles, l),
		WithJournal(wal),
		WithChanges(changes),
		WithJournalPoll(20*time.Millisecond),
	)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, ledger: l, journal: wal}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (f *fixture) list(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_ChargeAndTrade(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": "1000"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$1,000.00", body["balanceText"])

	code, body = f.do(t, http.MethodPost, "/portfolio/trade", `{"coinID": "bitcoin", "type": "buy", "amount": "0.001"}`)
	require.Equal(t, http.StatusOK, code, "%v", body)
	trade := body["trade"].(map[string]interface{})
	assert.Equal(t, "bitcoin", trade["coinID"])
	assert.Equal(t, "buy", trade["type"])

	assert.True(t, f.ledger.Balance().Equal(decimal.RequireFromString("901.5")))

	code, body = f.do(t, http.MethodGet, "/portfolio", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "901.5", body["balance"])
	assert.Len(t, body["holdings"], 1)
	assert.Len(t, body["tradeHistory"], 1)
	assert.Equal(t, false, body["stale"])
}

func TestServer_RejectedTrades(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.ledger.Charge(context.Background(), decimal.NewFromInt(100)))

	tests := []struct {
		name     string
		body     string
		wantCode int
		reason   string
	}{
		{"insufficient balance", `{"coinID": "bitcoin", "type": "buy", "amount": 1}`, http.StatusUnprocessableEntity, "Insufficient balance"},
		{"nothing to sell", `{"coinID": "bitcoin", "type": "sell", "amount": 1}`, http.StatusUnprocessableEntity, "No holdings to sell"},
		{"zero amount", `{"coinID": "bitcoin", "type": "buy", "amount": 0}`, http.StatusUnprocessableEntity, "Invalid transaction amount"},
		{"unknown coin", `{"coinID": "notacoin", "type": "buy", "amount": 1}`, http.StatusUnprocessableEntity, "Unknown coin"},
		{"unknown type", `{"coinID": "bitcoin", "type": "hold", "amount": 1}`, http.StatusUnprocessableEntity, "Unknown trade type"},
		{"malformed", `{"coinID": `, http.StatusBadRequest, "Malformed request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/portfolio/trade", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.reason, body["reason"])
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.True(t, f.ledger.Balance().Equal(decimal.NewFromInt(100)))
	assert.Empty(t, f.ledger.TradeHistory())
}

func TestServer_ChargeRejectsNonPositive(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": -5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Invalid transaction amount", body["reason"])
}

func TestServer_UnsavedChangeIsReportedAsWarning(t *testing.T) {
	f := newFixture(t, brokenStore{})

	code, body := f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": 50}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["stale"])
	assert.Equal(t, "Portfolio could not be saved", body["warning"])
	assert.True(t, f.ledger.Balance().Equal(decimal.NewFromInt(50)))
}

func TestServer_Reset(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.ledger.Charge(context.Background(), decimal.NewFromInt(100)))

	code, body := f.do(t, http.MethodPost, "/portfolio/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["balance"])
}

func TestServer_Coins(t *testing.T) {
	f := newFixture(t, nil)

	coins := f.list(t, "/coins?sort=price")
	require.Len(t, coins, len(market.StaticCoins()))
	assert.Equal(t, "bitcoin", coins[0]["id"])

	coins = f.list(t, "/coins?sort=price&reverse=true")
	assert.NotEqual(t, "bitcoin", coins[0]["id"])

	coins = f.list(t, "/coins?q=DOGE")
	require.Len(t, coins, 1)
	assert.Equal(t, "dogecoin", coins[0]["id"])

	coins = f.list(t, "/coins?q=ether&sort=price&reverse=true")
	require.Len(t, coins, 2)
	assert.Equal(t, "tether", coins[0]["id"])
	assert.Equal(t, "ethereum", coins[1]["id"])

	assert.Len(t, f.list(t, "/coins/trending"), 10)
	gainers := f.list(t, "/coins/gainers")
	assert.Equal(t, "ripple", gainers[0]["id"])
	losers := f.list(t, "/coins/losers")
	assert.Equal(t, "solana", losers[0]["id"])

	code, body := f.do(t, http.MethodPost, "/coins/refresh", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, len(market.StaticCoins()), body["coins"])
}

func TestServer_Profiles(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodPost, "/profiles", `{"name": "Alice", "email": "Alice@Example.com", "pin": "1234"}`)
	require.Equal(t, http.StatusCreated, code, "%v", body)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, true, body["active"])
	assert.NotContains(t, body, "pinHash")

	code, body = f.do(t, http.MethodPost, "/profiles", `{"email": "alice@example.com", "pin": "1234"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Email is already registered", body["reason"])

	code, _ = f.do(t, http.MethodPost, "/profiles", `{"email": "not-an-email", "pin": "1234"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = f.do(t, http.MethodPost, "/profiles/bob@example.com/activate", `{"pin": "1234"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/profiles/signout", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, body = f.do(t, http.MethodPost, "/profiles/alice@example.com/activate", `{"pin": "9999"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Incorrect PIN", body["reason"])

	code, body = f.do(t, http.MethodPost, "/profiles/alice@example.com/activate", `{"pin": "1234"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice@example.com", body["active"])

	code, body = f.do(t, http.MethodPost, "/profiles/alice@example.com/cards",
		`{"number": "4242 4242 4242 4242", "expiryMonth": 12, "expiryYear": 2099, "cvv": "123", "holderName": "Alice"}`)
	require.Equal(t, http.StatusCreated, code, "%v", body)
	assert.Equal(t, "**** **** **** 4242", body["card"])
	assert.Equal(t, "12/99", body["expiry"])

	code, _ = f.do(t, http.MethodPost, "/profiles/alice@example.com/cards",
		`{"number": "4242 4242 4242 4241", "expiryMonth": 12, "expiryYear": 2099, "cvv": "123", "holderName": "Alice"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	profiles := f.list(t, "/profiles")
	require.Len(t, profiles, 1)
	assert.Len(t, profiles[0]["cards"], 1)

	code, _ = f.do(t, http.MethodDelete, "/profiles/alice@example.com", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.do(t, http.MethodDelete, "/profiles/alice@example.com", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ActivateRoutesTradesToNewProfile(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodPost, "/profiles", `{"email": "alice@example.com", "pin": "1234"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, http.MethodPost, "/profiles", `{"email": "bob@example.com", "pin": "5678"}`)
	require.Equal(t, http.StatusCreated, code)

	for i := 0; i < 20; i++ {
		code, _ = f.do(t, http.MethodPost, "/profiles/alice@example.com/activate", `{"pin": "1234"}`)
		require.Equal(t, http.StatusOK, code)
		code, body := f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": "1"}`)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "portfolio_alice@example.com", body["key"])

		code, _ = f.do(t, http.MethodPost, "/profiles/bob@example.com/activate", `{"pin": "5678"}`)
		require.Equal(t, http.StatusOK, code)
		code, body = f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": "2"}`)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "portfolio_bob@example.com", body["key"])
	}
	assert.True(t, f.ledger.Balance().Equal(decimal.NewFromInt(40)))

	code, _ = f.do(t, http.MethodPost, "/profiles/alice@example.com/activate", `{"pin": "1234"}`)
	require.Equal(t, http.StatusOK, code)
	_, body := f.do(t, http.MethodGet, "/portfolio", "")
	assert.Equal(t, "20", body["balance"])

	code, _ = f.do(t, http.MethodPost, "/profiles/signout", "")
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, ledger.DefaultKey, f.ledger.Key())
}

func TestServer_DeletedProfileStartsOverWhenRecreated(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := f.do(t, http.MethodPost, "/profiles", `{"email": "alice@example.com", "pin": "1234"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, http.MethodPost, "/portfolio/charge", `{"amount": "100"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/portfolio/trade", `{"coinID": "dogecoin", "type": "buy", "amount": "10"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodDelete, "/profiles/alice@example.com", "")
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, ledger.DefaultKey, f.ledger.Key())

	code, _ = f.do(t, http.MethodPost, "/profiles", `{"email": "alice@example.com", "pin": "4321"}`)
	require.Equal(t, http.StatusCreated, code)

	_, body := f.do(t, http.MethodGet, "/portfolio", "")
	assert.Equal(t, "portfolio_alice@example.com", body["key"])
	assert.Equal(t, "0", body["balance"])
	assert.Empty(t, body["holdings"])
	assert.Empty(t, body["tradeHistory"])
}

type sseEvent struct {
	id, name, data string
}

func readEvents(t *testing.T, ctx context.Context, url string) <-chan sseEvent {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		var ev sseEvent
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "id: "):
				ev.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				out <- ev
				ev = sseEvent{}
			}
		}
	}()
	return out
}

func next(t *testing.T, ch <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return sseEvent{}
	}
}

func TestServer_PortfolioStream(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := readEvents(t, ctx, f.srv.URL+"/portfolio/stream")

	var first events.PortfolioChanged
	ev := next(t, stream)
	require.Equal(t, "portfolio", ev.name)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &first))
	assert.Equal(t, "snapshot", first.Kind)
	assert.Equal(t, ledger.DefaultKey, first.Key)

	require.NoError(t, f.ledger.Charge(context.Background(), decimal.NewFromInt(75)))

	var change events.PortfolioChanged
	ev = next(t, stream)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &change))
	assert.Equal(t, "charge", change.Kind)
	assert.Equal(t, "75", change.Balance)
}

func TestServer_JournalStream(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.ledger.Charge(context.Background(), decimal.NewFromInt(10)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := readEvents(t, ctx, f.srv.URL+"/journal/stream")

	var entry domain.LedgerEvent
	ev := next(t, stream)
	require.Equal(t, "ledger", ev.name)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &entry))
	assert.Equal(t, domain.LedgerEventCharge, entry.Kind)
	firstID := ev.id
	assert.NotEmpty(t, firstID)

	_, err := f.ledger.Trade(context.Background(), market.StaticCoins()[7], domain.TradeTypeBuy, decimal.NewFromInt(10))
	require.NoError(t, err)

	ev = next(t, stream)
	require.NoError(t, json.Unmarshal([]byte(ev.data), &entry))
	assert.Equal(t, domain.LedgerEventTrade, entry.Kind)
	require.NotNil(t, entry.Trade)
	assert.Equal(t, "dogecoin", entry.Trade.CoinID)
	assert.NotEqual(t, firstID, ev.id)
}

func TestServer_JournalStreamRejectsBadIndex(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/journal/stream?after=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(errors.Wrap(domain.ErrInsufficientHoldings, "btc")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&ledger.PersistenceError{Key: "k", Err: errors.New("x")}))
}
