// Command sse_load opens many subscribers on the coinledger SSE streams and, optionally,
// drives trades through the API so the streams have something to carry.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	portfolio   atomic.Int64
	ledger      atomic.Int64
	trades      atomic.Int64
	tradeErrs   atomic.Int64
}

func main() {
	var (
		baseURL     string
		streams     string
		connections int
		duration    time.Duration
		rampUp      time.Duration
		tradeEvery  time.Duration
		coinID      string
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&streams, "streams", "/portfolio/stream,/journal/stream", "comma separated stream paths, connections are spread across them")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscribers")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.DurationVar(&tradeEvery, "trade-every", 0, "buy and sell a small amount at this interval (0 disables)")
	flag.StringVar(&coinID, "coin", "dogecoin", "coin traded by the driver")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	paths := strings.Split(streams, ",")
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500+1) * time.Second
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	logger.Info("starting SSE load",
		zap.String("url", baseURL), zap.Strings("streams", paths),
		zap.Int("conns", connections), zap.Duration("ramp", rampUp), zap.Duration("trade_every", tradeEvery))

	var (
		c     counters
		wg    sync.WaitGroup
		start = time.Now()
	)

	if tradeEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drive(ctx, client, baseURL, coinID, tradeEvery, &c, logger)
		}()
	}

	interval := rampUp / time.Duration(connections)
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			subscribe(ctx, client, baseURL+path, &c)
		}(paths[i%len(paths)])
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report(logger, "status", &c, time.Since(start))
			}
		}
	}()

	wg.Wait()
	report(logger, "done", &c, time.Since(start))
}

func subscribe(ctx context.Context, client *http.Client, url string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}

	c.connected.Add(1)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		switch scanner.Text() {
		case "event: portfolio":
			c.portfolio.Add(1)
		case "event: ledger":
			c.ledger.Add(1)
		}
	}
	if ctx.Err() == nil {
		c.streamErrs.Add(1)
	}
}

// drive funds the active portfolio once, then alternates buys and sells of coinID.
func drive(ctx context.Context, client *http.Client, baseURL, coinID string, every time.Duration, c *counters, logger *zap.Logger) {
	post := func(path, body string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewBufferString(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &statusError{path: path, code: resp.StatusCode}
		}
		return nil
	}

	if err := post("/portfolio/charge", `{"amount": "1000000"}`); err != nil {
		logger.Error("failed to fund portfolio", zap.Error(err))
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	side := "buy"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := post("/portfolio/trade", `{"coinID": "`+coinID+`", "type": "`+side+`", "amount": "1"}`)
			if err != nil {
				c.tradeErrs.Add(1)
				if ctx.Err() == nil {
					logger.Warn("trade failed", zap.Error(err))
				}
				continue
			}
			c.trades.Add(1)
			if side == "buy" {
				side = "sell"
			} else {
				side = "buy"
			}
		}
	}
}

type statusError struct {
	path string
	code int
}

func (e *statusError) Error() string {
	return e.path + ": " + http.StatusText(e.code)
}

func report(logger *zap.Logger, msg string, c *counters, elapsed time.Duration) {
	events := c.portfolio.Load() + c.ledger.Load()
	perSec := float64(events) / max(elapsed.Seconds(), 0.001)
	logger.Info(msg,
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("portfolio_events", c.portfolio.Load()),
		zap.Int64("ledger_events", c.ledger.Load()),
		zap.Int64("trades", c.trades.Load()),
		zap.Int64("trade_errs", c.tradeErrs.Load()),
		zap.Duration("elapsed", elapsed.Truncate(time.Second)),
		zap.Float64("events_per_sec", perSec),
	)
}
