package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the wire frame in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type marketDef struct {
	Symbol   string  `json:"symbol"`
	PosLimit float64 `json:"posLimit"`
	TickSize float64 `json:"tickSize"`
}

type createGameReq struct {
	Code          string      `json:"code"`
	AdminPassword string      `json:"adminPassword"`
	Markets       []marketDef `json:"markets"`
}

type joinReq struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type placeOrderReq struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Qty    float64 `json:"qty"`
}

type ackResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Results aggregates what the bots observed.
type Results struct {
	OrdersSent  int64
	Timeouts    int64
	TradeFrames int64

	RoundTrips []time.Duration
	mu         sync.Mutex
}

func (r *Results) AddRoundTrip(d time.Duration) {
	r.mu.Lock()
	r.RoundTrips = append(r.RoundTrips, d)
	r.mu.Unlock()
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avg(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func minLat(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	m := latencies[0]
	for _, l := range latencies {
		if l < m {
			m = l
		}
	}
	return m
}

func maxLat(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	m := latencies[0]
	for _, l := range latencies {
		if l > m {
			m = l
		}
	}
	return m
}

func wsURL(base string) string {
	u := strings.TrimSuffix(base, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws"
}

func sendCmd(conn *websocket.Conn, typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Type: typ, Data: raw})
}

// readFrames splits one websocket message into its newline-batched frames.
func readFrames(conn *websocket.Conn) ([]envelope, error) {
	_, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var out []envelope
	for _, line := range strings.Split(string(payload), "\n") {
		if line == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// awaitAck reads until a frame of ackType arrives and reports its ok flag.
func awaitAck(conn *websocket.Conn, ackType string) error {
	deadline := time.Now().Add(10 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for time.Now().Before(deadline) {
		frames, err := readFrames(conn)
		if err != nil {
			return err
		}
		for _, f := range frames {
			if f.Type != ackType {
				continue
			}
			var ack ackResp
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				return err
			}
			if !ack.OK {
				return fmt.Errorf("%s rejected: %s", ackType, ack.Error)
			}
			return nil
		}
	}
	return fmt.Errorf("no %s before deadline", ackType)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	password := flag.String("password", "admin", "admin password for game creation")
	code := flag.String("code", "9001", "game code to create")
	market := flag.String("market", "BENCH", "market symbol")
	price := flag.Float64("price", 50, "order price, all bots quote here so orders cross")
	players := flag.Int("players", 20, "number of bot players")
	orderCount := flag.Int("n", 500, "orders per bot")
	outputFile := flag.String("o", "", "output JSON report file")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║        ClassDex Matching Benchmark - WebSocket Bot Swarm         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Server URL:   %s\n", *baseURL)
	fmt.Printf("  Game Code:    %s\n", *code)
	fmt.Printf("  Market:       %s\n", *market)
	fmt.Printf("  Players:      %d\n", *players)
	fmt.Printf("  Orders/Bot:   %d (total: %d)\n", *orderCount, *orderCount**players)
	fmt.Printf("  Price:        %.2f\n", *price)
	fmt.Println()

	fmt.Print("Checking server health... ")
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Get(*baseURL + "/health")
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("FAILED: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")

	fmt.Print("Creating game... ")
	admin, _, err := websocket.DefaultDialer.Dial(wsURL(*baseURL), nil)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	defer admin.Close()

	err = sendCmd(admin, "admin_create_game", createGameReq{
		Code:          *code,
		AdminPassword: *password,
		Markets: []marketDef{
			// Position limit high enough that bots never get rejected.
			{Symbol: *market, PosLimit: 1_000_000, TickSize: 0.5},
		},
	})
	if err == nil {
		err = awaitAck(admin, "admin_ack")
	}
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")

	results := &Results{RoundTrips: make([]time.Duration, 0, *orderCount**players)}

	// The admin connection doubles as the trade observer: every trade is
	// broadcast exactly once per connection.
	go func() {
		for {
			frames, err := readFrames(admin)
			if err != nil {
				return
			}
			for _, f := range frames {
				if f.Type == "trade" {
					atomic.AddInt64(&results.TradeFrames, 1)
				}
			}
		}
	}()

	fmt.Printf("Connecting %d bots... ", *players)
	type bot struct {
		conn     *websocket.Conn
		bundleCh chan time.Time
	}
	bots := make([]bot, 0, *players)
	for i := 0; i < *players; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(*baseURL), nil)
		if err != nil {
			fmt.Printf("FAILED: bot %d: %v\n", i, err)
			os.Exit(1)
		}
		defer conn.Close()
		if err := sendCmd(conn, "player_join", joinReq{Code: *code, Name: fmt.Sprintf("bot_%d", i)}); err != nil {
			fmt.Printf("FAILED: bot %d join: %v\n", i, err)
			os.Exit(1)
		}
		if err := awaitAck(conn, "join_ack"); err != nil {
			fmt.Printf("FAILED: bot %d join: %v\n", i, err)
			os.Exit(1)
		}
		bots = append(bots, bot{conn: conn, bundleCh: make(chan time.Time, 1)})
	}
	fmt.Println("OK")
	fmt.Println()

	// Each bot's reader signals when a state bundle lands. pnl_implied is
	// the last frame of every bundle.
	for i := range bots {
		b := bots[i]
		go func() {
			for {
				frames, err := readFrames(b.conn)
				if err != nil {
					return
				}
				for _, f := range frames {
					if f.Type != "pnl_implied" {
						continue
					}
					select {
					case b.bundleCh <- time.Now():
					default:
					}
				}
			}
		}()
	}

	var processed int64
	total := int64(*orderCount * *players)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := atomic.LoadInt64(&processed)
				pct := float64(p) / float64(total) * 100
				fmt.Printf("\r  Progress: %d/%d (%.1f%%) | Trades: %d    ",
					p, total, pct, atomic.LoadInt64(&results.TradeFrames))
			}
		}
	}()

	fmt.Println("Starting benchmark...")
	startTime := time.Now()

	var wg sync.WaitGroup
	for i := range bots {
		wg.Add(1)
		go func(idx int, b bot) {
			defer wg.Done()
			side := "buy"
			if idx%2 == 1 {
				side = "sell"
			}
			for j := 0; j < *orderCount; j++ {
				// Drain any stale bundle signal before timing this order.
				select {
				case <-b.bundleCh:
				default:
				}

				t0 := time.Now()
				err := sendCmd(b.conn, "place_order", placeOrderReq{
					Symbol: *market,
					Side:   side,
					Price:  *price,
					Qty:    1,
				})
				if err != nil {
					return
				}
				atomic.AddInt64(&results.OrdersSent, 1)

				select {
				case at := <-b.bundleCh:
					results.AddRoundTrip(at.Sub(t0))
				case <-time.After(5 * time.Second):
					atomic.AddInt64(&results.Timeouts, 1)
				}
				atomic.AddInt64(&processed, 1)

				if side == "buy" {
					side = "sell"
				} else {
					side = "buy"
				}
			}
		}(i, bots[i])
	}

	wg.Wait()
	close(done)
	elapsed := time.Since(startTime)

	fmt.Printf("\r                                                                              \r")
	fmt.Println()

	throughput := float64(results.OrdersSent) / elapsed.Seconds()
	rts := results.RoundTrips

	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       BENCHMARK RESULTS                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Test Duration:        %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput:           %.2f orders/sec\n", throughput)
	fmt.Println()

	fmt.Println("── Order Statistics ───────────────────────────────────────────────")
	fmt.Printf("  Orders Sent:        %d\n", results.OrdersSent)
	fmt.Printf("  Bundle Timeouts:    %d\n", results.Timeouts)
	fmt.Printf("  Trades Observed:    %d\n", results.TradeFrames)
	fmt.Println()

	fmt.Println("── Round Trip (send → next state bundle) ──────────────────────────")
	fmt.Printf("  Min:                %v\n", minLat(rts))
	fmt.Printf("  Max:                %v\n", maxLat(rts))
	fmt.Printf("  Average:            %v\n", avg(rts))
	fmt.Printf("  P50 (Median):       %v\n", percentile(rts, 0.50))
	fmt.Printf("  P90:                %v\n", percentile(rts, 0.90))
	fmt.Printf("  P95:                %v\n", percentile(rts, 0.95))
	fmt.Printf("  P99:                %v\n", percentile(rts, 0.99))
	fmt.Println()

	printServerCounters(httpClient, *baseURL)

	fmt.Println("── Assessment ─────────────────────────────────────────────────────")
	p99 := percentile(rts, 0.99)
	switch {
	case results.Timeouts > 0:
		fmt.Println("  ❌ Some orders never saw a state bundle within 5s")
	case p99 <= 100*time.Millisecond:
		fmt.Println("  ✅ P99 round trip under 100ms")
	case p99 <= 500*time.Millisecond:
		fmt.Println("  ⚠️  P99 round trip under 500ms")
	default:
		fmt.Println("  ❌ P99 round trip over 500ms")
	}
	fmt.Println()

	if *outputFile != "" {
		report := map[string]any{
			"config": map[string]any{
				"url":        *baseURL,
				"code":       *code,
				"market":     *market,
				"players":    *players,
				"orders_bot": *orderCount,
				"price":      *price,
			},
			"elapsed_ms":      elapsed.Milliseconds(),
			"orders_sent":     results.OrdersSent,
			"timeouts":        results.Timeouts,
			"trades_observed": results.TradeFrames,
			"throughput":      throughput,
			"round_trip_ms": map[string]float64{
				"min": float64(minLat(rts).Microseconds()) / 1000,
				"avg": float64(avg(rts).Microseconds()) / 1000,
				"p50": float64(percentile(rts, 0.50).Microseconds()) / 1000,
				"p90": float64(percentile(rts, 0.90).Microseconds()) / 1000,
				"p99": float64(percentile(rts, 0.99).Microseconds()) / 1000,
				"max": float64(maxLat(rts).Microseconds()) / 1000,
			},
		}
		data, _ := json.MarshalIndent(report, "", "  ")
		if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
			fmt.Printf("Failed to write report: %v\n", err)
		} else {
			fmt.Printf("Report written to %s\n", *outputFile)
		}
	}
}

// printServerCounters scrapes /metrics for the counters the benchmark cares
// about: matched trades and frames dropped on slow consumers.
func printServerCounters(client *http.Client, baseURL string) {
	resp, err := client.Get(baseURL + "/metrics")
	if err != nil {
		return
	}
	defer resp.Body.Close()

	fmt.Println("── Server Counters ────────────────────────────────────────────────")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "classdex_trades_total") ||
			strings.HasPrefix(line, "classdex_websocket_dropped_total") ||
			strings.HasPrefix(line, "classdex_matching_latency_ms_sum") ||
			strings.HasPrefix(line, "classdex_matching_latency_ms_count") {
			fmt.Printf("  %s\n", line)
		}
	}
	fmt.Println()
}
