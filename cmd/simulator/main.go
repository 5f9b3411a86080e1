package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// AuctionSummary is the part of an auction listing the simulator needs.
type AuctionSummary struct {
	ID          string  `json:"id"`
	VehicleName string  `json:"vehicle_name"`
	StartingBid float64 `json:"starting_bid"`
}

type snapshot struct {
	Auction    AuctionSummary `json:"auction"`
	CurrentBid *struct {
		BidAmount float64 `json:"bid_amount"`
		BuyerID   string  `json:"buyer_id"`
	} `json:"current_bid"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var errRejected = errors.New("bid rejected")

// Bidder places bids on behalf of one buyer account.
type Bidder struct {
	apiURL string
	token  string
	client *http.Client
	rng    *rand.Rand
}

func newBidder(apiURL, token string, seed int64) *Bidder {
	return &Bidder{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (b *Bidder) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, b.apiURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		return resp.StatusCode, fmt.Errorf("%w: %s (status %d)", errRejected, env.Message, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// OngoingAuctions lists the auctions currently accepting bids.
func (b *Bidder) OngoingAuctions(ctx context.Context) ([]AuctionSummary, error) {
	var auctions []AuctionSummary
	if _, err := b.do(ctx, http.MethodGet, "/auctions", nil, &auctions); err != nil {
		return nil, err
	}
	return auctions, nil
}

// CurrentAmount returns the current bid of an auction, or its starting bid
// when nobody has bid yet.
func (b *Bidder) CurrentAmount(ctx context.Context, auctionID string) (float64, error) {
	var snap snapshot
	if _, err := b.do(ctx, http.MethodGet, "/auctions/"+auctionID, nil, &snap); err != nil {
		return 0, err
	}
	if snap.CurrentBid != nil {
		return snap.CurrentBid.BidAmount, nil
	}
	return snap.Auction.StartingBid, nil
}

// PlaceBid submits amount and reports whether it became the current bid.
func (b *Bidder) PlaceBid(ctx context.Context, auctionID string, amount float64) (bool, error) {
	var bid struct {
		IsCurrentBid bool `json:"is_current_bid"`
	}
	status, err := b.do(ctx, http.MethodPost, "/auctions/"+auctionID+"/bids", map[string]float64{"bid_amount": amount}, &bid)
	if err != nil {
		return false, err
	}
	if status != http.StatusCreated {
		return false, fmt.Errorf("unexpected status %d", status)
	}
	return bid.IsCurrentBid, nil
}

// nextBid raises current by 1-5% rounded up to a whole 100, at least 100.
func nextBid(current float64, rng *rand.Rand) float64 {
	if current < 0 {
		current = 0
	}
	raise := current * (0.01 + rng.Float64()*0.04)
	raise = math.Max(100, math.Ceil(raise/100)*100)
	return current + raise
}

// Tick bids once on a random ongoing auction.
func (b *Bidder) Tick(ctx context.Context) error {
	auctions, err := b.OngoingAuctions(ctx)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}
	if len(auctions) == 0 {
		log.Debug("No ongoing auctions")
		return nil
	}

	target := auctions[b.rng.Intn(len(auctions))]
	current, err := b.CurrentAmount(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("load auction %s: %w", target.ID, err)
	}

	amount := nextBid(current, b.rng)
	isCurrent, err := b.PlaceBid(ctx, target.ID, amount)
	if err != nil {
		return fmt.Errorf("bid on %s: %w", target.ID, err)
	}
	log.WithFields(log.Fields{
		"auction_id":  target.ID,
		"vehicle":     target.VehicleName,
		"amount":      amount,
		"current_bid": isCurrent,
	}).Info("Placed bid")
	return nil
}

// Run bids on every tick until ctx is cancelled.
func (b *Bidder) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := b.Tick(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Bid tick failed")
			}
		}
	}
}

func splitTokens(v string) []string {
	var tokens []string
	for _, t := range strings.Split(v, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func main() {
	// one bidder per buyer token
	tokens := splitTokens(os.Getenv("SIM_AUTH_TOKEN"))
	if len(tokens) == 0 {
		log.Fatal("SIM_AUTH_TOKEN must hold at least one buyer token")
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	log.WithFields(log.Fields{
		"bidders":  len(tokens),
		"api_url":  apiURL,
		"interval": interval,
	}).Info("Starting bid simulation")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i, token := range tokens {
		b := newBidder(apiURL, token, time.Now().UnixNano()+int64(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx, interval)
		}()
	}
	wg.Wait()
	log.Info("Bid simulation stopped")
}
