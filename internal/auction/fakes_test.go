package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore keeps auctions, bids and participants in memory with the same
// observable behavior as the Mongo collections.
type memStore struct {
	mu       sync.Mutex
	auctions map[primitive.ObjectID]models.Auction
	bids     map[primitive.ObjectID]models.Bid
	users    map[primitive.ObjectID]models.User
	assigned map[string][]string

	// failDelete makes DeleteBidsByBuyer fail for the listed auction ids.
	failDelete map[string]bool
	failAssign bool
}

func newMemStore() *memStore {
	return &memStore{
		auctions:   make(map[primitive.ObjectID]models.Auction),
		bids:       make(map[primitive.ObjectID]models.Bid),
		users:      make(map[primitive.ObjectID]models.User),
		assigned:   make(map[string][]string),
		failDelete: make(map[string]bool),
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w %q", db.ErrInvalidID, id)
	}
	return oid, nil
}

// auctions

func (m *memStore) InsertAuction(_ context.Context, a models.Auction) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	m.auctions[a.ID] = a
	return &a, nil
}

func (m *memStore) FindAuctionByID(_ context.Context, id string) (*models.Auction, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) FindAuctions(_ context.Context, filter db.AuctionFilter) ([]models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Auction
	for _, a := range m.auctions {
		if filter.SellerID != "" && a.SellerID != filter.SellerID {
			continue
		}
		if filter.State != "" && a.State() != filter.State {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) UpdateAuction(_ context.Context, a models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[a.ID]; !ok {
		return db.ErrNotFound
	}
	m.auctions[a.ID] = a
	return nil
}

// bids

func (m *memStore) InsertBid(_ context.Context, b models.Bid) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	m.bids[b.ID] = b
	return &b, nil
}

func (m *memStore) FindBidByID(_ context.Context, id string) (*models.Bid, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &b, nil
}

func (m *memStore) FindBidsByAuction(_ context.Context, auctionID string, round int) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Round == round {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BidTime.After(out[j].BidTime) })
	return out, nil
}

func (m *memStore) FindCurrentBid(_ context.Context, auctionID string, round int) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Round == round && b.IsCurrentBid {
			return &b, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) MarkCurrentBid(_ context.Context, auctionID string, winner primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.bids {
		if b.AuctionID == auctionID {
			b.IsCurrentBid = id == winner
			m.bids[id] = b
		}
	}
	return nil
}

func (m *memStore) DeleteBidsByBuyer(_ context.Context, auctionID string, round int, buyerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete[auctionID] {
		return 0, errors.New("connection reset")
	}
	var n int64
	for id, b := range m.bids {
		if b.AuctionID == auctionID && b.Round == round && b.BuyerID == buyerID {
			delete(m.bids, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) AuctionIDsByBuyer(_ context.Context, buyerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, b := range m.bids {
		if b.BuyerID == buyerID && !seen[b.AuctionID] {
			seen[b.AuctionID] = true
			out = append(out, b.AuctionID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) UpdateBidStatus(_ context.Context, id string, status models.BidStatus) (*models.Bid, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	b.Status = status
	m.bids[oid] = b
	return &b, nil
}

// participants

func (m *memStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[oid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) FindApprovedMechanics(_ context.Context, city string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		if u.IsApprovedMechanic() && u.City == city {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (m *memStore) AddAssignedRequest(_ context.Context, mechanicID, auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAssign {
		return errors.New("write conflict")
	}
	for _, id := range m.assigned[mechanicID] {
		if id == auctionID {
			return nil
		}
	}
	m.assigned[mechanicID] = append(m.assigned[mechanicID], auctionID)
	return nil
}

func (m *memStore) addUser(u models.User) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = primitive.NewObjectID()
	m.users[u.ID] = u
	return u.ID.Hex()
}

func (m *memStore) addAuction(a models.Auction) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = primitive.NewObjectID()
	m.auctions[a.ID] = a
	return a.ID.Hex()
}

func (m *memStore) auction(id string) models.Auction {
	oid, _ := primitive.ObjectIDFromHex(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auctions[oid]
}

func (m *memStore) setAuction(a models.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = a
}

func (m *memStore) roundBids(auctionID string, round int) []models.Bid {
	bids, _ := m.FindBidsByAuction(context.Background(), auctionID, round)
	return bids
}

// currentCount counts bids flagged current in a round.
func (m *memStore) currentCount(auctionID string, round int) int {
	n := 0
	for _, b := range m.roundBids(auctionID, round) {
		if b.IsCurrentBid {
			n++
		}
	}
	return n
}

// auctionCurrentCount counts bids flagged current in any round.
func (m *memStore) auctionCurrentCount(auctionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.IsCurrentBid {
			n++
		}
	}
	return n
}

type reported struct {
	userID string
	reason string
}

type fakeModerator struct {
	mu      sync.Mutex
	reports []reported
	err     error
}

func (f *fakeModerator) ReportUser(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, reported{userID: id, reason: reason})
	return f.err
}

type fakeChannels struct {
	mu    sync.Mutex
	chats map[string]models.InspectionChat
	calls int
	err   error
}

func (f *fakeChannels) EnsureChat(_ context.Context, chat models.InspectionChat) (*models.InspectionChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.chats == nil {
		f.chats = make(map[string]models.InspectionChat)
	}
	if existing, ok := f.chats[chat.InspectionTask]; ok {
		return &existing, nil
	}
	chat.ID = primitive.NewObjectID()
	f.chats[chat.InspectionTask] = chat
	return &chat, nil
}

func (f *fakeChannels) FindChatByTask(_ context.Context, auctionID string) (*models.InspectionChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[auctionID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &chat, nil
}

type fakePayments struct {
	paid map[string]bool
	err  error
}

func (f *fakePayments) PaymentCompleted(_ context.Context, auctionID string) (bool, error) {
	return f.paid[auctionID], f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AuctionEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event models.AuctionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) types() []models.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc       *Service
	store     *memStore
	moderator *fakeModerator
	channels  *fakeChannels
	payments  *fakePayments
	publisher *fakePublisher
	clock     *clock
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		moderator: &fakeModerator{},
		channels:  &fakeChannels{},
		payments:  &fakePayments{paid: make(map[string]bool)},
		publisher: &fakePublisher{},
		clock:     &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(Deps{
		Auctions:     f.store,
		Bids:         f.store,
		Participants: f.store,
		Moderator:    f.moderator,
		Channels:     f.channels,
		Payments:     f.payments,
		Publisher:    f.publisher,
		Clock:        f.clock.Now,
	})
	return f
}

func (f *fixture) buyer(name string) string {
	return f.store.addUser(models.User{Email: name + "@example.com", FirstName: name, Role: models.RoleBuyer, IsActive: true})
}

func (f *fixture) ongoingAuction() string {
	return f.store.addAuction(models.Auction{
		VehicleName:    "Honda City",
		SellerID:       "seller-1",
		Status:         models.ApprovalApproved,
		StartedAuction: models.StartedYes,
		Round:          1,
	})
}

// bid places a bid and advances the clock so bid times are distinct.
func (f *fixture) bid(auctionID, buyerID string, amount float64) *models.Bid {
	f.clock.Advance(time.Second)
	b, err := f.svc.PlaceBid(context.Background(), auctionID, buyerID, amount)
	if err != nil {
		panic(err)
	}
	return b
}
