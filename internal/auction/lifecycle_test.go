package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/drivebidrent/internal/models"
)

func TestCreateAuction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateAuction(ctx, models.Auction{
		VehicleName:    "Maruti Swift",
		SellerID:       "seller-1",
		StartingBid:    300000,
		Status:         models.ApprovalApproved,
		StartedAuction: models.StartedYes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, created.Status)
	assert.Equal(t, models.StartedNo, created.StartedAuction)
	assert.Equal(t, 1, created.Round)

	_, err = f.svc.CreateAuction(ctx, models.Auction{SellerID: "seller-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateAuction(ctx, models.Auction{VehicleName: "x", SellerID: "s", StartingBid: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartAuction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	approved := f.store.addAuction(models.Auction{Status: models.ApprovalApproved, StartedAuction: models.StartedNo})
	pending := f.store.addAuction(models.Auction{Status: models.ApprovalPending, StartedAuction: models.StartedNo})

	started, err := f.svc.StartAuction(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, models.StateOngoing, started.State())
	assert.Equal(t, 1, started.Round)

	_, err = f.svc.StartAuction(ctx, approved)
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	_, err = f.svc.StartAuction(ctx, pending)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, []models.EventType{models.EventAuctionStarted}, f.publisher.types())
}

func TestSetApprovalStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := f.store.addAuction(models.Auction{Status: models.ApprovalAssignedMechanic, StartedAuction: models.StartedNo})

	updated, err := f.svc.SetApprovalStatus(ctx, id, models.ApprovalApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, updated.Status)

	_, err = f.svc.SetApprovalStatus(ctx, id, "bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.StartAuction(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.SetApprovalStatus(ctx, id, models.ApprovalRejected)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStopAuction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	x := f.buyer("x")
	f.bid(auctionID, x, 500)

	snap, err := f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StateStopped, snap.State)
	require.NotNil(t, snap.Auction.PaymentDeadline)
	assert.Equal(t, f.clock.Now().Add(DefaultPaymentWindow), *snap.Auction.PaymentDeadline)
	require.NotNil(t, snap.CurrentBid)
	assert.Equal(t, x, snap.CurrentBid.BuyerID)
	assert.False(t, snap.ReauctionEligible)

	_, err = f.svc.StopAuction(ctx, auctionID, false)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.PlaceBid(ctx, auctionID, x, 900)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStopAuction_MarkEnded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()

	snap, err := f.svc.StopAuction(ctx, auctionID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StateEnded, snap.State)
	assert.NotNil(t, snap.Auction.PaymentDeadline)
	assert.Nil(t, snap.CurrentBid)
}

func TestCheckReauctionEligibility(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		auction *models.Auction
		want    bool
	}{
		{"nil auction", nil, false},
		{"ongoing", &models.Auction{StartedAuction: models.StartedYes, PaymentDeadline: &past, Round: 1}, false},
		{"stopped without deadline", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, Round: 1}, false},
		{"deadline not reached", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, PaymentDeadline: &future, Round: 1}, false},
		{"deadline exactly now", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, PaymentDeadline: &now, Round: 1}, true},
		{"deadline passed", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, PaymentDeadline: &past, Round: 1}, true},
		{"round already failed", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, PaymentDeadline: &past, PaymentFailed: true, FailedRound: 2, Round: 2}, false},
		{"earlier round failed", &models.Auction{StartedAuction: models.StartedYes, AuctionStopped: true, PaymentDeadline: &past, PaymentFailed: true, FailedRound: 1, Round: 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckReauctionEligibility(tt.auction, now))
		})
	}
}

func TestReAuction_FullCycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	x, y := f.buyer("x"), f.buyer("y")
	f.bid(auctionID, x, 500)
	winning := f.bid(auctionID, y, 800)

	_, err := f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)

	_, err = f.svc.ReAuction(ctx, auctionID)
	assert.ErrorIs(t, err, ErrNotEligible)

	f.clock.Advance(DefaultPaymentWindow)
	eligible, err := f.svc.ReauctionEligible(ctx, auctionID)
	require.NoError(t, err)
	assert.True(t, eligible)

	snap, err := f.svc.ReAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateOngoing, snap.State)
	assert.Equal(t, 2, snap.Auction.Round)
	assert.True(t, snap.Auction.PaymentFailed)
	assert.True(t, snap.Auction.IsReauctioned)
	assert.Equal(t, 1, snap.Auction.FailedRound)
	assert.Nil(t, snap.Auction.PaymentDeadline)

	require.Len(t, f.moderator.reports, 1)
	assert.Equal(t, y, f.moderator.reports[0].userID)

	// second attempt in the same window is refused
	_, err = f.svc.ReAuction(ctx, auctionID)
	assert.ErrorIs(t, err, ErrNotEligible)

	// round one is kept as history, round two starts clean
	history := f.store.roundBids(auctionID, 1)
	assert.Len(t, history, 2)
	fresh, err := f.svc.PlaceBid(ctx, auctionID, x, 100)
	require.NoError(t, err)
	assert.True(t, fresh.IsCurrentBid)
	assert.Equal(t, 2, fresh.Round)

	old, err := f.store.FindBidByID(ctx, winning.ID.Hex())
	require.NoError(t, err)
	assert.False(t, old.IsCurrentBid, "round one winner is no longer current")
	assert.Equal(t, 1, f.store.auctionCurrentCount(auctionID))

	// the new round can fail again
	_, err = f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)
	f.clock.Advance(DefaultPaymentWindow + time.Minute)
	snap, err = f.svc.ReAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Auction.Round)
	assert.Equal(t, 2, snap.Auction.FailedRound)
	require.Len(t, f.moderator.reports, 2)
	assert.Equal(t, x, f.moderator.reports[1].userID)
}

func TestReAuction_SingleCurrentBidAcrossRounds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	x, y := f.buyer("x"), f.buyer("y")
	f.bid(auctionID, x, 500)

	_, err := f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)
	f.clock.Advance(DefaultPaymentWindow + time.Hour)

	_, err = f.svc.ReAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.auctionCurrentCount(auctionID))

	snap, err := f.svc.GetAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Nil(t, snap.CurrentBid)

	// a lower bid in the new round still becomes the only current bid
	fresh := f.bid(auctionID, y, 300)
	assert.Equal(t, 1, f.store.auctionCurrentCount(auctionID))
	current, err := f.store.FindCurrentBid(ctx, auctionID, 2)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, current.ID)
}

func TestReAuction_PrefersAcceptedWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	x, y := f.buyer("x"), f.buyer("y")
	accepted := f.bid(auctionID, x, 500)
	f.bid(auctionID, y, 800)
	_, err := f.svc.AcceptBid(ctx, accepted.ID.Hex(), "")
	require.NoError(t, err)

	_, err = f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)
	f.clock.Advance(DefaultPaymentWindow)

	f.moderator.err = errors.New("moderation offline")
	snap, err := f.svc.ReAuction(ctx, auctionID)
	require.NoError(t, err, "moderator failure does not abort the re-auction")
	assert.Empty(t, snap.Auction.WinnerID)
	require.Len(t, f.moderator.reports, 1)
	assert.Equal(t, x, f.moderator.reports[0].userID)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	y := f.buyer("y")
	f.bid(auctionID, y, 800)

	_, err := f.svc.ConfirmPayment(ctx, auctionID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.StopAuction(ctx, auctionID, false)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, auctionID)
	assert.ErrorIs(t, err, ErrNotEligible)

	f.payments.paid[auctionID] = true
	snap, err := f.svc.ConfirmPayment(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateEnded, snap.State)
	assert.Equal(t, y, snap.Auction.WinnerID)
	assert.Nil(t, snap.Auction.PaymentDeadline)

	f.clock.Advance(DefaultPaymentWindow * 2)
	eligible, err := f.svc.ReauctionEligible(ctx, auctionID)
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestGetAuction(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	auctionID := f.ongoingAuction()
	f.bid(auctionID, f.buyer("x"), 500)

	snap, err := f.svc.GetAuction(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateOngoing, snap.State)
	require.NotNil(t, snap.CurrentBid)
	assert.Equal(t, 500.0, snap.CurrentBid.BidAmount)

	_, err = f.svc.GetAuction(ctx, "bad-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
