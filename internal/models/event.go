package models

import "time"

// EventType names a change pushed to auction subscribers.
type EventType string

const (
	EventBidPlaced         EventType = "bid_placed"
	EventCurrentBidChanged EventType = "current_bid_changed"
	EventAuctionStarted    EventType = "auction_started"
	EventAuctionStopped    EventType = "auction_stopped"
	EventAuctionReauction  EventType = "auction_reauctioned"
	EventAuctionEnded      EventType = "auction_ended"
	EventBidsRemoved       EventType = "bids_removed"
	EventMechanicAssigned  EventType = "mechanic_assigned"
)

// AuctionEvent is the payload delivered to websocket and MQTT subscribers.
type AuctionEvent struct {
	Type       EventType `json:"type"`
	AuctionID  string    `json:"auction_id"`
	Round      int       `json:"round"`
	CurrentBid *Bid      `json:"current_bid,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
