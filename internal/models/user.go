package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents participant roles in the marketplace
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleBuyer          Role = "buyer"
	RoleSeller         Role = "seller"
	RoleAuctionManager Role = "auction_manager"
	RoleMechanic       Role = "mechanic"
)

// User represents a marketplace participant
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	PasswordHash     string             `bson:"password_hash" json:"-"`
	Role             Role               `bson:"role" json:"role"`
	FirstName        string             `bson:"first_name" json:"first_name"`
	LastName         string             `bson:"last_name" json:"last_name"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	City             string             `bson:"city,omitempty" json:"city,omitempty"`
	ShopName         string             `bson:"shop_name,omitempty" json:"shop_name,omitempty"`
	ApprovedStatus   bool               `bson:"approved_status" json:"approved_status"`
	AssignedRequests []string           `bson:"assigned_requests,omitempty" json:"assigned_requests,omitempty"`
	IsBlocked        bool               `bson:"is_blocked" json:"is_blocked"`
	BlockedAt        *time.Time         `bson:"blocked_at,omitempty" json:"blocked_at,omitempty"`
	IsReported       bool               `bson:"is_reported" json:"is_reported"`
	ReportReason     string             `bson:"report_reason,omitempty" json:"report_reason,omitempty"`
	ReportedAt       *time.Time         `bson:"reported_at,omitempty" json:"reported_at,omitempty"`
	IsActive         bool               `bson:"is_active" json:"is_active"`
	LastLogin        *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a participant registration request
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	City      string `json:"city"`
	ShopName  string `json:"shop_name"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleBuyer, RoleSeller, RoleAuctionManager, RoleMechanic:
		return true
	default:
		return false
	}
}

// IsSelfRegistrable reports whether a role may be chosen at sign-up.
// Admins and auction managers are provisioned by an administrator.
func IsSelfRegistrable(role Role) bool {
	return role == RoleBuyer || role == RoleSeller || role == RoleMechanic
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	if u.IsBlocked {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleAuctionManager:
		return action == "view_auctions" || action == "view_bids" ||
			action == "manage_auctions" || action == "assign_mechanic"
	case RoleSeller:
		return action == "view_auctions" || action == "create_auction" ||
			action == "view_bids" || action == "decide_bid"
	case RoleBuyer:
		return action == "view_auctions" || action == "place_bid"
	case RoleMechanic:
		return action == "view_auctions" || action == "inspect_vehicle"
	default:
		return false
	}
}

// IsApprovedMechanic reports whether the participant can take inspection tasks.
func (u *User) IsApprovedMechanic() bool {
	return u.Role == RoleMechanic && u.ApprovedStatus && !u.IsBlocked
}
