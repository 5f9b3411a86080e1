package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/drivebidrent/internal/auth"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/middleware"
	"github.com/ukydev/drivebidrent/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) FindApprovedMechanics(ctx context.Context, city string) ([]models.User, error) {
	args := m.Called(ctx, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) SetBlocked(ctx context.Context, id string, blocked bool) error {
	args := m.Called(ctx, id, blocked)
	return args.Error(0)
}

func (m *MockUserCollection) ReportUser(ctx context.Context, id string, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockUserCollection) ApproveMechanic(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) AddAssignedRequest(ctx context.Context, mechanicID string, auctionID string) error {
	args := m.Called(ctx, mechanicID, auctionID)
	return args.Error(0)
}

var _ db.UserCollection = (*MockUserCollection)(nil)

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

// withClaims attaches an authenticated participant to the request.
func withClaims(req *http.Request, userID string, role models.Role) *http.Request {
	return req.WithContext(middleware.WithClaims(req.Context(), &models.Claims{UserID: userID, Role: role}))
}

func TestAuthHandler_Login(t *testing.T) {
	authService := auth.NewService("test-secret", 0)
	passwordHash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	t.Run("successful login", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)

		user := &models.User{
			ID:           primitive.NewObjectID(),
			Email:        "buyer@example.com",
			PasswordHash: passwordHash,
			Role:         models.RoleBuyer,
			IsActive:     true,
		}
		users.On("FindUserByEmail", mock.Anything, "buyer@example.com").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{
			Email:    " Buyer@Example.com ",
			Password: "password123",
		}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var login models.LoginResponse
		resp := decodeEnvelope(t, w, &login)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, login.Token)
		assert.NotEmpty(t, login.RefreshToken)
		assert.Equal(t, user.Email, login.User.Email)

		claims, err := authService.ValidateToken(login.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.Hex(), claims.UserID)
		assert.Equal(t, models.RoleBuyer, claims.Role)
		users.AssertExpectations(t)
	})

	t.Run("last login failure does not fail login", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)

		user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", PasswordHash: passwordHash, Role: models.RoleSeller, IsActive: true}
		users.On("FindUserByEmail", mock.Anything, "a@b.co").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(assert.AnError)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "a@b.co", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("unknown email", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		users.On("FindUserByEmail", mock.Anything, "nobody@example.com").Return(nil, db.ErrNotFound)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "nobody@example.com", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", PasswordHash: passwordHash, IsActive: true}
		users.On("FindUserByEmail", mock.Anything, "a@b.co").Return(user, nil)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "a@b.co", Password: "wrongpassword"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", PasswordHash: passwordHash, IsActive: false}
		users.On("FindUserByEmail", mock.Anything, "a@b.co").Return(user, nil)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "a@b.co", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blocked user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", PasswordHash: passwordHash, IsActive: true, IsBlocked: true}
		users.On("FindUserByEmail", mock.Anything, "a@b.co").Return(user, nil)

		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "a@b.co", Password: "password123"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection))
		req := httptest.NewRequest("POST", "/api/auth/login", jsonBody(t, models.LoginRequest{Email: "a@b.co"}))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection))
		req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Register(t *testing.T) {
	authService := auth.NewService("test-secret", 0)

	validRequest := func(role models.Role) models.RegisterRequest {
		return models.RegisterRequest{
			Email:     "newuser@example.com",
			Password:  "password123",
			FirstName: "New",
			LastName:  "User",
			ShopName:  "Corner Garage",
			Role:      role,
		}
	}

	t.Run("successful registration", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)

		created := &models.User{
			ID:        primitive.NewObjectID(),
			Email:     "newuser@example.com",
			FirstName: "New",
			Role:      models.RoleBuyer,
			IsActive:  true,
		}
		users.On("FindUserByEmail", mock.Anything, "newuser@example.com").Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Email == "newuser@example.com" &&
				u.Role == models.RoleBuyer &&
				u.PasswordHash != "" && u.PasswordHash != "password123" &&
				!u.ApprovedStatus
		})).Return(created, nil)

		req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, validRequest(models.RoleBuyer)))
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var login models.LoginResponse
		decodeEnvelope(t, w, &login)
		assert.NotEmpty(t, login.Token)
		assert.Equal(t, created.ID, login.User.ID)
		users.AssertExpectations(t)
	})

	t.Run("email already exists", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		users.On("FindUserByEmail", mock.Anything, "newuser@example.com").Return(&models.User{Email: "newuser@example.com"}, nil)

		req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, validRequest(models.RoleSeller)))
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
	})

	t.Run("lookup failure", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		users.On("FindUserByEmail", mock.Anything, "newuser@example.com").Return(nil, assert.AnError)

		req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, validRequest(models.RoleSeller)))
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	rejected := []struct {
		name   string
		mutate func(*models.RegisterRequest)
	}{
		{"admin role", func(r *models.RegisterRequest) { r.Role = models.RoleAdmin }},
		{"auction manager role", func(r *models.RegisterRequest) { r.Role = models.RoleAuctionManager }},
		{"unknown role", func(r *models.RegisterRequest) { r.Role = "viewer" }},
		{"short password", func(r *models.RegisterRequest) { r.Password = "short" }},
		{"bad email", func(r *models.RegisterRequest) { r.Email = "not-an-email" }},
		{"missing first name", func(r *models.RegisterRequest) { r.FirstName = " " }},
		{"mechanic without shop", func(r *models.RegisterRequest) { r.Role = models.RoleMechanic; r.ShopName = "" }},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserCollection)
			handler := NewAuthHandler(authService, users)

			reqBody := validRequest(models.RoleBuyer)
			tt.mutate(&reqBody)
			req := httptest.NewRequest("POST", "/api/auth/register", jsonBody(t, reqBody))
			w := httptest.NewRecorder()
			handler.Register(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
		})
	}
}

func TestAuthHandler_GetProfile(t *testing.T) {
	authService := auth.NewService("test-secret", 0)

	t.Run("returns profile", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", Role: models.RoleSeller}
		users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)

		req := withClaims(httptest.NewRequest("GET", "/api/auth/profile", nil), user.ID.Hex(), models.RoleSeller)
		w := httptest.NewRecorder()
		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var got models.User
		decodeEnvelope(t, w, &got)
		assert.Equal(t, "a@b.co", got.Email)
	})

	t.Run("no claims", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection))
		w := httptest.NewRecorder()
		handler.GetProfile(w, httptest.NewRequest("GET", "/api/auth/profile", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user gone", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		users.On("FindUserByID", mock.Anything, "missing").Return(nil, db.ErrNotFound)

		req := withClaims(httptest.NewRequest("GET", "/api/auth/profile", nil), "missing", models.RoleBuyer)
		w := httptest.NewRecorder()
		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	authService := auth.NewService("test-secret", 0)
	users := new(MockUserCollection)
	handler := NewAuthHandler(authService, users)

	user := &models.User{ID: primitive.NewObjectID(), Email: "a@b.co", FirstName: "Old", City: "Pune"}
	users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)
	users.On("UpdateUser", mock.Anything, user.ID.Hex(), mock.MatchedBy(func(u models.User) bool {
		return u.FirstName == "New" && u.City == "Pune"
	})).Return(nil)

	req := withClaims(httptest.NewRequest("PUT", "/api/auth/profile", jsonBody(t, map[string]string{"first_name": "New"})),
		user.ID.Hex(), models.RoleBuyer)
	w := httptest.NewRecorder()
	handler.UpdateProfile(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	users.AssertExpectations(t)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	authService := auth.NewService("test-secret", 0)
	passwordHash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	newUser := func() *models.User {
		return &models.User{ID: primitive.NewObjectID(), PasswordHash: passwordHash}
	}

	t.Run("changes password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := newUser()
		users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)
		users.On("UpdateUser", mock.Anything, user.ID.Hex(), mock.MatchedBy(func(u models.User) bool {
			return authService.CheckPassword("newpassword456", u.PasswordHash)
		})).Return(nil)

		req := withClaims(httptest.NewRequest("POST", "/api/auth/change-password", jsonBody(t, map[string]string{
			"current_password": "password123",
			"new_password":     "newpassword456",
		})), user.ID.Hex(), models.RoleBuyer)
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		users.AssertExpectations(t)
	})

	t.Run("wrong current password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users)
		user := newUser()
		users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)

		req := withClaims(httptest.NewRequest("POST", "/api/auth/change-password", jsonBody(t, map[string]string{
			"current_password": "not-it-at-all",
			"new_password":     "newpassword456",
		})), user.ID.Hex(), models.RoleBuyer)
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("weak new password", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection))
		req := withClaims(httptest.NewRequest("POST", "/api/auth/change-password", jsonBody(t, map[string]string{
			"current_password": "password123",
			"new_password":     "short",
		})), "u1", models.RoleBuyer)
		w := httptest.NewRecorder()
		handler.ChangePassword(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
