package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/auction"
	"github.com/ukydev/drivebidrent/internal/auth"
	"github.com/ukydev/drivebidrent/internal/config"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/events"
	"github.com/ukydev/drivebidrent/internal/handlers"
	"github.com/ukydev/drivebidrent/internal/middleware"
	"github.com/ukydev/drivebidrent/internal/models"
)

const shutdownTimeout = 15 * time.Second

// router holds everything the HTTP surface is built from.
type router struct {
	auth     *handlers.AuthHandler
	auctions *handlers.AuctionHandler
	admin    *handlers.AdminHandler
	hub      *events.Hub
	authMW   *middleware.AuthMiddleware
	limiter  *middleware.RateLimitMiddleware
}

func (rt *router) handler() http.Handler {
	mux := http.NewServeMux()

	// protect wraps h with authentication and, when roles are given, a role check.
	protect := func(h http.HandlerFunc, roles ...models.Role) http.Handler {
		var next http.Handler = h
		if len(roles) > 0 {
			next = rt.authMW.RequireRole(roles...)(next)
		}
		return rt.authMW.Authenticate(next)
	}
	seller := func(h http.HandlerFunc) http.Handler { return protect(h, models.RoleSeller) }
	manager := func(h http.HandlerFunc) http.Handler { return protect(h, models.RoleAuctionManager) }
	admin := func(h http.HandlerFunc) http.Handler { return protect(h, models.RoleAdmin) }
	mechanic := func(h http.HandlerFunc) http.Handler { return protect(h, models.RoleMechanic) }

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/login", rt.auth.Login)
	mux.HandleFunc("POST /api/auth/register", rt.auth.Register)
	mux.Handle("GET /api/auth/profile", protect(rt.auth.GetProfile))
	mux.Handle("PUT /api/auth/profile", protect(rt.auth.UpdateProfile))
	mux.Handle("POST /api/auth/change-password", protect(rt.auth.ChangePassword))

	mux.Handle("POST /api/seller/auctions", seller(rt.auctions.CreateAuction))
	mux.Handle("GET /api/seller/auctions", seller(rt.auctions.ListSellerAuctions))
	mux.Handle("GET /api/seller/auctions/{id}", seller(rt.auctions.GetSellerAuction))
	mux.Handle("GET /api/seller/auctions/{id}/bids", seller(rt.auctions.ListSellerBids))
	mux.Handle("PUT /api/seller/bids/{id}/accept", seller(rt.auctions.AcceptBid))
	mux.Handle("PUT /api/seller/bids/{id}/reject", seller(rt.auctions.RejectBid))

	mux.Handle("GET /api/auctions", protect(rt.auctions.ListOngoingAuctions))
	mux.Handle("GET /api/auctions/{id}", protect(rt.auctions.GetAuction))
	mux.Handle("POST /api/auctions/{id}/bids",
		rt.authMW.Authenticate(rt.authMW.RequirePermission("place_bid")(http.HandlerFunc(rt.auctions.PlaceBid))))
	mux.Handle("GET /api/auctions/{id}/events", protect(rt.hub.ServeWS))

	mux.Handle("GET /api/manager/auctions", manager(rt.auctions.ListAuctions))
	mux.Handle("GET /api/manager/auctions/{id}/bids", manager(rt.auctions.ListBids))
	mux.Handle("POST /api/manager/auctions/{id}/status", manager(rt.auctions.UpdateStatus))
	mux.Handle("GET /api/manager/auctions/{id}/mechanics", manager(rt.auctions.ListMechanics))
	mux.Handle("POST /api/manager/auctions/{id}/assign-mechanic", manager(rt.auctions.AssignMechanic))
	mux.Handle("GET /api/manager/auctions/{id}/chat", manager(rt.auctions.GetInspectionChat))
	mux.Handle("POST /api/manager/auctions/{id}/start", manager(rt.auctions.Start))
	mux.Handle("POST /api/manager/auctions/{id}/stop", manager(rt.auctions.Stop))
	mux.Handle("POST /api/manager/auctions/{id}/reauction", manager(rt.auctions.ReAuction))
	mux.Handle("POST /api/manager/auctions/{id}/recompute", manager(rt.auctions.Recompute))
	mux.Handle("POST /api/manager/auctions/{id}/confirm-payment", manager(rt.auctions.ConfirmPayment))

	mux.Handle("GET /api/mechanic/auctions/{id}/chat", mechanic(rt.auctions.GetInspectionChat))

	mux.Handle("GET /api/admin/users", admin(rt.admin.ListUsers))
	mux.Handle("GET /api/admin/users/reported", admin(rt.admin.ListReportedUsers))
	mux.Handle("POST /api/admin/users/{id}/block", admin(rt.admin.ToggleBlock))
	mux.Handle("DELETE /api/admin/users/{id}", admin(rt.admin.DeleteUser))
	mux.Handle("POST /api/admin/mechanics/{id}/approve", admin(rt.admin.ApproveMechanic))

	// r.Pattern is set by the mux on the request the logger holds, so nothing
	// between them may replace the request.
	return middleware.RequestLogger(rt.limiter.RateLimit(mux))
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetOutput(os.Stdout)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	store := db.NewStore(client.Database(cfg.MongoDB))
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	hub := events.NewHub()
	publishers := events.Fanout{hub}
	if cfg.MQTTBroker != "" {
		mqttClient, err := events.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			// websocket subscribers still get events
			log.WithError(err).Warn("MQTT unavailable, continuing without broker fan-out")
		} else {
			mqttPublisher := events.NewMQTTPublisher(mqttClient, cfg.MQTTTopicPrefix)
			defer mqttPublisher.Close()
			publishers = append(publishers, mqttPublisher)
		}
	}

	service := auction.NewService(auction.Deps{
		Auctions:      store.Auctions,
		Bids:          store.Bids,
		Participants:  store.Users,
		Moderator:     store.Users,
		Channels:      store.Chats,
		Payments:      store.Payments,
		Publisher:     publishers,
		PaymentWindow: cfg.PaymentWindow,
		ChatTTL:       cfg.ChatTTL,
	})
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)

	rt := &router{
		auth:     handlers.NewAuthHandler(authService, store.Users),
		auctions: handlers.NewAuctionHandler(service),
		admin:    handlers.NewAdminHandler(store.Users, service),
		hub:      hub,
		authMW:   middleware.NewAuthMiddleware(authService),
		limiter:  middleware.NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rt.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		hub.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	hub.Close()
	return srv.Shutdown(shutdownCtx)
}
