// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vertabase/verta-backend/api"
	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/domain"
	"github.com/vertabase/verta-backend/internal/logger"
	"github.com/vertabase/verta-backend/internal/migrate"
	"github.com/vertabase/verta-backend/internal/record"
	"github.com/vertabase/verta-backend/internal/schema"
	"github.com/vertabase/verta-backend/internal/service"
	"github.com/vertabase/verta-backend/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

func main() {
	customLog.Println("Starting Verta Backend server...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		customLog.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize Database Connection
	db, err := storage.ConnectDB(cfg)
	if err != nil {
		customLog.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		customLog.Println("Closing database connection...")
		if err := db.Close(); err != nil {
			customLog.Printf("Error closing database: %v", err)
		}
	}()

	// 3. Build the service stack
	registry, err := schema.NewRegistry(context.Background(), db)
	if err != nil {
		customLog.Fatalf("Failed to load collection registry: %v", err)
	}
	synth := migrate.NewSynthesizer(db)
	records := record.NewStore(db)
	manager := auth.NewManager(db, cfg)
	svc := service.NewCollectionService(registry, synth, records)

	// 4. Bootstrap the admin account, if configured
	if err := bootstrapAdmin(context.Background(), db, cfg); err != nil {
		customLog.Fatalf("Failed to bootstrap admin account: %v", err)
	}

	// 5. Periodically purge expired refresh tokens
	go purgeLoop(manager)

	// 6. Setup Router (passing dependencies)
	router := api.SetupRouter(cfg, manager, svc)

	// 7. Start Server
	addr := cfg.ServerPort
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	customLog.Printf("Server listening on %s", addr)
	if err := router.Run(addr); err != nil {
		customLog.Fatalf("Failed to start server: %v", err)
	}
}

// bootstrapAdmin creates the configured admin account on first start. An
// existing account with the configured email is left untouched.
func bootstrapAdmin(ctx context.Context, db *sql.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := storage.FindUserByEmail(ctx, db, cfg.AdminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	if err := auth.ValidatePasswordPolicy(cfg.AdminPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return err
	}

	admin := &domain.User{
		ID:           uuid.NewString(),
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		TokenKey:     uuid.NewString(),
		Name:         "Admin",
		Verified:     true,
		Admin:        true,
	}
	if err := storage.CreateUser(ctx, db, admin); err != nil {
		return err
	}
	customLog.Printf("Bootstrapped admin account %s", cfg.AdminEmail)
	return nil
}

func purgeLoop(manager *auth.Manager) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		purged, err := manager.PurgeExpiredTokens(ctx)
		cancel()
		if err != nil {
			customLog.Warnf("Expired token purge failed: %v", err)
			continue
		}
		if purged > 0 {
			customLog.Printf("Purged %d expired refresh tokens", purged)
		}
	}
}
