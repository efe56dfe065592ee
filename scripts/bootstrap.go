package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pesio-ai/be-brgy-identity/internal/config"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	"github.com/pesio-ai/be-brgy-identity/internal/service"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

type seedResident struct {
	first, last, address string
	approve              bool
}

// Bootstrap creates an admin account and sample residents for development
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	appLog := logger.New(logger.Config{Level: "warn", Format: "console", ServiceName: "brgy-identity-bootstrap"})

	log.Println("Connecting to database...")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	store := repository.NewPostgresStore(pool, appLog)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	accounts := service.NewAccountService(store, nil, appLog)
	identity := service.NewIdentityService(store, accounts, appLog)

	adminPassword := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}

	admin, err := accounts.CreateAccount(ctx, &service.CreateAccountRequest{
		Username: "admin",
		Password: adminPassword,
		Role:     repository.RoleAdmin,
		Active:   true,
	})
	switch {
	case apperr.Is(err, apperr.ErrDuplicateUsername):
		log.Println("- Admin account already exists")
		admin, err = store.Repos().Accounts.GetByUsername(ctx, "admin")
		if err != nil {
			log.Fatalf("Failed to load admin account: %v", err)
		}
	case err != nil:
		log.Fatalf("Failed to create admin account: %v", err)
	default:
		log.Printf("✓ Created admin account: %s (username: admin)", admin.ID)
	}

	residents := []seedResident{
		{first: "Jose", last: "Rizal", address: "Purok 1, Barangay San Isidro", approve: true},
		{first: "Juan", last: "Santos", address: "Purok 2, Barangay San Isidro"},
		{first: "Juan", last: "Santos", address: "Purok 5, Barangay San Isidro"},
	}
	for _, seed := range residents {
		existing, err := store.Repos().Residents.FindByName(ctx, seed.first, seed.last, nil)
		if err != nil {
			log.Fatalf("Failed to look up resident: %v", err)
		}
		if countAtAddress(existing, seed.address) > 0 {
			log.Printf("- Resident %s %s (%s) already exists", seed.first, seed.last, seed.address)
			continue
		}

		res, err := identity.RegisterResident(ctx, &repository.Resident{
			FirstName: seed.first,
			LastName:  seed.last,
			Address:   seed.address,
		}, &admin.ID)
		if err != nil {
			log.Fatalf("Failed to register resident: %v", err)
		}
		if seed.approve {
			if _, err := identity.ApproveResidentDocuments(ctx, res.ID, &admin.ID); err != nil {
				log.Fatalf("Failed to approve resident documents: %v", err)
			}
		}
		log.Printf("✓ Registered resident %s (%s)", res.FullName(), res.ID)
	}

	log.Println("\n=== Bootstrap Complete ===")
	log.Println("Admin credentials: admin / " + maskPassword(adminPassword))
	log.Println("Jose Rizal can self-register; Juan Santos has two records, so name lookups for it are ambiguous.")
}

func countAtAddress(residents []*repository.Resident, address string) int {
	n := 0
	for _, r := range residents {
		if r.Address == address {
			n++
		}
	}
	return n
}

func maskPassword(p string) string {
	if os.Getenv("BOOTSTRAP_ADMIN_PASSWORD") != "" {
		return "(from BOOTSTRAP_ADMIN_PASSWORD)"
	}
	return p
}
