// Command seed-db populates a fresh database with demo users, products,
// coupons, and API keys so the API can be exercised immediately.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		adminKey     string
		clientKey    string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or STORE_SEED_ADMIN_KEY env)")
	flag.StringVar(&clientKey, "client-key", "", "client API key to seed (or STORE_SEED_CLIENT_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("STORE_SEED_ADMIN_KEY")
	}
	if adminKey == "" {
		slog.Error("admin API key is required: set --admin-key or STORE_SEED_ADMIN_KEY")
		os.Exit(1)
	}
	if clientKey == "" {
		clientKey = os.Getenv("STORE_SEED_CLIENT_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminKey, clientKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminKey, clientKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	userID, err := seedUser(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "seed user")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool, userID); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, adminKey, pepper, "admin", "", []string{"admin"}); err != nil {
		return errors.Wrap(err, "seed admin api key")
	}
	if clientKey != "" {
		if err := seedAPIKey(ctx, pool, clientKey, pepper, "demo client", userID, nil); err != nil {
			return errors.Wrap(err, "seed client api key")
		}
	}

	return nil
}

func seedUser(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	const q = `
	INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
	ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
	RETURNING id`

	var id string
	err := pool.QueryRow(ctx, q, uuid.NewString(), "Demo Customer", "demo@example.com").Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, "insert demo user")
	}

	slog.Info("seeded demo user", slog.String("id", id))
	return id, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	const q = `
	INSERT INTO products (id, name, description, price, image)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, description = EXCLUDED.description,
	    price = EXCLUDED.price, image = EXCLUDED.image`

	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if _, err := pool.Exec(ctx, q, p.ID, p.Name, p.Description, p.Price, p.Image); err != nil {
			return errors.Wrapf(err, "insert product %s", p.Name)
		}
	}

	slog.Info("seeded products", slog.Int("count", len(products)))
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, userID string) error {
	const q = `
	INSERT INTO coupons (id, code, type, discount, quantity, recursive, can_use_for)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (code) DO NOTHING
	RETURNING id`

	coupons := []struct {
		code       string
		couponType string
		discount   string
		quantity   int
		recursive  bool
		canUseFor  string
	}{
		{"WELCOME10", "percent", "10", 1000, false, "all"},
		{"TENOFF", "currency", "10", 500, true, "all"},
		{"FREEBIE", "free", "0", 50, false, "all"},
		{"LOYALTY20", "percent", "20", 200, false, "client"},
	}

	for _, c := range coupons {
		var id string
		err := pool.QueryRow(ctx, q,
			uuid.NewString(), c.code, c.couponType,
			decimal.RequireFromString(c.discount), c.quantity, c.recursive, c.canUseFor,
		).Scan(&id)
		if err != nil {
			// ON CONFLICT DO NOTHING returns no row for existing codes.
			continue
		}

		if c.canUseFor == "client" {
			if _, err := pool.Exec(ctx,
				`INSERT INTO coupon_user (coupon_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, userID,
			); err != nil {
				return errors.Wrapf(err, "attach user to coupon %s", c.code)
			}
		}
	}

	slog.Info("seeded coupons", slog.Int("count", len(coupons)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, pepper, name, userID string, scopes []string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	const q = `
	INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes`

	if scopes == nil {
		scopes = []string{}
	}
	if _, err := pool.Exec(ctx, q, uuid.NewString(), hash, name, userID, scopes); err != nil {
		return errors.Wrap(err, "insert api key")
	}

	slog.Info("seeded api key", slog.String("name", name))
	return nil
}
