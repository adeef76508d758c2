package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/janus-gateway/internal/auth"
)

func main() {
	user := flag.String("user", "", "user ID (optional, omit for service accounts)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	models := flag.String("models", "", "comma-separated model allowlist (empty = all)")
	rpm := flag.Int("rpm", 0, "per-key requests per minute (0 = gateway default)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -name is required")
		os.Exit(1)
	}

	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}
	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}

	meta := &auth.KeyMetadata{
		ID:        uuid.NewString(),
		UserID:    *user,
		Name:      *name,
		ExpiresAt: time.Now().Add(dur),
	}
	if *models != "" {
		meta.AllowedModels = strings.Split(*models, ",")
	}
	if *rpm > 0 {
		meta.RPMLimit = rpm
	}

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "janus")
		pass := envOrDefault("DB_PASSWORD", "janus-dev")
		dbname := envOrDefault("DB_NAME", "janus")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := auth.NewCachedKeyStore(pool, nil)
	if err := store.InsertKey(ctx, keyHash, keyPrefix, meta); err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== Janus API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:     %s\n", meta.ID)
	fmt.Printf("  Key Prefix: %s\n", keyPrefix)
	fmt.Printf("  Name:       %s\n", meta.Name)
	if meta.UserID != "" {
		fmt.Printf("  User:       %s\n", meta.UserID)
	}
	if len(meta.AllowedModels) > 0 {
		fmt.Printf("  Models:     %s\n", strings.Join(meta.AllowedModels, ", "))
	}
	fmt.Printf("  Expires:    %s\n", meta.ExpiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
