// Command grant-admin sets or clears the admin flag that gates listing verification.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pscheid92/serverlist/internal/adapter/mongo"
	"github.com/pscheid92/serverlist/internal/adapter/postgres"
	"github.com/pscheid92/serverlist/internal/platform/logging"
)

const commandTimeout = 30 * time.Second

type options struct {
	mongoURI    string
	database    string
	databaseURL string
	uid         string
	email       string
	revoke      bool
	dryRun      bool
}

func main() {
	var (
		opts    options
		verbose bool
	)
	flag.StringVar(&opts.mongoURI, "mongo", os.Getenv("MONGO_URI"), "MongoDB URI (or set MONGO_URI env)")
	flag.StringVar(&opts.database, "database", envOr("MONGO_DATABASE", "serverlist"), "MongoDB database name")
	flag.StringVar(&opts.databaseURL, "accounts", os.Getenv("DATABASE_URL"), "Postgres URL for --email lookups (or set DATABASE_URL env)")
	flag.StringVar(&opts.uid, "uid", "", "User ID to update")
	flag.StringVar(&opts.email, "email", "", "Resolve the user ID from this account email")
	flag.BoolVar(&opts.revoke, "revoke", false, "Clear the admin flag instead of setting it")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Resolve the user but don't write")
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging")
	flag.Parse()

	level := "info"
	if verbose {
		level = "debug"
	}
	logging.Init(level, "text")

	if err := validate(opts); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("grant-admin failed: %v", err)
	}
}

func validate(opts options) error {
	if opts.mongoURI == "" {
		return fmt.Errorf("MongoDB URI required (--mongo or MONGO_URI env)")
	}
	if (opts.uid == "") == (opts.email == "") {
		return fmt.Errorf("exactly one of --uid or --email is required")
	}
	if opts.email != "" && opts.databaseURL == "" {
		return fmt.Errorf("--email needs a Postgres URL (--accounts or DATABASE_URL env)")
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	uid := opts.uid
	if opts.email != "" {
		resolved, err := resolveUID(ctx, opts.databaseURL, opts.email)
		if err != nil {
			return err
		}
		uid = resolved
	}

	db, err := mongo.Connect(ctx, opts.mongoURI, opts.database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()
	slog.Info("Connected to MongoDB", "uri", sanitizeURL(opts.mongoURI), "database", opts.database)

	admins := mongo.NewAdminDirectory(db)
	current, err := admins.IsAdmin(ctx, uid)
	if err != nil {
		return err
	}

	want := !opts.revoke
	if current == want {
		slog.Info("Admin flag already set as requested", "uid", uid, "admin", want)
		return nil
	}
	if opts.dryRun {
		slog.Info("Dry run, not writing", "uid", uid, "admin", want)
		return nil
	}

	if err := admins.SetAdmin(ctx, uid, want); err != nil {
		return err
	}
	slog.Info("Admin flag updated", "uid", uid, "admin", want)
	return nil
}

func resolveUID(ctx context.Context, databaseURL, email string) (string, error) {
	pool, err := postgres.Connect(ctx, databaseURL)
	if err != nil {
		return "", err
	}
	defer pool.Close()

	account, err := postgres.NewAccountRepo(pool).GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", email, err)
	}
	slog.Debug("Resolved account", "email", email, "uid", account.ID.String())
	return account.ID.String(), nil
}

// sanitizeURL hides credentials for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
