package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/internal/config"
	"github.com/jrsteele09/go-token-authority/registry"
	registrypostgres "github.com/jrsteele09/go-token-authority/registry/postgres"
	"github.com/jrsteele09/go-token-authority/registry/rediscache"
	"github.com/jrsteele09/go-token-authority/server"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/token/refresh"
	"github.com/jrsteele09/go-token-authority/users"
	userspostgres "github.com/jrsteele09/go-token-authority/users/postgres"
	fakeuserrepo "github.com/jrsteele09/go-token-authority/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	c := config.New()
	displayAppname(c.GetAppName())

	ctx := context.Background()

	signer, err := buildSigner(c)
	if err != nil {
		return fmt.Errorf("buildSigner: %w", err)
	}

	reg, userRepo, cleanup, err := buildStores(ctx, c)
	if err != nil {
		return fmt.Errorf("buildStores: %w", err)
	}
	defer cleanup()

	issuer, err := token.NewIssuer(signer, userRepo, reg,
		token.WithIssuerName(c.GetIssuerName()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
		token.WithRefreshTokenLength(c.GetRefreshTokenLength()),
	)
	if err != nil {
		return fmt.Errorf("token.NewIssuer: %w", err)
	}

	rotator := refresh.NewManager(reg, issuer, userRepo)

	repos := auth.Repos{Users: userRepo, Registry: reg}
	authService, err := auth.NewAuthService(repos, issuer, rotator)
	if err != nil {
		return fmt.Errorf("auth.NewAuthService: %w", err)
	}

	srv, err := server.New(c, repos, authService)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	sweeper, err := server.NewSweeper(reg, c.GetSweepSchedule())
	if err != nil {
		return fmt.Errorf("server.NewSweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildSigner(c config.Config) (token.Signer, error) {
	if secret := c.GetSigningSecret(); secret != "" {
		return token.NewHMACSigner(secret), nil
	}

	// No shared secret configured: generate an ephemeral RSA key pair.
	// Tokens do not survive a restart in this mode.
	log.Printf("SIGNING_SECRET not set, generating ephemeral RSA key pair")
	keyPair, err := token.GenerateRSAKeyPair("ephemeral", 2048)
	if err != nil {
		return nil, fmt.Errorf("token.GenerateRSAKeyPair: %w", err)
	}
	return token.NewKeyPairSigner(keyPair), nil
}

// buildStores selects durable postgres stores when DATABASE_DSN is set and
// falls back to in-memory stores otherwise. REDIS_URL additionally wraps
// the registry with a read cache for revocation checks.
func buildStores(ctx context.Context, c config.Config) (registry.Registry, users.UserRepo, func(), error) {
	var reg registry.Registry
	var userRepo users.UserRepo
	cleanup := func() {}

	if dsn := c.GetDatabaseDSN(); dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("db.Ping: %w", err)
		}
		if err := registrypostgres.Migrate(ctx, db); err != nil {
			return nil, nil, nil, fmt.Errorf("postgres.Migrate: %w", err)
		}
		reg = registrypostgres.New(db)
		userRepo = userspostgres.New(db)
		cleanup = func() { _ = db.Close() }
		log.Printf("Using postgres stores")
	} else {
		reg = registry.NewInMemoryRegistry()
		userRepo = fakeuserrepo.NewFakeUserRepo()
		log.Printf("DATABASE_DSN not set, using in-memory stores")
	}

	if redisURL := c.GetRedisURL(); redisURL != "" {
		cached, err := rediscache.New(reg, redisURL, rediscache.DefaultTTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("rediscache.New: %w", err)
		}
		reg = cached
		log.Printf("Revocation checks cached via redis")
	}

	return reg, userRepo, cleanup, nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
