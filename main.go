package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	store := buildStorage(logger)

	var outbox *api.Outbox
	var events api.EventSink = api.NopSink()
	if queueName := os.Getenv("EVENTS_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		queue, err := storage.NewQueue(connStr, queueName)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		outbox = api.NewOutbox(queue, logger)
		events = outbox
	}

	auth := buildAuth()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("taskboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, auth, events, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	err := e.Start(listenAddr)
	// Fatal exits the process, so drain the outbox first instead of
	// deferring a Close that would never run.
	if outbox != nil {
		outbox.Close()
	}
	e.Logger.Fatal(err)
}

// buildStorage assembles the persistence stack: Azure Tables (or the
// in-memory backend when STORAGE_MODE=memory), optionally wrapped in a
// Redis board-snapshot cache.
func buildStorage(logger *log.Logger) api.Storage {
	var base api.Storage
	switch strings.ToLower(os.Getenv("STORAGE_MODE")) {
	case "memory":
		logger.Warn("using in-memory storage, data is not persisted")
		base = storage.NewMemory()
	default:
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		sectionsTable := os.Getenv("SECTIONS_TABLE")
		cardsTable := os.Getenv("CARDS_TABLE")
		commentsTable := os.Getenv("COMMENTS_TABLE")
		usersTable := os.Getenv("USERS_TABLE")
		if connStr == "" || sectionsTable == "" || cardsTable == "" || commentsTable == "" || usersTable == "" {
			log.Fatal("missing storage config")
		}
		tables, err := storage.NewTables(connStr, sectionsTable, cardsTable, commentsTable, usersTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		base = tables
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return base
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	ttl := 5 * time.Minute
	if v := os.Getenv("BOARD_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid BOARD_CACHE_TTL: %v", err)
		}
		ttl = d
	}
	return storage.NewCache(base, redis.NewClient(redisOpts), ttl)
}

// buildAuth selects JWKS-backed RS256 verification, or HS256 shared-secret
// mode when LOCAL_AUTH_MODE=hs256.
func buildAuth() *api.Auth {
	if strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")) == "hs256" {
		secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if secret == "" {
			log.Fatal("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
		return api.NewLocalAuth([]byte(secret))
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	domainName := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domainName == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domainName)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domainName+"/")
}
