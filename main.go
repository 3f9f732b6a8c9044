// Remus community node: a self-hosted single-guild chat server with an
// HTTP control plane, a WebSocket gateway, and SFU voice signaling.
// Identity lives with an external authority; everything else is local.
//
// main wires the layers together: config → database → repositories →
// hub → media engine → services → handlers → routes → server. No
// globals; everything is constructed here and handed down.
package main

import (
	"context"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/remus-chat/remus-node/config"
	"github.com/remus-chat/remus-node/database"
	"github.com/remus-chat/remus-node/media"
	"github.com/remus-chat/remus-node/middleware"
	"github.com/remus-chat/remus-node/pkg/ratelimit"
	"github.com/remus-chat/remus-node/ws"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] configuration invalid:\n%v", err)
	}

	setupLogging(cfg)
	log.Printf("[main] remus node %s starting on %s", version, cfg.Server.Addr())

	// Database: open, migrate, salvage legacy stores, seed the guild.
	migrationsFS, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		log.Fatalf("[main] embedded migrations missing: %v", err)
	}
	db, err := database.New(cfg.Database.Path, filepath.Join(cfg.Database.RuntimeDir, "backups"), migrationsFS)
	if err != nil {
		log.Fatalf("[main] database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	guildID, err := db.EnsureSeed(ctx, cfg.Node.Name)
	if err != nil {
		log.Fatalf("[main] seed: %v", err)
	}
	log.Printf("[main] serving guild %s", guildID)

	repos := initRepositories(db.Conn)

	hub := ws.NewHub()
	go hub.Run()

	// Media engine. A dead worker is fatal: voice is part of the
	// contract, not an optional extra.
	engine := media.NewWorkerEngine(media.WorkerConfig{
		Path:        cfg.Media.WorkerPath,
		ListenIP:    cfg.Media.ListenIP,
		AnnouncedIP: cfg.Media.AnnouncedIP,
		MinPort:     cfg.Media.MinPort,
		MaxPort:     cfg.Media.MaxPort,
	})
	if err := engine.Start(ctx); err != nil {
		log.Fatalf("[main] media worker: %v", err)
	}
	go func() {
		if err := <-engine.Died(); err != nil {
			log.Fatalf("[main] media worker died: %v", err)
		}
	}()

	svcs, err := initServices(cfg, guildID, repos, hub, engine)
	if err != nil {
		log.Fatalf("[main] services: %v", err)
	}

	limiter := ratelimit.NewLimiter(map[string]ratelimit.Limit{
		"upload":     {Max: 30, Window: time.Minute},
		"voice:join": {Max: 10, Window: time.Minute},
	})
	defer limiter.Close()

	hub.SetVoiceController(svcs.Voice, limiter)
	hub.SetChatController(svcs.Gateway)
	hub.SetDisconnectHook(svcs.Voice.HandleDisconnect)

	originAllowed := originChecker(cfg)
	wsHandler := ws.NewHandler(hub, ws.HandshakeDeps{
		Verify: func(ctx context.Context, token string) (string, string, error) {
			user, err := svcs.Identity.Verify(ctx, token)
			if err != nil {
				return "", "", err
			}
			return user.ID, user.Username, nil
		},
		IsBanned:     svcs.Member.IsBanned,
		EnsureMember: svcs.Member.EnsureJoined,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"))
		},
		GuildID: guildID,
	})

	h := initHandlers(cfg, guildID, repos, svcs, hub, limiter)
	router := initRoutes(cfg, h, wsHandler,
		middleware.NewAuthMiddleware(svcs.Identity, svcs.Member),
		middleware.NewPermissionMiddleware(svcs.Permission),
		middleware.NewAdminMiddleware(cfg.Admin.Key),
	)

	corsHandler := cors.New(cors.Options{
		AllowOriginFunc:  originAllowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Remus-Admin-Key"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go svcs.Heartbeat.Run(heartbeatCtx)

	go func() {
		log.Printf("[main] listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[main] shutting down...")

	stopHeartbeat()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
	hub.Shutdown()
	if err := engine.Close(); err != nil {
		log.Printf("[main] media engine close: %v", err)
	}
	log.Println("[main] bye")
}

// setupLogging mirrors log output to stdout and a rotating file under
// the runtime directory.
func setupLogging(cfg *config.Config) {
	flags := log.Ldate | log.Ltime
	if cfg.Debug {
		flags |= log.Lshortfile
	}
	log.SetFlags(flags)

	logDir := filepath.Join(cfg.Database.RuntimeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("[main] cannot create log dir, logging to stdout only: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "remus-node.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}))
}

// originChecker builds the shared origin policy used by both CORS and
// the WebSocket upgrade. Loopback origins are always allowed; the
// configured client origins, file://, and null are opt-in.
func originChecker(cfg *config.Config) func(origin string) bool {
	extra := map[string]bool{}
	for _, o := range strings.Split(cfg.Server.ClientOrigin, ",") {
		if o = strings.TrimSpace(strings.TrimRight(o, "/")); o != "" {
			extra[o] = true
		}
	}
	if cfg.Node.PublicURL != "" {
		extra[strings.TrimRight(cfg.Node.PublicURL, "/")] = true
	}

	return func(origin string) bool {
		if origin == "" {
			return true // same-origin or non-browser client
		}
		if origin == "null" {
			return cfg.Server.AllowNullOrigin
		}
		if strings.HasPrefix(origin, "file://") {
			return cfg.Server.AllowFileOrigin
		}
		if extra[strings.TrimRight(origin, "/")] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
}
