package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MetaFacil/AppConecta/internal/chat"
	"github.com/MetaFacil/AppConecta/internal/config"
	"github.com/MetaFacil/AppConecta/internal/devstub"
	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/feed/pglisten"
	"github.com/MetaFacil/AppConecta/internal/feed/realtime"
	"github.com/MetaFacil/AppConecta/internal/logger"
	"github.com/MetaFacil/AppConecta/internal/media/localdir"
	"github.com/MetaFacil/AppConecta/internal/model"
	"github.com/MetaFacil/AppConecta/internal/presence"
	redispresence "github.com/MetaFacil/AppConecta/internal/presence/redis"
	"github.com/MetaFacil/AppConecta/internal/session"
	"github.com/MetaFacil/AppConecta/internal/startup"
	"github.com/MetaFacil/AppConecta/internal/store"
	"github.com/MetaFacil/AppConecta/internal/store/postgres"
	"github.com/MetaFacil/AppConecta/internal/store/rest"
	"github.com/MetaFacil/AppConecta/migrations"
)

// backend bundles the pluggable transports behind the two deployment modes.
type backend struct {
	msgs     store.MessageStore
	chats    store.ChatStore
	profiles store.ProfileStore
	media    store.MediaStore
	subr     feed.Subscriber
	joiner   presence.Joiner
	close    func()
}

func main() {
	logger.SetPrefix("conecta")
	dev := flag.Bool("dev", false, "start the in-memory dev stub and connect to it")
	direct := flag.Bool("direct", false, "connect directly to Postgres and Redis instead of the hosted service")
	userID := flag.String("user", "", "session user id")
	chatID := flag.String("chat", "", "open this conversation (otherwise only the list is shown)")
	flag.Parse()

	logger.Info("starting conecta")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var b backend
	switch {
	case *direct:
		b = directBackend(cfg, *dev)
	default:
		if *dev {
			startDevStub(cfg)
		}
		b = hostedBackend(cfg)
	}
	defer b.close()

	if *userID == "" {
		logger.Errorf("-user is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	profile, err := b.profiles.Profile(ctx, *userID)
	cancel()
	if err != nil {
		logger.Errorf("load profile %s: %v", *userID, err)
		os.Exit(1)
	}
	sess := session.New(profile, cfg.ServiceKey)
	logger.Infof("session: %s (%s)", profile.Nome, profile.Tipo)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	var wg sync.WaitGroup

	agg, err := chat.NewAggregator(sess, b.chats, b.msgs, b.profiles, b.subr)
	if err != nil {
		logger.Errorf("aggregator: %v", err)
		os.Exit(1)
	}
	defer agg.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(runCtx)
	}()
	refreshCtx, refreshCancel := context.WithTimeout(runCtx, 15*time.Second)
	if err := agg.Refresh(refreshCtx); err != nil {
		logger.Errorf("initial refresh: %v", err)
	}
	refreshCancel()

	var rec *chat.Reconciler
	if *chatID != "" {
		opts := chat.DefaultOptions()
		opts.TypingIdle = cfg.Chat.TypingIdle
		opts.TypingExpiry = cfg.Chat.TypingExpiry
		opts.SendConfirmTimeout = cfg.Chat.SendConfirmTimeout
		rec, err = chat.NewReconciler(opts, sess, *chatID, b.msgs, b.media, b.subr, b.joiner)
		if err != nil {
			logger.Errorf("open chat %s: %v", *chatID, err)
			os.Exit(1)
		}
		defer rec.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Run(runCtx)
		}()
		loadCtx, loadCancel := context.WithTimeout(runCtx, 15*time.Second)
		if err := rec.LoadHistory(loadCtx); err != nil {
			logger.Errorf("load history: %v", err)
		}
		loadCancel()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		printUpdates(runCtx, sess, agg, rec)
	}()

	if rec != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			readStdin(runCtx, runCancel, rec)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case <-runCtx.Done():
	}
	runCancel()
	wg.Wait()
	logger.Info("stopped")
}

// hostedBackend wires the rest and realtime clients against the hosted
// service (or the dev stub).
func hostedBackend(cfg *config.Config) backend {
	client := rest.New(cfg.ServiceURL, cfg.ServiceKey, cfg.MediaBucket)
	wsOpts := realtime.Options{
		WriteTimeout:   time.Duration(cfg.WSWriteTimeout) * time.Second,
		PongTimeout:    time.Duration(cfg.WSPongTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WSMaxMessageSize),
	}
	conn, err := realtime.Dial(wsOpts, wsURL(cfg.ServiceURL)+"/v1/realtime", cfg.ServiceKey)
	if err != nil {
		logger.Errorf("realtime dial: %v", err)
		os.Exit(1)
	}
	return backend{
		msgs:     client,
		chats:    client,
		profiles: client,
		media:    client,
		subr:     conn,
		joiner:   conn,
		close:    func() { conn.Close() },
	}
}

// directBackend wires Postgres (with LISTEN/NOTIFY) and Redis pub/sub. With
// dev an embedded Postgres is started; Redis must still be reachable.
func directBackend(cfg *config.Config, dev bool) backend {
	var embedded *embeddedpostgres.EmbeddedPostgres
	if dev {
		var err error
		embedded, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)

	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = migrations.Apply(migCtx, pool)
	migCancel()
	if err != nil {
		logger.Errorf("migrations: %v", err)
		os.Exit(1)
	}
	logger.Info("database connected, migrations applied")

	rdb := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)

	mediaStore, err := localdir.New(cfg.MediaDir)
	if err != nil {
		logger.Errorf("media dir: %v", err)
		os.Exit(1)
	}

	st := postgres.New(pool)
	listener := pglisten.New(pool)
	return backend{
		msgs:     st,
		chats:    st,
		profiles: st,
		media:    mediaStore,
		subr:     listener,
		joiner:   redispresence.NewJoiner(rdb),
		close: func() {
			listener.Close()
			rdb.Close()
			pool.Close()
			if embedded != nil {
				logger.Info("stopping embedded postgres...")
				if err := embedded.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}
		},
	}
}

// startDevStub serves the in-memory backend and seeds a demo dataset so the
// client has something to talk to out of the box.
func startDevStub(cfg *config.Config) {
	stub := devstub.New()
	seedDemo(stub)

	go func() {
		logger.Infof("dev stub listening on %s", cfg.DevStubAddr)
		if err := http.ListenAndServe(cfg.DevStubAddr, stub); err != nil {
			logger.Errorf("dev stub: %v", err)
			os.Exit(1)
		}
	}()
	// Give the listener a beat before the clients dial it.
	time.Sleep(100 * time.Millisecond)
}

func seedDemo(stub *devstub.Server) {
	cliente := stub.SeedProfile(model.Profile{
		ID:    "11111111-1111-1111-1111-111111111111",
		Email: "ana@example.com", Nome: "Ana Souza", Cidade: "São Paulo",
		Tipo: model.ProfileTypeCliente,
	})
	freelancer := stub.SeedProfile(model.Profile{
		ID:    "22222222-2222-2222-2222-222222222222",
		Email: "bruno@example.com", Nome: "Bruno Lima", Cidade: "Curitiba",
		Tipo: model.ProfileTypeFreelancer, Descricao: "Eletricista residencial",
		Disponivel: true,
	})
	cat := stub.SeedCategory(model.Category{Nome: "Elétrica", Icone: "zap"})
	stub.SeedService(model.Service{
		FreelancerID: freelancer.ID, CategoryID: cat.ID,
		Nome: "Instalação elétrica", Preco: 150, Ativo: true,
	})
	c := stub.SeedChat(model.Chat{
		ID:        "33333333-3333-3333-3333-333333333333",
		ClienteID: cliente.ID, FreelancerID: freelancer.ID,
	})
	stub.SeedMessage(model.Message{
		ChatID: c.ID, SenderID: freelancer.ID,
		Conteudo: "Olá! Posso ajudar com o seu projeto?", MessageType: model.MessageTypeText,
	})
	logger.Infof("dev stub seeded: users %s, %s; chat %s", cliente.ID, freelancer.ID, c.ID)
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "conecta"
		password = "conecta_secret"
		database = "conecta"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	return db, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}

// printUpdates renders the conversation list and, when a chat is open, its
// transcript and typing indicator, on every state change.
func printUpdates(ctx context.Context, sess *session.Session, agg *chat.Aggregator, rec *chat.Reconciler) {
	var recUpdates <-chan struct{}
	if rec != nil {
		recUpdates = rec.Updates()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-agg.Updates():
			fmt.Println("--- conversations ---")
			for _, s := range agg.Summaries() {
				line := fmt.Sprintf("  [%d unread] ", s.UnreadCount)
				if s.Other != nil {
					line += s.Other.Nome
				} else {
					line += s.Chat.OtherParticipant(sess.UserID)
				}
				if s.LastMessage != nil {
					line += ": " + s.LastMessage.Conteudo
				}
				if s.Degraded {
					line += " (!)"
				}
				fmt.Println(line)
			}
		case <-recUpdates:
			fmt.Println("--- chat ---")
			for _, m := range rec.Messages() {
				mark := " "
				switch {
				case m.Failed:
					mark = "x"
				case m.Pending:
					mark = "…"
				case m.Lida:
					mark = "✓"
				}
				fmt.Printf("  [%s] %s: %s\n", mark, shortID(m.SenderID), m.Conteudo)
			}
			if rec.PeerTyping() {
				fmt.Println("  (typing...)")
			}
		}
	}
}

// readStdin feeds typed lines into the open conversation. A line reader sees
// no keystrokes, so the typing signal fires right before the send.
func readStdin(ctx context.Context, cancel context.CancelFunc, rec *chat.Reconciler) {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Println("type a message and press enter (/read marks read, /image <path> sends a file, /quit exits)")
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			cancel()
			return
		case line == "/read":
			opCtx, opCancel := context.WithTimeout(ctx, 10*time.Second)
			if err := rec.MarkRead(opCtx); err != nil {
				logger.Errorf("mark read: %v", err)
			}
			opCancel()
		case strings.HasPrefix(line, "/image "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/image "))
			f, err := os.Open(path)
			if err != nil {
				logger.Errorf("open %s: %v", path, err)
				continue
			}
			ext := strings.TrimPrefix(filepath.Ext(path), ".")
			if ext == "" {
				ext = "bin"
			}
			opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
			_, err = rec.SendImage(opCtx, f, ext)
			opCancel()
			f.Close()
			if err != nil {
				logger.Errorf("send image: %v", err)
			}
		default:
			rec.SetTyping(true)
			opCtx, opCancel := context.WithTimeout(ctx, 15*time.Second)
			if _, err := rec.SendText(opCtx, line); err != nil {
				logger.Errorf("send: %v", err)
			}
			opCancel()
		}
	}
	cancel()
}
