package main

import (
	"log"
	"os"
	"time"

	"versechat/internal/api"
	"versechat/internal/chat"
	"versechat/internal/config"
	"versechat/internal/notify"
	"versechat/internal/quota"
	"versechat/internal/redis"
	"versechat/internal/storage"
	"versechat/internal/store"
	"versechat/internal/transport"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("VERSECHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("VERSECHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	notifier := store.NewNotifier(rdb)
	storeService := store.NewService(db, notifier)

	provider := os.Getenv("VERSECHAT_PROVIDER")
	if provider == "" {
		provider = "openai"
	}
	engine, err := transport.NewEngine(cfg, provider, "")
	if err != nil {
		log.Fatalf("init transport engine: %v", err)
	}

	notifyService := notify.NewService(rdb)
	manager := chat.NewManager(chat.Deps{
		Transport: engine,
		Suggester: engine,
		Store:     storeService,
		Quota:     quota.NewGate(rdb, cfg.Chat.DailyMessageLimit),
		Notify:    notifyService,
		Config: chat.Config{
			MaxAttempts:    cfg.Chat.MaxAttempts,
			RequestTimeout: time.Duration(cfg.Chat.RequestTimeoutSeconds) * time.Second,
		},
	})
	defer manager.Shutdown()

	// out-of-band store mutations pull the matching controller back in sync
	notifier.Listen(func(change store.Change) {
		manager.Resync(change.ConversationID)
	})

	handlers := api.NewHandler(storeService, manager, notifyService)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("run server: %v", err)
	}
}
