package main

import (
	"log"
	"os"
	"strings"
	"time"

	"localchat/internal/api"
	"localchat/internal/config"
	"localchat/internal/identity"
	"localchat/internal/notify"
	"localchat/internal/redis"
	"localchat/internal/service/assistant"
	"localchat/internal/service/chat"
	"localchat/internal/storage"
	"localchat/internal/store"
	"localchat/internal/ui"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("LOCALCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if override := os.Getenv("LOCALCHAT_STORE"); override != "" {
		cfg.BasicConfig.Store = override
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	storeType := strings.ToLower(cfg.BasicConfig.Store)
	log.Printf("store: %s, collection key: %s\n", storeType, cfg.BasicConfig.CollectionKey)

	var rdb *redis.Client
	if storeType == "redis" || cfg.Redis.PubSub {
		rdb, err = redis.Dial(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	var backend store.Backend
	switch storeType {
	case "memory":
		backend = store.NewMemory()
	case "redis":
		backend = rdb
	default:
		db, err := storage.Open(storeType, cfg)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		// Create the kv_store table that holds the chat collection.
		if err := storage.Migrate(db, storeType); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
		backend = storage.NewKV(db, storeType)
	}

	chats := chat.NewRepository(store.NewChatStore(backend, cfg.BasicConfig.CollectionKey))
	hub := notify.NewHub()
	defer hub.Close()
	if cfg.Redis.PubSub {
		hub.AttachRedis(rdb)
		defer hub.DetachRedis()
	}

	controller := ui.NewController(chats, assistant.NewService(nil), hub)
	identityService := identity.NewService(365 * 24 * time.Hour)
	handlers := api.NewHandler(controller, identityService, hub)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = config.DefaultServerAddress
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
