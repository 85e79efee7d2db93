package main

import (
	"log"
	"strings"
	"time"

	"artcache/auth"
	"artcache/cache"
	"artcache/config"
	"artcache/db"
	"artcache/generator"
	"artcache/handlers"
	"artcache/models"
	"artcache/ratelimit"
	"artcache/storage"
	"artcache/sweeper"
	"artcache/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookieName     = "token"
	sessionExpirationTime = 30 * 86400 // 30 days
)

// ensureDefaultBucket creates the initial disk bucket on first start
func ensureDefaultBucket() {
	var count int64
	db.Instance.Model(&storage.Bucket{}).Count(&count)
	if count > 0 || config.CONTENT_DIR == "" {
		return
	}
	bucket := storage.Bucket{
		Name:        "content",
		StorageType: storage.StorageTypeFile,
		Path:        config.CONTENT_DIR,
	}
	if err := bucket.Create(); err != nil {
		panic(err)
	}
	log.Printf("Created content bucket at %s", config.CONTENT_DIR)
}

// ensureAdminClient bootstraps a first admin API key so the service is
// usable out of the box. Printed once; rotate it afterwards.
func ensureAdminClient() {
	var count int64
	db.Instance.Model(&models.ApiClient{}).Count(&count)
	if count > 0 {
		return
	}
	client := models.ApiClient{
		Name:  "admin",
		Key:   uuid.NewString(),
		Admin: true,
	}
	if err := db.Instance.Create(&client).Error; err != nil {
		panic(err)
	}
	log.Printf("Created initial admin API key: %s", client.Key)
}

func main() {
	db.Init()
	models.Init()
	ensureDefaultBucket()
	storage.Init()
	ensureAdminClient()

	coordinator := cache.New(generator.NewHTTPGenerator())
	limiter := ratelimit.New()
	sweep := sweeper.New(coordinator.Active)
	handlers.Init(coordinator, limiter, sweep)
	go sweeper.StartSweeping(sweep)

	if !config.DEBUG_MODE {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	_ = router.SetTrustedProxies([]string{})
	if config.DEBUG_MODE {
		router.Use(utils.ErrorLogMiddleware)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PUT", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           30 * 24 * time.Hour,
	}))

	sessionKey := config.SESSION_KEY
	if sessionKey == "" {
		// Sessions won't survive a restart; clients fall back to X-API-Key
		sessionKey = uuid.NewString()
	}
	cookieStore := gormsessions.NewStore(db.Instance, true, []byte(sessionKey))
	cookieStore.Options(sessions.Options{MaxAge: sessionExpirationTime})
	router.Use(sessions.Sessions(sessionCookieName, cookieStore))
	if !config.DEBUG_MODE {
		router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/asset/fetch"})))
	}
	router.Use((&utils.CacheRouter{CacheTime: utils.CacheNoCache}).Handler()) // No cache by default, individual end-points can override that

	// Custom Auth Router
	authRouter := &auth.Router{Base: router}
	// Client session handlers
	router.POST("/client/login", handlers.ClientLogin)
	authRouter.POST("/client/logout", handlers.ClientLogout)
	// Asset handlers
	authRouter.POST("/asset/generate", handlers.AssetGenerate, models.PermissionGenerate)
	authRouter.GET("/asset/list", handlers.AssetList)
	authRouter.GET("/asset/fetch", handlers.AssetFetch)
	authRouter.POST("/asset/feature", handlers.AssetFeature, models.PermissionAdmin)
	authRouter.POST("/asset/delete", handlers.AssetDelete, models.PermissionAdmin)
	// Cache maintenance handlers
	authRouter.GET("/cache/stats", handlers.CacheStatsGet)
	authRouter.POST("/cache/clear", handlers.CacheClear, models.PermissionAdmin)
	authRouter.POST("/sweep", handlers.SweepNow, models.PermissionAdmin)
	// Migration importer
	authRouter.POST("/import", handlers.ImportBatch, models.PermissionAdmin)
	// Event feed
	authRouter.GET("/events", handlers.Events)

	var err error
	if config.TLS_DOMAINS != "" {
		err = autotls.Run(router, strings.Split(config.TLS_DOMAINS, ",")...)
	} else {
		err = router.Run(config.BIND_ADDRESS)
	}
	log.Fatalf("Server stopped: %v", err)
}
