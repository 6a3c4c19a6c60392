// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"tani-assist-go/internal/agri"
	"tani-assist-go/internal/config"
	"tani-assist-go/internal/handler"
	"tani-assist-go/internal/middleware"
	"tani-assist-go/internal/pipeline"
	"tani-assist-go/internal/repository"
	"tani-assist-go/internal/service"
	"tani-assist-go/pkg/database"
	"tani-assist-go/pkg/es"
	"tani-assist-go/pkg/events"
	"tani-assist-go/pkg/kafka"
	"tani-assist-go/pkg/llm"
	"tani-assist-go/pkg/log"
	"tani-assist-go/pkg/storage"
	"tani-assist-go/pkg/token"
	"tani-assist-go/web"
	"time"
	_ "time/tzdata" // 容器镜像中可能没有 Asia/Jakarta 时区数据

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	usageRepo := repository.NewUsageRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	diseaseRepo := repository.NewPlantDiseaseRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.RDB, cfg.Assistant.HistoryLimit)

	if n, err := diseaseRepo.SeedIfEmpty(agri.CommonDiseases()); err != nil {
		log.Errorf("写入病害参考数据失败: %v", err)
	} else if n > 0 {
		log.Infof("已写入 %d 条病害参考数据", n)
	}

	// 5. 初始化外部客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient, err := llm.NewClient(appCtx, cfg.LLM)
	if err != nil {
		log.Fatal("LLM 客户端初始化失败", err)
	}

	// 可选组件：未启用时保持为 nil 接口，服务层自动降级
	var images storage.ImageStore
	if cfg.MinIO.Enabled {
		store, err := storage.InitMinIO(appCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		images = store
	}

	var searcher service.ConversationSearcher
	var index pipeline.ConversationIndex
	if cfg.Elasticsearch.Enabled {
		esIndex, err := es.InitES(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("es 初始化失败", err)
		}
		searcher = esIndex
		index = esIndex
	}
	indexer := pipeline.NewIndexer(index)

	var publisher events.Publisher = events.DirectPublisher{Processor: indexer}
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
		// 启动后台 Kafka 消费者
		go kafka.StartConsumer(appCtx, cfg.Kafka, indexer, database.RDB)
	}

	// 6. 初始化 Service (依赖注入)
	loc := cfg.Assistant.Location()
	userService := service.NewUserService(userRepo, usageRepo, sessionRepo, jwtManager, database.RDB, loc)
	assistantService := service.NewAssistantService(cfg.Assistant, cfg.LLM, llmClient, sessionRepo, usageRepo, userRepo, images, publisher)
	widgetService := service.NewWidgetService(cfg.Assistant, usageRepo, diseaseRepo)
	historyService := service.NewHistoryService(conversationRepo, searcher, images)

	userHandler := handler.NewUserHandler(userService)
	chatHandler := handler.NewChatHandler(assistantService, userService, jwtManager, cfg.Assistant.MaxImageBytes)
	widgetHandler := handler.NewWidgetHandler(widgetService, assistantService)
	historyHandler := handler.NewHistoryHandler(historyService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.MaxMultipartMemory = cfg.Assistant.MaxImageBytes + 1<<20

	// 8. 注册路由
	r.GET("/", handler.NewPageHandler(web.Index).Index)
	r.GET("/chat/:token", chatHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(jwtManager, userService)
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(authMiddleware)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.PUT("/me", userHandler.UpdateProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		chat := apiV1.Group("/chat")
		chat.Use(authMiddleware)
		{
			chat.GET("/session", chatHandler.GetSession)
			chat.POST("/messages", chatHandler.SendMessage)
			chat.POST("/quick-topics/:id", chatHandler.QuickTopic)
			chat.DELETE("/session", chatHandler.ResetSession)
		}

		widgets := apiV1.Group("/widgets")
		widgets.Use(authMiddleware)
		{
			widgets.GET("/tip", widgetHandler.Tip)
			widgets.GET("/prices", widgetHandler.Prices)
			widgets.GET("/quick-topics", widgetHandler.QuickTopics)
			widgets.GET("/usage", widgetHandler.Usage)
			widgets.POST("/soil", widgetHandler.AnalyzeSoil)
			widgets.GET("/soil/sample", widgetHandler.SampleSoil)
		}
		apiV1.GET("/diseases", authMiddleware, widgetHandler.Diseases)

		history := apiV1.Group("/history")
		history.Use(authMiddleware)
		{
			history.GET("", historyHandler.List)
			history.GET("/search", historyHandler.Search)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并刷新生产者
	cancelApp()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
