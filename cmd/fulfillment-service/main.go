// cmd/fulfillment-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codevend/internal/pkg/bootstrap"
	"codevend/internal/pkg/httpclient"
	"codevend/internal/pkg/logger"
	"codevend/internal/pkg/mq"
	pkgredis "codevend/internal/pkg/redis"
	"codevend/internal/pkg/zookeeper"
	"codevend/internal/service/fulfillment/application"
	"codevend/internal/service/fulfillment/domain"
	"codevend/internal/service/fulfillment/infrastructure"
	"codevend/internal/service/fulfillment/infrastructure/adapter"
	"codevend/internal/service/fulfillment/infrastructure/rule"
	"codevend/internal/service/fulfillment/interfaces"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	ctx := context.Background()

	// 1. 初始化核心技术组件
	redisClient, err := pkgredis.NewClient(ctx, cfg.Infra.Redis.Addr)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to mysql")
	}
	if err := db.AutoMigrate(&infrastructure.CodeEntryModel{}); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to migrate code_entries table")
	}

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout.Duration)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect to zookeeper")
	}
	defer zkConn.Close()

	retryWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RetryTopic)
	defer retryWriter.Close()
	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DeadLetterTopic)
	defer dltWriter.Close()
	eventsWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.EventsTopic)
	defer eventsWriter.Close()

	retryReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RetryTopic, cfg.Infra.Kafka.ConsumerGroup)
	dltReader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DeadLetterTopic, cfg.Infra.Kafka.ConsumerGroup+"-dlt")

	failureHandler := mq.NewFailureHandler(retryWriter, dltWriter, cfg.App.MaxRetryAttempts)

	// 2. 组装领域组件
	celEngine, err := rule.NewCelRuleEngine()
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize CEL rule engine")
	}
	classifier := domain.NewClassifier(celEngine, gameRules(cfg), codeTypeRules(cfg))

	poolRepo := infrastructure.NewGormCodePoolRepository(db)
	locker := adapter.NewZkRangeLocker(zkConn)
	allocator := domain.NewAllocator(poolRepo, locker)

	ledger := infrastructure.NewRedisLedger(redisClient)

	tracer := otel.Tracer(cfg.App.ServiceName)
	notifier := adapter.NewTradingHTTPAdapter(httpclient.NewClient(tracer), adapter.TradingAPIConfig{
		APIURL:             cfg.App.Marketplace.APIURL,
		AuthToken:          cfg.App.Marketplace.AuthToken,
		AppName:            cfg.App.Marketplace.AppName,
		DevName:            cfg.App.Marketplace.DevName,
		CertName:           cfg.App.Marketplace.CertName,
		SiteID:             cfg.App.Marketplace.SiteID,
		CompatibilityLevel: cfg.App.Marketplace.CompatibilityLevel,
	})
	events := adapter.NewEventsKafkaAdapter(eventsWriter)

	// 3. 应用服务与驱动适配器
	appService := application.NewFulfillmentApplicationService(
		ledger, classifier, allocator, notifier, events, tracer,
		cfg.App.ProcessingTimeout.Duration,
	)

	httpHandler := interfaces.NewFulfillmentHandler(appService, poolRepo, failureHandler)
	retryConsumer := interfaces.NewRetryConsumerAdapter(retryReader, appService, failureHandler, cfg.App.RetryDelay.Duration)
	dltConsumer := interfaces.NewDltConsumerAdapter(dltReader)

	// (可选, 本地联调用) 预置少量兑换码，生产环境通过 /admin/pools/seed 注入
	seedForLocalDev(ctx, cfg, poolRepo)

	// 4. 启动
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.ServiceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.BackgroundWorker{retryConsumer, dltConsumer},
	})
}

func gameRules(cfg *bootstrap.Config) []domain.GameRule {
	rules := make([]domain.GameRule, 0, len(cfg.App.Classifier.Games))
	for _, r := range cfg.App.Classifier.Games {
		rules = append(rules, domain.GameRule{Pool: r.Pool, When: r.When})
	}
	return rules
}

func codeTypeRules(cfg *bootstrap.Config) []domain.CodeTypeRule {
	rules := make([]domain.CodeTypeRule, 0, len(cfg.App.Classifier.CodeTypes))
	for _, r := range cfg.App.Classifier.CodeTypes {
		rules = append(rules, domain.CodeTypeRule{SubRange: r.SubRange, When: r.When})
	}
	return rules
}

// seedForLocalDev 在池子完全为空时放入几个占位码，方便本地跑通整条链路。
// 失败只记 WARN，不阻塞启动。
func seedForLocalDev(ctx context.Context, cfg *bootstrap.Config, poolRepo domain.CodePoolRepository) {
	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, r := range cfg.App.Classifier.Games {
		for _, ct := range cfg.App.Classifier.CodeTypes {
			entries, err := poolRepo.ReadRange(seedCtx, r.Pool, ct.SubRange)
			if err != nil || len(entries) > 0 {
				continue
			}
			if err := poolRepo.Seed(seedCtx, r.Pool, ct.SubRange, []string{"DEV-CODE-0001", "DEV-CODE-0002"}); err != nil {
				logger.Ctx(seedCtx).Warn().Err(err).
					Str("pool", r.Pool).Str("sub_range", ct.SubRange).
					Msg("could not seed dev codes")
			}
		}
	}
}
