// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"codevend/internal/pkg/logger"
)

// Duration 包装 time.Duration，让配置文件里可以直接写 "30s"、"2m" 这样的值。
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ClassifierRuleConfig 是一条商品标题分类规则。
// When 是一个 CEL 表达式，作用在变量 title（已转小写）上。
type ClassifierRuleConfig struct {
	Pool     string `yaml:"pool,omitempty"`
	SubRange string `yaml:"subRange,omitempty"`
	When     string `yaml:"when"`
}

// Config 汇总了服务的全部可配置项。
type Config struct {
	App struct {
		ServiceName       string   `yaml:"serviceName"`
		Port              int      `yaml:"port"`
		ProcessingTimeout Duration `yaml:"processingTimeout"`
		MaxRetryAttempts  int      `yaml:"maxRetryAttempts"`
		RetryDelay        Duration `yaml:"retryDelay"`

		Classifier struct {
			Games     []ClassifierRuleConfig `yaml:"games"`
			CodeTypes []ClassifierRuleConfig `yaml:"codeTypes"`
		} `yaml:"classifier"`

		Marketplace struct {
			APIURL             string `yaml:"apiUrl"`
			AuthToken          string `yaml:"authToken"`
			AppName            string `yaml:"appName"`
			DevName            string `yaml:"devName"`
			CertName           string `yaml:"certName"`
			SiteID             string `yaml:"siteId"`
			CompatibilityLevel string `yaml:"compatibilityLevel"`
		} `yaml:"marketplace"`
	} `yaml:"app"`

	Infra struct {
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Kafka struct {
			Brokers         []string `yaml:"brokers"`
			RetryTopic      string   `yaml:"retryTopic"`
			DeadLetterTopic string   `yaml:"deadLetterTopic"`
			EventsTopic     string   `yaml:"eventsTopic"`
			ConsumerGroup   string   `yaml:"consumerGroup"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Servers        []string `yaml:"servers"`
			SessionTimeout Duration `yaml:"sessionTimeout"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置：默认值 -> 配置文件(CONFIG_PATH) -> 环境变量覆盖。
// 必须在使用 GetCurrentConfig 之前调用。
func Init() {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Logger().Fatal().Err(err).Str("path", path).Msg("failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Logger().Fatal().Err(err).Str("path", path).Msg("failed to parse config file")
		}
	}

	applyEnvOverrides(cfg)
	logger.Init(cfg.App.ServiceName)
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置。
func GetCurrentConfig() *Config {
	cfg := currentConfig.Load()
	if cfg == nil {
		// Init 未被调用时退回默认配置，保证测试场景可用
		cfg = defaultConfig()
		currentConfig.Store(cfg)
	}
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.ServiceName = "fulfillment-service"
	cfg.App.Port = 8088
	cfg.App.ProcessingTimeout = Duration{30 * time.Second}
	cfg.App.MaxRetryAttempts = 3
	cfg.App.RetryDelay = Duration{10 * time.Second}

	cfg.App.Classifier.Games = []ClassifierRuleConfig{
		{Pool: "Game1", When: `title.contains("game1")`},
		{Pool: "Game2", When: `title.contains("game2")`},
	}
	cfg.App.Classifier.CodeTypes = []ClassifierRuleConfig{
		{SubRange: "A:B", When: `title.contains("item32")`},
		{SubRange: "C:D", When: `title.contains("item99")`},
	}

	cfg.App.Marketplace.APIURL = "https://api.ebay.com/ws/api.dll"
	cfg.App.Marketplace.SiteID = "0"
	cfg.App.Marketplace.CompatibilityLevel = "967"

	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/codevend?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.RetryTopic = "fulfillment-retry"
	cfg.Infra.Kafka.DeadLetterTopic = "fulfillment-dlt"
	cfg.Infra.Kafka.EventsTopic = "fulfillment-events"
	cfg.Infra.Kafka.ConsumerGroup = "fulfillment-service-group"
	cfg.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	cfg.Infra.Zookeeper.SessionTimeout = Duration{5 * time.Second}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("MARKETPLACE_AUTH_TOKEN"); v != "" {
		cfg.App.Marketplace.AuthToken = v
	}
	if v := os.Getenv("MARKETPLACE_APP_NAME"); v != "" {
		cfg.App.Marketplace.AppName = v
	}
	if v := os.Getenv("MARKETPLACE_DEV_NAME"); v != "" {
		cfg.App.Marketplace.DevName = v
	}
	if v := os.Getenv("MARKETPLACE_CERT_NAME"); v != "" {
		cfg.App.Marketplace.CertName = v
	}
}
