// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/toml" // TOML 配置文件解析库
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName    string `toml:"appName"`    // 应用名称，用于日志标识等
	Host       string `toml:"host"`       // 服务器监听地址，如 "0.0.0.0"
	Port       int    `toml:"port"`       // 服务器监听端口，如 8000
	Mode       string `toml:"mode"`       // 运行模式：dev 或 release
	ForceTLS   bool   `toml:"forceTLS"`   // 是否启用 HTTP -> HTTPS 重定向
	CertFile   string `toml:"certFile"`   // TLS 证书路径，为空时以 HTTP 方式监听
	KeyFile    string `toml:"keyFile"`    // TLS 私钥路径
	InstanceID string `toml:"instanceId"` // 实例标识，用于 Kafka 消费组区分，留空则启动时随机生成
}

// MysqlConfig 关系型数据库连接配置
// Driver 支持 mysql（默认）、postgres、sqlite
type MysqlConfig struct {
	Driver       string `toml:"driver"`       // 数据库驱动
	Host         string `toml:"host"`         // 服务器地址
	Port         int    `toml:"port"`         // 端口，MySQL 默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称；sqlite 下为文件路径
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host       string `toml:"host"`       // Redis 服务器地址
	Port       int    `toml:"port"`       // Redis 端口，默认 6379
	Password   string `toml:"password"`   // Redis 密码，无密码留空
	Db         int    `toml:"db"`         // Redis 数据库编号，默认 0
	WorkerNum  int    `toml:"workerNum"`  // 异步缓存任务 worker 数
	BufferSize int    `toml:"bufferSize"` // 异步缓存任务队列长度
}

// AuthCodeConfig 短信验证码服务配置（阿里云 SMS）
type AuthCodeConfig struct {
	AccessKeyID     string `toml:"accessKeyID"`     // 阿里云 AccessKey ID
	AccessKeySecret string `toml:"accessKeySecret"` // 阿里云 AccessKey Secret
	SignName        string `toml:"signName"`        // 短信签名名称
	TemplateCode    string `toml:"templateCode"`    // 短信模板 Code
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig Kafka 消息队列配置（仅 fanout 模式为 kafka 时使用）
type KafkaConfig struct {
	HostPort    string        `toml:"hostPort"`    // Kafka 服务器地址，多个以逗号分隔
	FanoutTopic string        `toml:"fanoutTopic"` // 跨实例广播主题
	Partition   int           `toml:"partition"`   // 主题分区数
	Timeout     time.Duration `toml:"timeout"`     // 写超时（秒）
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret             string `toml:"secret"`             // JWT 签名密钥，建议 32 字符以上
	AccessTokenExpiry  int    `toml:"accessTokenExpiry"`  // Access Token 有效期（分钟）
	RefreshTokenExpiry int    `toml:"refreshTokenExpiry"` // Refresh Token 有效期（小时）
}

// DeviceConfig 多设备登录策略
type DeviceConfig struct {
	MaxDevicesPerUser int    `toml:"maxDevicesPerUser"` // 单用户同时有效的设备会话上限
	EvictionPolicy    string `toml:"evictionPolicy"`    // 超限策略：evict_oldest 或 reject_new
	DeviceIdMaxLen    int    `toml:"deviceIdMaxLen"`    // 设备标识最大长度
}

// FanoutConfig 实时推送配置
type FanoutConfig struct {
	Mode         string `toml:"mode"`         // 跨实例广播总线："channel"（单实例）、"redis" 或 "kafka"
	Workers      int    `toml:"workers"`      // 广播 worker 数
	QueueSize    int    `toml:"queueSize"`    // 每个 worker 的任务队列长度
	ClientBuffer int    `toml:"clientBuffer"` // 每个连接的发送队列长度
	Shards       int    `toml:"shards"`       // 房间表分片数
	RedisChannel string `toml:"redisChannel"` // redis 模式下的 Pub/Sub 频道
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023，分布式部署时每台机器需唯一
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	SendPerSecond float64 `toml:"sendPerSecond"` // 单连接每秒发送消息数
	SendBurst     int     `toml:"sendBurst"`     // 单连接突发上限
	AuthPerMinute float64 `toml:"authPerMinute"` // 单 IP 每分钟认证请求数
	AuthBurst     int     `toml:"authBurst"`     // 单 IP 认证突发上限
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	AuthCodeConfig  `toml:"authCodeConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	JWTConfig       `toml:"jwtConfig"`
	DeviceConfig    `toml:"deviceConfig"`
	FanoutConfig    `toml:"fanoutConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	RateLimitConfig `toml:"rateLimitConfig"`
}

var (
	config     *Config
	configOnce sync.Once
)

// 候选配置文件路径（优先加载本地配置）
var searchPaths = []string{
	"configs/config_local.toml",
	"configs/config.toml",
	"../../configs/config_local.toml", // 从 cmd 子目录运行时的路径
	"../../configs/config.toml",
}

// Load 从指定路径加载配置并补全默认值
func Load(path string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	conf.applyDefaults()
	return conf, nil
}

// LoadConfig 按顺序尝试候选路径，找到第一个可用的配置文件即停止
func LoadConfig() (*Config, error) {
	for _, path := range searchPaths {
		if conf, err := Load(path); err == nil {
			return conf, nil
		}
	}
	return nil, fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig 获取全局配置实例（单例模式）
// 找不到配置文件时使用默认值
func GetConfig() *Config {
	configOnce.Do(func() {
		conf, err := LoadConfig()
		if err != nil {
			conf = Default()
		}
		config = conf
	})
	return config
}

// Default 返回全部使用默认值的配置，单实例 + sqlite 即可跑通
func Default() *Config {
	conf := new(Config)
	conf.applyDefaults()
	return conf
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "kama_realtime"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.MainConfig.Mode == "" {
		c.MainConfig.Mode = "dev"
	}
	if c.MysqlConfig.Driver == "" {
		c.MysqlConfig.Driver = "mysql"
	}
	if c.RedisConfig.Port == 0 {
		c.RedisConfig.Port = 6379
	}
	if c.RedisConfig.WorkerNum == 0 {
		c.RedisConfig.WorkerNum = 15
	}
	if c.RedisConfig.BufferSize == 0 {
		c.RedisConfig.BufferSize = 3000
	}
	if c.LogConfig.LogPath == "" {
		c.LogConfig.LogPath = "./logs"
	}
	if c.KafkaConfig.FanoutTopic == "" {
		c.KafkaConfig.FanoutTopic = "chat_fanout"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}
	if c.JWTConfig.Secret == "" {
		c.JWTConfig.Secret = "kama_realtime_dev_secret_change_me"
	}
	if c.JWTConfig.AccessTokenExpiry == 0 {
		c.JWTConfig.AccessTokenExpiry = 60 * 24 // 1 天
	}
	if c.JWTConfig.RefreshTokenExpiry == 0 {
		c.JWTConfig.RefreshTokenExpiry = 24 * 14 // 14 天
	}
	if c.DeviceConfig.MaxDevicesPerUser == 0 {
		c.DeviceConfig.MaxDevicesPerUser = 5
	}
	if c.DeviceConfig.EvictionPolicy == "" {
		c.DeviceConfig.EvictionPolicy = "evict_oldest"
	}
	if c.DeviceConfig.DeviceIdMaxLen == 0 {
		c.DeviceConfig.DeviceIdMaxLen = 128
	}
	if c.FanoutConfig.Mode == "" {
		c.FanoutConfig.Mode = "channel"
	}
	if c.FanoutConfig.Workers == 0 {
		c.FanoutConfig.Workers = 8
	}
	if c.FanoutConfig.QueueSize == 0 {
		c.FanoutConfig.QueueSize = 1024
	}
	if c.FanoutConfig.ClientBuffer == 0 {
		c.FanoutConfig.ClientBuffer = 256
	}
	if c.FanoutConfig.Shards == 0 {
		c.FanoutConfig.Shards = 32
	}
	if c.FanoutConfig.RedisChannel == "" {
		c.FanoutConfig.RedisChannel = "chat:fanout"
	}
	if c.SnowflakeConfig.MachineID == 0 {
		c.SnowflakeConfig.MachineID = 1
	}
	if c.RateLimitConfig.SendPerSecond == 0 {
		c.RateLimitConfig.SendPerSecond = 10
	}
	if c.RateLimitConfig.SendBurst == 0 {
		c.RateLimitConfig.SendBurst = 20
	}
	if c.RateLimitConfig.AuthPerMinute == 0 {
		c.RateLimitConfig.AuthPerMinute = 30
	}
	if c.RateLimitConfig.AuthBurst == 0 {
		c.RateLimitConfig.AuthBurst = 10
	}
}
