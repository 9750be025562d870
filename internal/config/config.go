package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
// 启动时加载一次，之后作为只读快照注入各组件，运行期不再修改
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Security SecurityConfig `mapstructure:"security"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// PublicBaseURL 对外领取地址的基准，空则使用请求的 Host 推导
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ClaimResult string `mapstructure:"claim_result"`
}

// StorageConfig 对象存储配置
// channels 按 priority 从高到低依次尝试，全部失败时回退本地存储
type StorageConfig struct {
	Local    LocalStorageConfig     `mapstructure:"local"`
	Channels []StorageChannelConfig `mapstructure:"channels"`
}

type LocalStorageConfig struct {
	Dir     string `mapstructure:"dir"`
	BaseURL string `mapstructure:"base_url"`
}

type StorageChannelConfig struct {
	ID        string `mapstructure:"id"`
	Provider  string `mapstructure:"provider"` // s3 / cos
	Priority  int    `mapstructure:"priority"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

type SecurityConfig struct {
	// SecretKey 用于礼物 token 哈希与内容凭证签名
	SecretKey           string `mapstructure:"secret_key"`
	ContentTicketExpire int    `mapstructure:"content_ticket_expire_minutes"`
}

type BusinessConfig struct {
	// ClaimContactText 失效页展示的联系方式
	ClaimContactText string `mapstructure:"claim_contact_text"`
	MaxRetryCount    int    `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if config.Security.ContentTicketExpire <= 0 {
		config.Security.ContentTicketExpire = 30
	}
	if config.Business.ClaimContactText == "" {
		config.Business.ClaimContactText = "请联系活动组织方获取帮助"
	}

	GlobalConfig = config
	return config
}
