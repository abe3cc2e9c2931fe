package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"multipost/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App         App         `json:"app"`
	Database    Database    `json:"database"`
	RedisClient RedisClient `json:"redisClient"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	Logger      Logger      `json:"logger"`
	Storage     Storage     `json:"storage"`
	Publish     Publish     `json:"publish"`
	YouTube     YouTube     `json:"youtube"`
	Facebook    Facebook    `json:"facebook"`
	TikTok      TikTok      `json:"tiktok"`
	ContentGen  ContentGen  `json:"contentGen"`
}

type App struct {
	Port        int      `json:"port"`
	SecretKey   string   `json:"secretKey"`
	TLSEnabled  bool     `json:"tlsEnabled"`
	TLSCertFile string   `json:"tlsCertFile"`
	TLSKeyFile  string   `json:"tlsKeyFile"`
	CORSOrigins []string `json:"corsOrigins"`
}

type Database struct {
	Psql  Db   `json:"psql"`
	MySql Db   `json:"mysql"`
	Mongo Db   `json:"mongo"`
	Mssql Db   `json:"mssql"`
	Pool  Pool `json:"pool"`
}

// Pool holds the database/sql connection pool settings shared by the SQL stores.
type Pool struct {
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	Topic     string `json:"topic"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

// Storage selects the backends for credentials and outcomes.
type Storage struct {
	CredentialBackend string `json:"credentialBackend"`
	OutcomeBackend    string `json:"outcomeBackend"`
	CredentialDir     string `json:"credentialDir"`
	OutcomeDir        string `json:"outcomeDir"`
	BackupDir         string `json:"backupDir"`
	BackupBucket      string `json:"backupBucket"`
	S3Region          string `json:"s3Region"`
	S3Endpoint        string `json:"s3Endpoint"`
	S3AccessKey       string `json:"s3AccessKey"`
	S3SecretKey       string `json:"s3SecretKey"`
}

type Retry struct {
	MaxAttempts  int           `json:"maxAttempts"`
	InitialDelay time.Duration `json:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay"`
	Multiplier   float64       `json:"multiplier"`
}

type Publish struct {
	Platforms       []string      `json:"platforms"`
	PlatformTimeout time.Duration `json:"platformTimeout"`
	RefreshMargin   time.Duration `json:"refreshMargin"`
	RefreshTimeout  time.Duration `json:"refreshTimeout"`
	HTTPTimeout     time.Duration `json:"httpTimeout"`
	Retry           Retry         `json:"retry"`
}

type YouTube struct {
	ClientID      string `json:"clientId"`
	ClientSecret  string `json:"clientSecret"`
	RedirectURI   string `json:"redirectURI"`
	CategoryID    string `json:"categoryId"`
	PrivacyStatus string `json:"privacyStatus"`
	Endpoint      string `json:"endpoint"`
}

type Facebook struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectURI"`
	GraphVersion string `json:"graphVersion"`
	PageID       string `json:"pageId"`
}

type TikTok struct {
	ClientKey    string `json:"clientKey"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectURI"`
	PrivacyLevel string `json:"privacyLevel"`
}

type ContentGen struct {
	Enabled bool          `json:"enabled"`
	APIKey  string        `json:"apiKey"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

var C Config

func init() {
	LoadEnvFromFile("config.env", ".env")
	LoadConfig()
	ApplyDefaults(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().WithField("config", name).Debug("Config file not found, using environment and defaults")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
	logger.Configure(C.Logger.Format, C.Logger.Level)
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

// ApplyDefaults fills environment overrides and defaults. It is idempotent.
func ApplyDefaults(c *Config) {
	initApp(c)
	initDatabase(c)
	initStorage(c)
	initPublish(c)
	initPlatforms(c)
	initContentGen(c)
}

func initApp(c *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.App.SecretKey = v
	}
	// APP_PORT -> PORT -> config -> 10001
	if v := firstEnv("APP_PORT", "PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.App.Port = p
		}
	}
	if c.App.Port == 0 {
		c.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.App.TLSEnabled = b
		}
	}
	c.App.TLSCertFile = getConfigValue(c.App.TLSCertFile, "TLS_CERT_FILE", "")
	c.App.TLSKeyFile = getConfigValue(c.App.TLSKeyFile, "TLS_KEY_FILE", "")
	if len(c.App.CORSOrigins) == 0 {
		c.App.CORSOrigins = []string{"http://localhost:4200", "http://localhost:4201"}
	}
}

func initDatabase(c *Config) {
	c.Database.Psql.Name = getConfigValue(c.Database.Psql.Name, "DB_NAME", "multipost")
	c.Database.Psql.Host = getConfigValue(c.Database.Psql.Host, "DB_HOST", "localhost")
	c.Database.Psql.Port = getConfigValue(c.Database.Psql.Port, "DB_PORT", "5432")
	c.Database.Psql.User = getConfigValue(c.Database.Psql.User, "DB_USER", "postgres")
	c.Database.Psql.Password = getConfigValue(c.Database.Psql.Password, "DB_PASSWORD", "")

	c.Database.Mssql.Name = getConfigValue(c.Database.Mssql.Name, "MSSQL_DB_NAME", "multipost")
	c.Database.Mssql.Host = getConfigValue(c.Database.Mssql.Host, "MSSQL_HOST", "localhost")
	c.Database.Mssql.Port = getConfigValue(c.Database.Mssql.Port, "MSSQL_PORT", "1433")
	c.Database.Mssql.User = getConfigValue(c.Database.Mssql.User, "MSSQL_USER", "sa")
	c.Database.Mssql.Password = getConfigValue(c.Database.Mssql.Password, "MSSQL_PASSWORD", "")

	c.Database.MySql.Name = getConfigValue(c.Database.MySql.Name, "MYSQL_DB_NAME", "multipost")
	c.Database.MySql.Host = getConfigValue(c.Database.MySql.Host, "MYSQL_HOST", "localhost")
	c.Database.MySql.Port = getConfigValue(c.Database.MySql.Port, "MYSQL_PORT", "3306")
	c.Database.MySql.User = getConfigValue(c.Database.MySql.User, "MYSQL_USER", "root")
	c.Database.MySql.Password = getConfigValue(c.Database.MySql.Password, "MYSQL_PASSWORD", "")

	c.Database.Mongo.Name = getConfigValue(c.Database.Mongo.Name, "MONGO_DB_NAME", "multipost")
	c.Database.Mongo.Host = getConfigValue(c.Database.Mongo.Host, "MONGO_HOST", "localhost")
	c.Database.Mongo.Port = getConfigValue(c.Database.Mongo.Port, "MONGO_PORT", "27017")
	c.Database.Mongo.User = getConfigValue(c.Database.Mongo.User, "MONGO_USER", "")
	c.Database.Mongo.Password = getConfigValue(c.Database.Mongo.Password, "MONGO_PASSWORD", "")

	if c.Database.Pool.MaxOpenConns <= 0 {
		c.Database.Pool.MaxOpenConns = 20
	}
	if c.Database.Pool.MaxIdleConns <= 0 {
		c.Database.Pool.MaxIdleConns = 10
	}
	if c.Database.Pool.ConnMaxIdleTime <= 0 {
		c.Database.Pool.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Database.Pool.ConnMaxLifetime <= 0 {
		c.Database.Pool.ConnMaxLifetime = 30 * time.Minute
	}

	c.RedisClient.Host = getConfigValue(c.RedisClient.Host, "REDIS_HOST", "localhost")
	c.RedisClient.Port = getConfigValue(c.RedisClient.Port, "REDIS_PORT", "6379")
	c.RedisClient.Password = getConfigValue(c.RedisClient.Password, "REDIS_PASSWORD", "")
	if c.RedisClient.Prefix == "" {
		c.RedisClient.Prefix = "multipost:"
	}

	c.Pubsub.ProjectID = getConfigValue(c.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	if c.Pubsub.Topic == "" {
		c.Pubsub.Topic = "publish-outcomes"
	}
	c.ServiceBus.Namespace = getConfigValue(c.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
	if c.ServiceBus.Queue == "" {
		c.ServiceBus.Queue = "publish-outcomes"
	}
}

func initStorage(c *Config) {
	c.Storage.CredentialBackend = strings.ToLower(getConfigValue(c.Storage.CredentialBackend, "CREDENTIAL_BACKEND", "file"))
	c.Storage.OutcomeBackend = strings.ToLower(getConfigValue(c.Storage.OutcomeBackend, "OUTCOME_BACKEND", "file"))
	c.Storage.CredentialDir = getConfigValue(c.Storage.CredentialDir, "CREDENTIAL_DIR", "credentials")
	c.Storage.OutcomeDir = getConfigValue(c.Storage.OutcomeDir, "OUTCOME_DIR", "outcomes")
	c.Storage.BackupDir = getConfigValue(c.Storage.BackupDir, "BACKUP_DIR", "credentials/backups")
	c.Storage.BackupBucket = getConfigValue(c.Storage.BackupBucket, "BACKUP_BUCKET", "")
	c.Storage.S3Region = getConfigValue(c.Storage.S3Region, "S3_REGION", "us-east-1")
	c.Storage.S3Endpoint = getConfigValue(c.Storage.S3Endpoint, "S3_ENDPOINT", "")
	c.Storage.S3AccessKey = getConfigValue(c.Storage.S3AccessKey, "S3_ACCESS_KEY", "")
	c.Storage.S3SecretKey = getConfigValue(c.Storage.S3SecretKey, "S3_SECRET_KEY", "")
}

func initPublish(c *Config) {
	if len(c.Publish.Platforms) == 0 {
		c.Publish.Platforms = []string{"youtube", "facebook", "tiktok"}
	}
	if c.Publish.PlatformTimeout <= 0 {
		c.Publish.PlatformTimeout = 10 * time.Minute
	}
	if c.Publish.RefreshMargin <= 0 {
		c.Publish.RefreshMargin = 5 * time.Minute
	}
	if c.Publish.RefreshTimeout <= 0 {
		c.Publish.RefreshTimeout = time.Minute
	}
	if c.Publish.HTTPTimeout <= 0 {
		c.Publish.HTTPTimeout = 10 * time.Minute
	}
	if c.Publish.Retry.MaxAttempts <= 0 {
		c.Publish.Retry.MaxAttempts = 3
	}
	if c.Publish.Retry.InitialDelay <= 0 {
		c.Publish.Retry.InitialDelay = time.Second
	}
	if c.Publish.Retry.MaxDelay <= 0 {
		c.Publish.Retry.MaxDelay = 30 * time.Second
	}
	if c.Publish.Retry.Multiplier < 1 {
		c.Publish.Retry.Multiplier = 2
	}
}

func initPlatforms(c *Config) {
	scheme := "http"
	if c.App.TLSEnabled {
		scheme = "https"
	}
	callback := func(p string) string {
		return fmt.Sprintf("%s://localhost:%d/auth/%s/callback", scheme, c.App.Port, p)
	}

	c.YouTube.ClientID = getConfigValue(c.YouTube.ClientID, "YOUTUBE_CLIENT_ID", "")
	c.YouTube.ClientSecret = getConfigValue(c.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET", "")
	c.YouTube.RedirectURI = getConfigValue(c.YouTube.RedirectURI, "YOUTUBE_REDIRECT_URL", callback("youtube"))
	c.YouTube.CategoryID = getConfigValue(c.YouTube.CategoryID, "YOUTUBE_CATEGORY_ID", "22")
	c.YouTube.PrivacyStatus = getConfigValue(c.YouTube.PrivacyStatus, "YOUTUBE_PRIVACY_STATUS", "private")

	c.Facebook.ClientID = getConfigValue(c.Facebook.ClientID, "FACEBOOK_CLIENT_ID", "")
	c.Facebook.ClientSecret = getConfigValue(c.Facebook.ClientSecret, "FACEBOOK_CLIENT_SECRET", "")
	c.Facebook.RedirectURI = getConfigValue(c.Facebook.RedirectURI, "FACEBOOK_REDIRECT_URL", callback("facebook"))
	c.Facebook.GraphVersion = getConfigValue(c.Facebook.GraphVersion, "FACEBOOK_GRAPH_VERSION", "v23.0")
	c.Facebook.PageID = getConfigValue(c.Facebook.PageID, "FACEBOOK_PAGE_ID", "")

	c.TikTok.ClientKey = getConfigValue(c.TikTok.ClientKey, "TIKTOK_CLIENT_KEY", "")
	c.TikTok.ClientSecret = getConfigValue(c.TikTok.ClientSecret, "TIKTOK_CLIENT_SECRET", "")
	c.TikTok.RedirectURI = getConfigValue(c.TikTok.RedirectURI, "TIKTOK_REDIRECT_URL", callback("tiktok"))
	c.TikTok.PrivacyLevel = getConfigValue(c.TikTok.PrivacyLevel, "TIKTOK_PRIVACY_LEVEL", "SELF_ONLY")

	if c.App.TLSEnabled {
		c.YouTube.RedirectURI = toHTTPSCallback(c.YouTube.RedirectURI)
		c.Facebook.RedirectURI = toHTTPSCallback(c.Facebook.RedirectURI)
		c.TikTok.RedirectURI = toHTTPSCallback(c.TikTok.RedirectURI)
	}
}

func initContentGen(c *Config) {
	c.ContentGen.APIKey = getConfigValue(c.ContentGen.APIKey, "GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	if v := os.Getenv("CONTENT_GEN_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ContentGen.Enabled = b
		}
	}
	if c.ContentGen.Model == "" {
		c.ContentGen.Model = "gemini-2.0-flash"
	}
	if c.ContentGen.Timeout <= 0 {
		c.ContentGen.Timeout = 20 * time.Second
	}
}

func toHTTPSCallback(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// getConfigValue prefers the environment, then a non-placeholder config value, then def.
func getConfigValue(configValue, envKey, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
