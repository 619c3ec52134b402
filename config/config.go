package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type EmailConfig struct {
	APIURL string
	APIKey string
	From   string
}

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	MongoURI    string
	DBName      string
	JWTSecret   string
	CORSOrigins []string

	// MinorUnitFactor converts gateway minor units (kobo, cents) to the major unit.
	MinorUnitFactor int64

	Paystack PaystackConfig
	Kafka    KafkaConfig
	Email    EmailConfig

	MongoClient *mongo.Client
}

// LoadConfig reads .env in local mode, then the process environment.
func LoadConfig() *Config {
	env := GetEnv("APP_ENV", "local")
	if env == "local" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file loaded:", err)
		}
	}

	cfg := &Config{
		Port:        GetEnv("PORT", "8080"),
		Env:         env,
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		MongoURI:    GetEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:      GetEnv("DB_NAME", "membership_portal"),
		JWTSecret:   GetEnv("JWT_SECRET", ""),
		CORSOrigins: GetEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		MinorUnitFactor: GetEnvAsInt64("MINOR_UNIT_FACTOR", 100),

		Paystack: PaystackConfig{
			SecretKey: GetEnv("PAYSTACK_SECRET_KEY", ""),
			BaseURL:   strings.TrimRight(GetEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
			Timeout:   GetEnvAsDuration("PAYSTACK_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: GetEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   GetEnv("KAFKA_TOPIC", "payment.settled"),
		},
		Email: EmailConfig{
			APIURL: GetEnv("ZEPTO_API_URL", ""),
			APIKey: GetEnv("ZEPTO_API_KEY", ""),
			From:   GetEnv("EMAIL_FROM", ""),
		},
	}

	if cfg.MinorUnitFactor <= 0 {
		log.Printf("Warning: MINOR_UNIT_FACTOR must be positive, using 100")
		cfg.MinorUnitFactor = 100
	}

	return cfg
}

// ConnectDB dials MongoDB once and keeps the client on cfg for the process lifetime.
// Ledger transactions need a replica set or sharded cluster.
func ConnectDB(ctx context.Context, cfg *Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping mongo: %w", err)
	}

	cfg.MongoClient = client
	return nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		log.Printf("Warning: Invalid int64 value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsSlice splits a comma separated value, dropping empty items.
func GetEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
