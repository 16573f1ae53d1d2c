package internal

import (
	"chat-relay/domain"
	"strings"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=3001"`
	GrpcPort int    `env:"GRPC_PORT,default=3002"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=data/badger"`
	SqliteFilepath string `env:"SQLITE_FILEPATH,default=data/chat.db"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=data/bluge"`
	UploadDir      string `env:"UPLOAD_DIR,default=uploads"`
	PublicURL      string `env:"PUBLIC_URL"`

	HistoryLimit     int    `env:"HISTORY_LIMIT,default=50"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
	SeedRooms        string `env:"SEED_ROOMS"`
	MaxMessageLength int    `env:"MAX_MESSAGE_LENGTH,default=4096"`
	MaxUploadBytes   int64  `env:"MAX_UPLOAD_BYTES,default=10485760"`
	TypingScope      string `env:"TYPING_SCOPE,default=global"`
	UploadScope      string `env:"UPLOAD_BROADCAST_SCOPE,default=room"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=1m"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=25s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Rooms lists the rooms created at startup, a comma separated SEED_ROOMS overriding the defaults.
func (c Config) Rooms() []string {
	if strings.TrimSpace(c.SeedRooms) == "" {
		return domain.DefaultSeedRooms
	}
	return domain.ParseRooms(c.SeedRooms)
}
