package internal

import (
	"fmt"
	"time"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	Host           string `env:"HOST,required=true"`
	Port           int    `env:"PORT,required=true"`
	GrpcPort       int    `env:"GRPC_PORT,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	UploadDir      string `env:"UPLOAD_DIR,required=true"`
	MaxUploadSize  int64  `env:"MAX_UPLOAD_SIZE,default=10485760"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	HeartbeatGrace    time.Duration `env:"HEARTBEAT_GRACE,default=10s"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	MaxAuthAttempts   int           `env:"MAX_AUTH_ATTEMPTS,default=3"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PersistTimeout    time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,required=true"`
	ReadLimit         int64         `env:"READ_LIMIT,default=65536"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`

	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`
	LatencyThreshold     time.Duration `env:"LATENCY_THRESHOLD,default=500ms"`

	AutoReplyEnabled bool   `env:"AUTO_REPLY_ENABLED,default=false"`
	CensorEnabled    bool   `env:"CENSOR_ENABLED,default=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// Validate catches values the env decoder accepts but the runtime cannot work with.
func (c Config) Validate() error {
	switch {
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.MaxAuthAttempts <= 0:
		return fmt.Errorf("MAX_AUTH_ATTEMPTS must be positive, got %d", c.MaxAuthAttempts)
	case c.HeartbeatInterval <= 0 || c.HeartbeatGrace <= 0:
		return fmt.Errorf("HEARTBEAT_INTERVAL and HEARTBEAT_GRACE must be positive")
	case c.HandshakeTimeout <= 0:
		return fmt.Errorf("HANDSHAKE_TIMEOUT must be positive, got %s", c.HandshakeTimeout)
	case c.BufferSize <= 0:
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	case len(c.JwtSecret) < 16:
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return nil
}
