package global

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"PPGate/data/database/mgo/mongoutil"
	"PPGate/service/chat"
	"PPGate/service/events"
	"PPGate/service/storage/redis"
	"PPGate/tools/decode"
	"PPGate/tools/errs"
)

const EnvPrefix = "PPGATE_"

type HTTPConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	ClientURL string `mapstructure:"client_url" yaml:"client_url"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type GatewayConfig struct {
	ID           string        `mapstructure:"id" yaml:"id"`
	NodeID       int64         `mapstructure:"node_id" yaml:"node_id"` // snowflake node
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	SendQueue    int           `mapstructure:"send_queue" yaml:"send_queue"`
	InboxSize    int           `mapstructure:"inbox_size" yaml:"inbox_size"`
	WriteWait    time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	MaxMessage   int64         `mapstructure:"max_message" yaml:"max_message"`
	RouteTimeout time.Duration `mapstructure:"route_timeout" yaml:"route_timeout"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CookieName string        `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// StoreConfig picks a driver per store.
type StoreConfig struct {
	Messages string `mapstructure:"messages" yaml:"messages"` // memory|mongo|redis|postgres
	Users    string `mapstructure:"users" yaml:"users"`       // memory|mongo|postgres
	Objects  string `mapstructure:"objects" yaml:"objects"`   // memory|gridfs|disk
}

type PostgresConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type ObjectsConfig struct {
	Dir    string `mapstructure:"dir" yaml:"dir"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver" yaml:"driver"` // none|nats|kafka
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	QueueSize     int    `mapstructure:"queue_size" yaml:"queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type AppConfig struct {
	HTTP     HTTPConfig         `mapstructure:"http" yaml:"http"`
	GRPC     GRPCConfig         `mapstructure:"grpc" yaml:"grpc"`
	Gateway  GatewayConfig      `mapstructure:"gateway" yaml:"gateway"`
	Auth     AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Store    StoreConfig        `mapstructure:"store" yaml:"store"`
	Mongo    mongoutil.Config   `mapstructure:"mongo" yaml:"mongo"`
	Redis    redis.Config       `mapstructure:"redis" yaml:"redis"`
	Postgres PostgresConfig     `mapstructure:"postgres" yaml:"postgres"`
	Objects  ObjectsConfig      `mapstructure:"objects" yaml:"objects"`
	Events   EventsConfig       `mapstructure:"events" yaml:"events"`
	Nats     events.NatsConfig  `mapstructure:"nats" yaml:"nats"`
	Kafka    events.KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
	Log      LogConfig          `mapstructure:"log" yaml:"log"`
}

// Default is a configuration that runs entirely in memory.
func Default() AppConfig {
	return AppConfig{
		HTTP: HTTPConfig{Addr: ":4040", ClientURL: "http://localhost:5173"},
		GRPC: GRPCConfig{Addr: ":50052"},
		Gateway: GatewayConfig{
			ID:           "gateway-1",
			NodeID:       100,
			PingInterval: chat.DefaultPingInterval,
			PongTimeout:  chat.DefaultPongTimeout,
			SendQueue:    256,
			InboxSize:    64,
			WriteWait:    10 * time.Second,
			MaxMessage:   10 << 20,
			RouteTimeout: 30 * time.Second,
		},
		Auth:    AuthConfig{TTL: 7 * 24 * time.Hour, CookieName: "token"},
		Store:   StoreConfig{Messages: "memory", Users: "memory", Objects: "disk"},
		Mongo:   mongoutil.Config{Database: "ppgate"},
		Redis:   redis.Config{Addr: "127.0.0.1:6379"},
		Objects: ObjectsConfig{Dir: "uploads", Bucket: "attachments"},
		Events:  EventsConfig{Driver: "none", SubjectPrefix: "ppgate", QueueSize: 1024},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (optional), then the environment.
func Load(path string) (*AppConfig, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		data = b
	}
	return Parse(data, os.Environ())
}

// Parse applies a YAML document and KEY=VALUE environment entries on top of
// Default and validates the result.
func Parse(data []byte, environ []string) (*AppConfig, error) {
	cfg := Default()
	raw := map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errs.ErrArgs.Cause(err, "config", "yaml")
		}
	}
	applyEnv(raw, environ)
	if err := decode.Map(raw, &cfg); err != nil {
		return nil, errs.ErrArgs.Cause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv maps PPGATE_SECTION_KEY=value to raw[section][key]. GATEWAY_ID is
// honoured as gateway.id.
func applyEnv(raw map[string]any, environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if k == "GATEWAY_ID" {
			setKey(raw, "gateway", "id", v)
			continue
		}
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "_")
		if !ok || section == "nacos" {
			continue
		}
		setKey(raw, section, key, v)
	}
}

func setKey(raw map[string]any, section, key string, v any) {
	m, ok := raw[section].(map[string]any)
	if !ok {
		m = map[string]any{}
		raw[section] = m
	}
	m[key] = v
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (c *AppConfig) Validate() error {
	if c.HTTP.Addr == "" {
		return errs.ErrArgs.WrapMsg("http.addr is required")
	}
	if c.Gateway.PongTimeout >= c.Gateway.PingInterval {
		return errs.ErrArgs.WrapMsg("gateway.pong_timeout must be shorter than gateway.ping_interval")
	}
	if c.Gateway.NodeID < 0 || c.Gateway.NodeID > 1023 {
		return errs.ErrArgs.WrapMsg("gateway.node_id out of range", "node_id", c.Gateway.NodeID)
	}
	if c.Auth.Secret == "" {
		return errs.ErrArgs.WrapMsg("auth.secret is required")
	}
	if !oneOf(c.Store.Messages, "memory", "mongo", "redis", "postgres") {
		return errs.ErrArgs.WrapMsg("unknown store.messages", "driver", c.Store.Messages)
	}
	if !oneOf(c.Store.Users, "memory", "mongo", "postgres") {
		return errs.ErrArgs.WrapMsg("unknown store.users", "driver", c.Store.Users)
	}
	if !oneOf(c.Store.Objects, "memory", "gridfs", "disk") {
		return errs.ErrArgs.WrapMsg("unknown store.objects", "driver", c.Store.Objects)
	}
	if !oneOf(c.Events.Driver, "none", "nats", "kafka") {
		return errs.ErrArgs.WrapMsg("unknown events.driver", "driver", c.Events.Driver)
	}
	return nil
}

// ChatOptions projects the gateway section onto the chat server options.
func (c *AppConfig) ChatOptions() chat.Options {
	var origins []string
	if c.HTTP.ClientURL != "" {
		origins = []string{c.HTTP.ClientURL}
	}
	return chat.Options{
		GatewayID:      c.Gateway.ID,
		PingInterval:   c.Gateway.PingInterval,
		PongTimeout:    c.Gateway.PongTimeout,
		SendQueue:      c.Gateway.SendQueue,
		InboxSize:      c.Gateway.InboxSize,
		WriteWait:      c.Gateway.WriteWait,
		MaxMessageSize: c.Gateway.MaxMessage,
		CookieName:     c.Auth.CookieName,
		RouteTimeout:   c.Gateway.RouteTimeout,
		AllowedOrigins: origins,
	}
}
