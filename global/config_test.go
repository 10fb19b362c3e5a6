package global

import (
	"context"
	"errors"
	"testing"
	"time"

	"PPGate/tools/errs"
)

func TestParseDefaultsNeedSecret(t *testing.T) {
	_, err := Parse(nil, nil)
	if !errors.Is(err, errs.ErrArgs) {
		t.Fatalf("err = %v", err)
	}
	cfg, err := Parse(nil, []string{"PPGATE_AUTH_SECRET=s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":4040" || cfg.Gateway.PingInterval != 5*time.Second || cfg.Gateway.PongTimeout != time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Store.Messages != "memory" || cfg.Auth.CookieName != "token" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestParseYAMLAndEnv(t *testing.T) {
	doc := []byte(`
http:
  addr: ":9000"
  client_url: "https://chat.example"
gateway:
  id: gw-yaml
  ping_interval: 10s
  pong_timeout: 2s
  max_message: 2MiB
auth:
  secret: from-yaml
  ttl: 24h
store:
  messages: redis
redis:
  addr: "redis:6379"
  db: 2
nats:
  servers: ["nats://a:4222", "nats://b:4222"]
`)
	env := []string{
		"GATEWAY_ID=gw-env",
		"PPGATE_GATEWAY_SEND_QUEUE=32",
		"PPGATE_KAFKA_BROKERS=k1:9092, k2:9092",
		"PPGATE_NACOS_ADDR=ignored:8848",
		"UNRELATED=1",
	}
	cfg, err := Parse(doc, env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.HTTP.ClientURL != "https://chat.example" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Gateway.ID != "gw-env" || cfg.Gateway.SendQueue != 32 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.PingInterval != 10*time.Second || cfg.Gateway.MaxMessage != 2<<20 {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Auth.TTL != 24*time.Hour || cfg.Auth.Secret != "from-yaml" {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if len(cfg.Nats.Servers) != 2 || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("nats=%v kafka=%v", cfg.Nats.Servers, cfg.Kafka.Brokers)
	}

	opts := cfg.ChatOptions()
	if opts.GatewayID != "gw-env" || opts.MaxMessageSize != 2<<20 || len(opts.AllowedOrigins) != 1 {
		t.Fatalf("chat options = %+v", opts)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"timeout not below interval": "auth: {secret: x}\ngateway: {ping_interval: 1s, pong_timeout: 1s}",
		"unknown message store":      "auth: {secret: x}\nstore: {messages: cassandra}",
		"unknown events driver":      "auth: {secret: x}\nevents: {driver: sqs}",
		"bad yaml":                   "auth: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), nil); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func TestBuildInMemory(t *testing.T) {
	cfg, err := Parse([]byte("auth: {secret: x}\nstore: {objects: memory}"), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close(context.Background())
	if res.Messages == nil || res.Users == nil || res.Objects == nil || res.Events == nil || res.Verifier == nil {
		t.Fatalf("resources = %+v", res)
	}
}
