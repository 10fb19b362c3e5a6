package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPGate/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsConfig 客户端配置
type NatsConfig struct {
	Servers       []string      `mapstructure:"servers"`
	Name          string        `mapstructure:"name"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// NatsPublisher publishes each event on <prefix>.<topic> over core NATS.
type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNatsPublisher(cfg NatsConfig, prefix string) (*NatsPublisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", cfg.Servers)
	}
	return &NatsPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(subject(p.prefix, topic))
	msg.Data = payload
	if key != "" {
		msg.Header.Set("Key", key)
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return errs.WrapMsg(err, "nats closed")
		}
		return errs.Wrap(err)
	}
	return nil
}

func (p *NatsPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
	return nil
}

func subject(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}
