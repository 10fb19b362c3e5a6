package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPGate/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

type KafkaConfig struct {
	Brokers             []string `mapstructure:"brokers"`
	Version             string   `mapstructure:"version"`
	ProducerRetries     int      `mapstructure:"producer_retries"`
	ProducerCompression string   `mapstructure:"producer_compression"`

	// topics are created on start when missing
	AutoCreateTopics  bool  `mapstructure:"auto_create_topics"`
	Partitions        int32 `mapstructure:"partitions"`
	ReplicationFactor int16 `mapstructure:"replication_factor"`
}

func BuildBaseConfig(c KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, errs.WrapMsg(err, "kafka version", "version", c.Version)
		}
		cfg.Version = v
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	// key decides the partition, so events of one user stay ordered
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg, nil
}

// KafkaPublisher writes each event to topic <prefix>.<topic> with a sync producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewKafkaPublisher(c KafkaConfig, prefix string) (*KafkaPublisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("kafka brokers missing")
	}
	cfg, err := BuildBaseConfig(c)
	if err != nil {
		return nil, err
	}
	if c.AutoCreateTopics {
		if err := ensureTopics(c, cfg, prefix); err != nil {
			return nil, err
		}
	}
	p, err := sarama.NewSyncProducer(c.Brokers, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer", "brokers", c.Brokers)
	}
	glog.Infof("[Kafka] producer ready brokers=%v", c.Brokers)
	return &KafkaPublisher{producer: p, prefix: prefix}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: subject(p.prefix, topic),
		Value: sarama.ByteEncoder(payload),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		glog.Errorf("[Kafka][ERR] send topic=%s err=%v", msg.Topic, err)
		return errs.Wrap(err)
	}
	glog.V(2).Infof("[Kafka] sent topic=%s partition=%d offset=%d", msg.Topic, partition, offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// ensureTopics creates the event topics that do not exist yet.
func ensureTopics(c KafkaConfig, cfg *sarama.Config, prefix string) error {
	admin, err := sarama.NewClusterAdmin(c.Brokers, cfg)
	if err != nil {
		return errs.WrapMsg(err, "kafka admin", "brokers", c.Brokers)
	}
	defer admin.Close()

	detail := topicDetail(c)
	for _, t := range []string{TopicMessageCreated, TopicPresenceChanged} {
		name := subject(prefix, t)
		descs, err := admin.DescribeTopics([]string{name})
		if err == nil && len(descs) == 1 && descs[0].Err == sarama.ErrNoError {
			glog.Infof("[Topic] exists: %s (partitions=%d)", name, len(descs[0].Partitions))
			continue
		}
		if err := admin.CreateTopic(name, detail, false); err != nil {
			var te *sarama.TopicError
			if errors.Is(err, sarama.ErrTopicAlreadyExists) || (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) {
				glog.Infof("[Topic] exists (race): %s", name)
				continue
			}
			return errs.WrapMsg(err, "create topic", "topic", name)
		}
		glog.Infof("[Topic] created: %s (partitions=%d, rf=%d)", name, detail.NumPartitions, detail.ReplicationFactor)
	}
	return nil
}

func topicDetail(c KafkaConfig) *sarama.TopicDetail {
	partitions, rf := c.Partitions, c.ReplicationFactor
	if partitions <= 0 {
		partitions = 3
	}
	if rf <= 0 {
		rf = 1
	}
	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}
	return &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: rf,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 strPtr("delete"),
			"min.insync.replicas":            strPtr(minISR),
			"unclean.leader.election.enable": strPtr("false"),
			"compression.type":               strPtr("producer"),
		},
	}
}

func strPtr(s string) *string { return &s }
