package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

// TopicsConfig 啟動時確保存在的 topic
type TopicsConfig struct {
	Topics []TopicConfig `yaml:"topics"`
}

type TopicConfig struct {
	Name              string            `yaml:"name"`
	Partitions        int               `yaml:"partitions"`
	ReplicationFactor int               `yaml:"replication_factor"`
	Configs           map[string]string `yaml:"configs"`
}

// LoadTopicsConfig 從 YAML 檔案載入, partitions 與 replication_factor 預設 1
func LoadTopicsConfig(path string) (*TopicsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topics file: %w", err)
	}

	var cfg TopicsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse topics file: %w", err)
	}
	for i := range cfg.Topics {
		t := &cfg.Topics[i]
		if t.Name == "" {
			return nil, fmt.Errorf("topic #%d has no name", i)
		}
		if t.Partitions <= 0 {
			t.Partitions = 1
		}
		if t.ReplicationFactor <= 0 {
			t.ReplicationFactor = 1
		}
	}
	return &cfg, nil
}

func (c *TopicsConfig) Has(name string) bool {
	for _, t := range c.Topics {
		if t.Name == name {
			return true
		}
	}
	return false
}

// dialController 依序嘗試 broker, 建立 topic 必須連到 controller
func dialController(ctx context.Context, brokers []string) (*kafka.Conn, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}

		controller, err := conn.Controller()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
		if addr == broker {
			return conn, nil
		}
		conn.Close()
		conn, err = kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers given")
	}
	return nil, fmt.Errorf("failed to connect to any broker and find controller: %w", lastErr)
}

func missingTopics(existing []kafka.Partition, wanted []TopicConfig) []TopicConfig {
	have := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		have[p.Topic] = struct{}{}
	}
	var missing []TopicConfig
	for _, t := range wanted {
		if _, ok := have[t.Name]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func toKafkaTopic(t TopicConfig) kafka.TopicConfig {
	entries := make([]kafka.ConfigEntry, 0, len(t.Configs))
	for k, v := range t.Configs {
		entries = append(entries, kafka.ConfigEntry{ConfigName: k, ConfigValue: v})
	}
	return kafka.TopicConfig{
		Topic:             t.Name,
		NumPartitions:     t.Partitions,
		ReplicationFactor: t.ReplicationFactor,
		ConfigEntries:     entries,
	}
}

// EnsureTopics 只建立不存在的 topic, 已存在的設定不會被修改
func EnsureTopics(ctx context.Context, brokers []string, cfg *TopicsConfig) error {
	if cfg == nil || len(cfg.Topics) == 0 {
		return nil
	}
	conn, err := dialController(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	missing := missingTopics(partitions, cfg.Topics)
	if len(missing) == 0 {
		return nil
	}
	topics := make([]kafka.TopicConfig, 0, len(missing))
	for _, t := range missing {
		topics = append(topics, toKafkaTopic(t))
	}
	if err := conn.CreateTopics(topics...); err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	return nil
}
