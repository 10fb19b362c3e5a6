package nacos

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/tools/errs"
)

const EnvPrefix = "PPGATE_NACOS_"

// Options 描述远程配置的位置
type Options struct {
	Addr      string // host:port
	Namespace string
	Username  string
	Password  string
	DataID    string
	Group     string
	TimeoutMs uint64
	CacheDir  string
	LogDir    string
}

// OptionsFromEnv reads PPGATE_NACOS_* entries. ok is false when no address
// is configured, meaning Nacos is not in use.
func OptionsFromEnv(environ []string) (opts Options, ok bool) {
	opts = Options{
		Namespace: "public",
		DataID:    "ppgate.yaml",
		Group:     "DEFAULT_GROUP",
		TimeoutMs: 5000,
		CacheDir:  "nacos/cache",
		LogDir:    "nacos/log",
	}
	for _, kv := range environ {
		k, v, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		switch strings.TrimPrefix(k, EnvPrefix) {
		case "ADDR":
			opts.Addr = v
		case "NAMESPACE":
			opts.Namespace = v
		case "USERNAME":
			opts.Username = v
		case "PASSWORD":
			opts.Password = v
		case "DATA_ID":
			opts.DataID = v
		case "GROUP":
			opts.Group = v
		}
	}
	return opts, opts.Addr != ""
}

func (o Options) serverConfigs() ([]constant.ServerConfig, error) {
	var out []constant.ServerConfig
	for _, addr := range strings.Split(o.Addr, ",") {
		host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
		if err != nil {
			return nil, errs.ErrArgs.Cause(err, "nacos addr", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, errs.ErrArgs.Cause(err, "nacos port", portStr)
		}
		out = append(out, *constant.NewServerConfig(host, port))
	}
	return out, nil
}

func (o Options) clientConfig() *constant.ClientConfig {
	return constant.NewClientConfig(
		constant.WithNamespaceId(o.Namespace),
		constant.WithTimeoutMs(o.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir(o.CacheDir),
		constant.WithLogDir(o.LogDir),
		constant.WithUsername(o.Username),
		constant.WithPassword(o.Password),
	)
}

// Source is one Nacos config document.
type Source struct {
	opts Options
	cli  config_client.IConfigClient

	mu      sync.RWMutex
	current string
}

func NewSource(opts Options) (*Source, error) {
	servers, err := opts.serverConfigs()
	if err != nil {
		return nil, err
	}
	cli, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  opts.clientConfig(),
		ServerConfigs: servers,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "addr", opts.Addr)
	}
	return &Source{opts: opts, cli: cli}, nil
}

// Fetch reads the document once.
func (s *Source) Fetch() (string, error) {
	content, err := s.cli.GetConfig(vo.ConfigParam{DataId: s.opts.DataID, Group: s.opts.Group})
	if err != nil {
		return "", errs.WrapMsg(err, "nacos get config", "dataId", s.opts.DataID, "group", s.opts.Group)
	}
	s.set(content)
	return content, nil
}

// Watch invokes onChange with every new revision of the document.
func (s *Source) Watch(onChange func(content string)) error {
	err := s.cli.ListenConfig(vo.ConfigParam{
		DataId: s.opts.DataID,
		Group:  s.opts.Group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Info("nacos config changed", zap.String("dataId", dataId), zap.String("group", group))
			s.set(data)
			onChange(data)
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos listen config", "dataId", s.opts.DataID)
	}
	return nil
}

func (s *Source) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Source) set(content string) {
	s.mu.Lock()
	s.current = content
	s.mu.Unlock()
}

func (s *Source) Close() {
	_ = s.cli.CancelListenConfig(vo.ConfigParam{DataId: s.opts.DataID, Group: s.opts.Group})
	s.cli.CloseClient()
}
