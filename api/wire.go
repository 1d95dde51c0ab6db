package api

import (
	"context"
	"errors"
	"fmt"

	"aistudio/internal/agent"
	"aistudio/internal/agent/prompt"
	"aistudio/internal/agent/runtime"
	"aistudio/internal/ai"
	openaiClient "aistudio/internal/ai/openai"
	"aistudio/internal/config"
	"aistudio/internal/conversation"
	"aistudio/internal/credits"
	"aistudio/internal/infra"
	"aistudio/internal/infra/queue"
	"aistudio/internal/provider"
	"aistudio/internal/tools"
	"aistudio/internal/tools/builtin"
	"aistudio/internal/worker"
	"aistudio/pkg/aiinterface"
	"aistudio/pkg/httputil"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient
	QueueClient queue.Client
	Inspector   queue.TaskInspector
	Logger      *zap.Logger

	// 积分
	CreditsService *credits.Service
	Pricing        *credits.PricingRepository
	Ledger         *credits.Ledger

	// 对话
	ModelClient   aiinterface.ModelClient
	ToolRegistry  *tools.ToolRegistry
	Conversations *conversation.Store
	AgentService  *agent.Service

	// 异步
	Worker *worker.Server

	ownsRedis bool
}

// ContainerOption 容器选项
type ContainerOption func(*containerOptions)

type containerOptions struct {
	model aiinterface.ModelClient
	rdb   redis.UniversalClient
}

// WithModelClient 使用指定的模型客户端，不再按配置创建
func WithModelClient(m aiinterface.ModelClient) ContainerOption {
	return func(o *containerOptions) { o.model = m }
}

// WithRedisClient 使用已有的 Redis 连接
func WithRedisClient(rdb redis.UniversalClient) ContainerOption {
	return func(o *containerOptions) { o.rdb = rdb }
}

// NewContainer 按配置组装全部组件
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger, opts ...ContainerOption) (*AppContainer, error) {
	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &AppContainer{DB: db, Config: cfg, Logger: log}

	// Redis：定价缓存与扣费锁
	c.RedisClient = o.rdb
	if c.RedisClient == nil && cfg.Redis.Enabled {
		rdb, err := infra.InitRedis(&cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		c.RedisClient = rdb
		c.ownsRedis = true
	}

	// 模型与生成服务
	deps, model, err := buildProviders(cfg, o.model, log)
	if err != nil {
		return nil, err
	}
	c.ModelClient = model

	// 积分账本
	c.CreditsService = credits.NewService(db)
	c.Pricing = credits.NewPricingRepository(db, log)
	if cfg.Credits.SeedPricing {
		n, err := c.Pricing.SeedDefaults(ctx)
		if err != nil {
			return nil, fmt.Errorf("写入默认定价失败: %w", err)
		}
		log.Info("默认定价已写入", zap.Int("rules", n))
	}

	var (
		pricing credits.PricingStore = c.Pricing
		locker  credits.UserLocker   = credits.NewLocalLocker()
	)
	if c.RedisClient != nil {
		pricing = credits.NewCachedPricingStore(c.Pricing, c.RedisClient, cfg.Credits.PricingCacheTTL, log)
		locker = credits.NewRedisLocker(c.RedisClient, cfg.Credits.LockTTL)
	}
	// 未配置提供方的工具只会返回失败，不计费
	exempt := append(append([]string(nil), cfg.Credits.ExemptTools...), builtin.Unconfigured(deps)...)
	c.Ledger = credits.NewLedger(c.CreditsService, pricing, credits.LedgerOptions{
		ExemptTools:            exempt,
		DefaultDurationSeconds: cfg.Credits.DefaultDurationSeconds,
		RequirePricing:         cfg.Credits.RequirePricing,
		LockTimeout:            cfg.Credits.LockTimeout,
		Locker:                 locker,
		Logger:                 log.Named("credits"),
	})

	c.ToolRegistry = tools.NewToolRegistry(tools.WithClassTimeouts(cfg.Agent.TextToolTimeout, cfg.Agent.MediaToolTimeout))
	if err := builtin.RegisterAll(c.ToolRegistry, deps); err != nil {
		return nil, err
	}

	dispatcher := runtime.NewDispatcher(c.ToolRegistry, c.Ledger, log.Named("dispatcher"))
	controller := runtime.NewController(model, c.ToolRegistry, dispatcher, runtime.ControllerOptions{
		MaxRounds:   cfg.Agent.MaxRounds,
		TurnTimeout: cfg.Agent.TurnTimeout,
		Request: runtime.RequestOptions{
			Temperature: cfg.AI.OpenAI.Temperature,
			MaxTokens:   cfg.AI.OpenAI.MaxTokens,
		},
		Logger: log.Named("controller"),
	})

	// 异步队列
	var enqueuer agent.TaskEnqueuer
	if cfg.Queue.Enabled {
		if !cfg.Redis.Enabled {
			return nil, errors.New("启用异步队列需要配置 Redis")
		}
		c.QueueClient = queue.NewClient(cfg.Redis, cfg.Queue)
		c.Inspector = queue.NewInspector(cfg.Redis)
		enqueuer = c.QueueClient
	}

	c.Conversations = conversation.NewStore(db)
	c.AgentService = agent.NewService(controller, c.ToolRegistry, c.Conversations, c.Ledger,
		prompt.NewSystemBuilder(cfg.Agent.SystemPrompt),
		agent.ServiceOptions{
			HistoryLimit:       cfg.Agent.HistoryLimit,
			HistoryTokenBudget: cfg.Agent.HistoryTokenBudget,
			MeterModelTokens:   cfg.Agent.MeterModelTokens,
			Counter:            conversation.NewTiktokenCounter(cfg.AI.OpenAI.Model),
			Queue:              enqueuer,
			Logger:             log.Named("agent"),
		},
	)

	if cfg.Queue.Enabled {
		c.Worker = worker.NewServer(cfg.Redis, cfg.Queue, c.AgentService, log.Named("worker"))
	}
	return c, nil
}

// buildProviders 创建模型客户端与生成服务，未配置的服务保持为空
func buildProviders(cfg *config.Config, model aiinterface.ModelClient, log *zap.Logger) (builtin.Deps, aiinterface.ModelClient, error) {
	deps := builtin.Deps{Logger: log.Named("tools")}

	if model == nil {
		oc := cfg.AI.OpenAI
		client, err := ai.NewClient(&ai.ClientConfig{
			Provider:   "openai",
			APIKey:     oc.APIKey,
			BaseURL:    oc.BaseURL,
			OrgID:      oc.OrgID,
			Model:      oc.Model,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return deps, nil, fmt.Errorf("创建模型客户端失败: %w", err)
		}
		model = ai.NewLoggingClient(client, log.Named("model"))

		// 图片理解与语音转写复用同一个 OpenAI 连接
		if raw, ok := client.(*openaiClient.Client); ok {
			fetcher := httputil.NewClient(httputil.WithMaxBytes(cfg.Providers.Speech.MaxFileSize))
			media, err := provider.NewOpenAIMedia(raw.Raw(), cfg.Providers.Vision.Model, cfg.Providers.Speech.Model, fetcher)
			if err == nil {
				deps.Vision = media
				deps.Speech = media
			}
		}
	}
	deps.Model = model

	rep, err := provider.NewReplicateProvider(cfg.Providers.Replicate.APIToken, cfg.Providers.Replicate.Models, log.Named("replicate"))
	switch {
	case err == nil:
		deps.Images = rep
		deps.Videos = rep
		deps.Audio = rep
		deps.Meshes = rep
	case errors.Is(err, provider.ErrNotConfigured):
		log.Warn("未配置 Replicate，媒体生成工具将返回 provider not configured")
	default:
		return deps, nil, err
	}
	return deps, model, nil
}

// Close 释放容器持有的连接
func (c *AppContainer) Close() {
	if c.QueueClient != nil {
		_ = c.QueueClient.Close()
	}
	if c.Inspector != nil {
		_ = c.Inspector.Close()
	}
	if c.ownsRedis && c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
}
