package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/iWorld-y/post_digest/app/post_digest/internal/storage"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/config"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/engine"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/llm/factory"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/logger"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/snapshot"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig 加载配置并初始化日志，只执行一次
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			c.configErr = fmt.Errorf("无法加载配置: %w", err)
			return
		}
		if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File, cfg.Log.Format); err != nil {
			c.configErr = fmt.Errorf("无法初始化日志: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openJournal 配置了数据库时打开运行记录，连接失败只记录日志
func (c *commandContext) openJournal(cfg *config.Config) *storage.Storage {
	if cfg.DB.DSN == "" {
		logger.Log.Debug("未配置数据库，跳过运行记录")
		return nil
	}
	store, err := storage.NewStorage(cfg.DB.DSN)
	if err != nil {
		logger.Log.Errorf("无法连接数据库: %v，本次运行不做记录", err)
		return nil
	}
	logger.Log.Info("已成功连接到数据库")
	return store
}

// newEngine 按配置组装引擎，needGenerator 为 false 时不初始化 LLM
func (c *commandContext) newEngine(ctx context.Context, cfg *config.Config, needGenerator bool, opts ...engine.Option) (*engine.Engine, error) {
	var generator engine.Generator
	if needGenerator {
		client, err := factory.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("LLM 初始化失败: %w", err)
		}
		generator = client
	}

	base := []engine.Option{
		engine.WithBatchSize(cfg.Batch.Size),
		engine.WithBatchDelay(cfg.BatchDelay()),
		engine.WithMinContentLength(cfg.Batch.MinContentLength),
	}
	store := snapshot.NewStore(cfg.Snapshot.Dir)
	return engine.NewEngine(store, generator, append(base, opts...)...), nil
}

// errRunFailed 所有尝试都失败，摘要已经打印过
var errRunFailed = errors.New("all generations failed")
