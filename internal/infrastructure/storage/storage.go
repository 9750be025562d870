package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"redpacket/internal/config"
)

// LocalChannelID 本地兜底通道的固定标识
const LocalChannelID = "local"

var ErrChannelNotFound = errors.New("存储通道不存在")

// ObjectStorage 对象存储能力
// 引擎只消费这四个操作，不关心具体后端
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type channel struct {
	id       string
	priority int
	backend  ObjectStorage
}

// Channels 多通道存储选择器
// 上传按 priority 从高到低尝试，远端通道全部失败时回退本地通道；
// 删除/下载按上传时记录的通道ID路由
type Channels struct {
	remotes []channel
	local   ObjectStorage
}

// BuildChannels 根据配置构建存储通道集合
func BuildChannels(cfg *config.StorageConfig) (*Channels, error) {
	local, err := NewLocalStorage(cfg.Local.Dir, cfg.Local.BaseURL)
	if err != nil {
		return nil, err
	}

	c := &Channels{local: local}
	for _, item := range cfg.Channels {
		var backend ObjectStorage
		switch item.Provider {
		case "s3":
			backend = NewS3Storage(item)
		case "cos":
			backend = NewCosStorage(item)
		default:
			return nil, fmt.Errorf("未知存储通道类型: %s", item.Provider)
		}
		c.remotes = append(c.remotes, channel{
			id:       item.ID,
			priority: item.Priority,
			backend:  backend,
		})
	}

	sort.SliceStable(c.remotes, func(i, j int) bool {
		return c.remotes[i].priority > c.remotes[j].priority
	})
	return c, nil
}

// Upload 依优先级尝试上传，返回实际写入的通道ID与访问地址
func (c *Channels) Upload(ctx context.Context, key string, data []byte, contentType string) (string, string, error) {
	for _, ch := range c.remotes {
		url, err := ch.backend.Upload(ctx, key, data, contentType)
		if err == nil {
			return ch.id, url, nil
		}
		log.Printf("[Storage] 通道上传失败，尝试下一通道: channel=%s, key=%s, err=%v", ch.id, key, err)
	}

	url, err := c.local.Upload(ctx, key, data, contentType)
	if err != nil {
		return "", "", fmt.Errorf("本地存储上传失败: %w", err)
	}
	return LocalChannelID, url, nil
}

// Get 按通道ID取后端，空ID或未知ID回落到本地通道
func (c *Channels) Get(channelID string) ObjectStorage {
	for _, ch := range c.remotes {
		if ch.id == channelID {
			return ch.backend
		}
	}
	return c.local
}

// Delete 删除指定通道上的对象
func (c *Channels) Delete(ctx context.Context, channelID, key string) error {
	return c.Get(channelID).Delete(ctx, key)
}
