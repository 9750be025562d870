package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appconfig "redpacket/internal/config"

	"github.com/tencentyun/cos-go-sdk-v5"
)

var _ ObjectStorage = (*CosStorage)(nil)

// CosStorage 腾讯云 COS 对象存储通道
type CosStorage struct {
	client    *cos.Client
	secretID  string
	secretKey string
}

func NewCosStorage(conf appconfig.StorageChannelConfig) *CosStorage {
	bucketURL := conf.Endpoint
	if bucketURL == "" {
		bucketURL = fmt.Sprintf("https://%s.cos.%s.myqcloud.com", conf.Bucket, conf.Region)
	}
	u, _ := url.Parse(bucketURL)

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  conf.AccessKey,
			SecretKey: conf.SecretKey,
		},
	})

	return &CosStorage{
		client:    client,
		secretID:  conf.AccessKey,
		secretKey: conf.SecretKey,
	}
}

func (s *CosStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	_, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), opt)
	if err != nil {
		return "", err
	}
	return s.client.Object.GetObjectURL(key).String(), nil
}

func (s *CosStorage) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (s *CosStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.Object.Delete(ctx, key)
	return err
}

func (s *CosStorage) PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.Object.GetPresignedURL(ctx, http.MethodGet, key, s.secretID, s.secretKey, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
