package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"
)

// ErrTooLarge 下载内容超过上限
var ErrTooLarge = errors.New("响应内容超过大小上限")

// Client HTTP客户端包装器，用于拉取用户提交的媒体文件
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
	retries    int
	maxBytes   int64
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRetries 设置重试次数
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		c.retries = retries
	}
}

// WithMaxBytes 设置下载大小上限
func WithMaxBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBytes = n
	}
}

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient 创建HTTP客户端
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		timeout:    60 * time.Second,
		headers:    make(map[string]string),
		maxBytes:   25 << 20,
	}
	for _, opt := range opts {
		opt(client)
	}
	if _, ok := client.headers["User-Agent"]; !ok {
		client.headers["User-Agent"] = "aistudio/1.0"
	}
	return client
}

// Do 执行HTTP请求，5xx 与网络错误按配置重试
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	var (
		resp *http.Response
		err  error
	)
	for i := 0; i <= c.retries; i++ {
		resp, err = c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if i == c.retries {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return resp, err
}

// Get 发送GET请求
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建GET请求失败: %w", err)
	}
	return c.Do(ctx, req)
}

// File 下载结果
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Download 下载文件，超过大小上限返回 ErrTooLarge
func (c *Client) Download(ctx context.Context, url string) (*File, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载返回错误状态: %d", resp.StatusCode)
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, ErrTooLarge
	}

	reader := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	return &File{
		Name:        fileName(resp.Request.URL.Path, contentType),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func fileName(urlPath, contentType string) string {
	name := path.Base(urlPath)
	if name != "" && name != "/" && name != "." && strings.Contains(name, ".") {
		return name
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			return "file" + exts[0]
		}
	}
	return "file.bin"
}
