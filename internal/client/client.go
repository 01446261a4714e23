// Package client 教学服务的 HTTP 客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashwinyue/next-tutor/internal/model"
)

// APIError 服务端返回的错误
type APIError struct {
	Status int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Msg)
}

// StartResponse 开始会话的响应
type StartResponse struct {
	Session          *model.TeachingSession `json:"session"`
	Question         string                 `json:"question"`
	ExpandedKeywords []string               `json:"expanded_keywords"`
	Fallback         bool                   `json:"fallback"`
}

// Feedback 单题即时反馈
type Feedback struct {
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback"`
}

// AnswerResponse 提交回答的响应
type AnswerResponse struct {
	SessionID    string    `json:"session_id"`
	TurnIndex    int       `json:"turn_index"`
	Completed    bool      `json:"completed"`
	NextQuestion string    `json:"next_question,omitempty"`
	Feedback     *Feedback `json:"feedback,omitempty"`
}

// Suggestions 推荐的学习主题
type Suggestions struct {
	Topics   []string `json:"topics"`
	Degraded bool     `json:"degraded"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
}

// Client 教学服务客户端，所有请求以 ownerID 身份发出
type Client struct {
	baseURL string
	ownerID string
	http    *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New 创建客户端
func New(baseURL, ownerID string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ownerID: ownerID,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SuggestTopics 根据已上传资料推荐主题，count <= 0 时使用服务端默认值
func (c *Client) SuggestTopics(ctx context.Context, count int) (*Suggestions, error) {
	path := "/api/v1/teaching/topics"
	if count > 0 {
		path += "?count=" + strconv.Itoa(count)
	}
	var out Suggestions
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSession 开始学习会话
func (c *Client) StartSession(ctx context.Context, topic string) (*StartResponse, error) {
	var out StartResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/teaching/sessions", map[string]string{"topic": topic}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer 回答当前问题
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, answer string) (*AnswerResponse, error) {
	var out AnswerResponse
	path := "/api/v1/teaching/sessions/" + url.PathEscape(sessionID) + "/answers"
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"answer": answer}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate 获取会话评估
func (c *Client) Evaluate(ctx context.Context, sessionID string) (*model.EvaluationResult, error) {
	var out model.EvaluationResult
	path := "/api/v1/teaching/sessions/" + url.PathEscape(sessionID) + "/evaluation"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles 列出已上传的资料
func (c *Client) ListFiles(ctx context.Context) ([]*model.UploadedFile, error) {
	var out []*model.UploadedFile
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ingestion/files", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload 上传本地文件并等待处理完成
func (c *Client) Upload(ctx context.Context, path string) (*model.UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out model.UploadedFile
	if err := c.do(ctx, http.MethodPost, "/api/v1/ingestion/upload", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, reader, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", c.ownerID)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(payload))}
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
