// Package extract 把上传文件转换为纯文本
//
// pdf、docx 使用 eino-ext 解析器；txt、csv 在本包内处理；图片通过 OCR。
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/cloudwego/eino-ext/components/document/parser/docx"
	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")
	ErrTypeMismatch    = errors.New("file content does not match its extension")
)

// Extractor 单一格式的文本提取
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// ExtractorFunc 函数适配器
type ExtractorFunc func(ctx context.Context, r io.Reader) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, r io.Reader) (string, error) {
	return f(ctx, r)
}

// Registry 按扩展名分派提取器
type Registry struct {
	byExt map[string]Extractor
	log   *logger.Logger
}

// Option 配置项
type Option func(*Registry)

// WithOCR 启用图片提取
func WithOCR(ocr OCR) Option {
	return func(r *Registry) {
		img := &imageExtractor{ocr: ocr}
		for _, ext := range []string{"png", "jpg", "jpeg"} {
			r.byExt[ext] = img
		}
	}
}

// WithExtractor 注册或覆盖某个扩展名的提取器
func WithExtractor(ext string, e Extractor) Option {
	return func(r *Registry) { r.byExt[normalizeExt(ext)] = e }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry 创建默认提取器集合
func NewRegistry(ctx context.Context, opts ...Option) (*Registry, error) {
	pdfParser, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf parser: %w", err)
	}
	docxParser, err := docx.NewDocxParser(ctx, &docx.Config{
		ToSections:      false,
		IncludeComments: false,
		IncludeHeaders:  true,
		IncludeFooters:  false,
		IncludeTables:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create docx parser: %w", err)
	}

	r := &Registry{
		byExt: map[string]Extractor{
			"pdf":  &parserExtractor{parser: pdfParser},
			"docx": &parserExtractor{parser: docxParser},
			"txt":  ExtractorFunc(extractText),
			"csv":  ExtractorFunc(extractCSV),
		},
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Supports 是否能处理该扩展名
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[normalizeExt(ext)]
	return ok
}

// Extract 提取文本，返回去掉首尾空白的结果
func (r *Registry) Extract(ctx context.Context, ext string, rd io.Reader) (string, error) {
	e, ok := r.byExt[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	text, err := e.Extract(ctx, rd)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	r.log.Debug("text extracted", "ext", ext, "runes", len([]rune(text)))
	return text, nil
}

// parserExtractor 适配 eino 文档解析器
type parserExtractor struct {
	parser einoparser.Parser
}

func (p *parserExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	docs, err := p.parser.Parse(ctx, r)
	if err != nil {
		return "", fmt.Errorf("parser failed: %w", err)
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if s := strings.TrimSpace(d.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
