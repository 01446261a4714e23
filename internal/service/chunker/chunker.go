// Package chunker 将文本切分为有重叠、长度受限的片段
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSeparators 段落 > 换行 > 句末 > 空格
var DefaultSeparators = []string{"\n\n", "\n", ".", " "}

// Span 一个切分片段，偏移量以字符（rune）计
// Text 的前 Overlap 个字符与上一片段重叠
type Span struct {
	Text    string
	Start   int
	End     int
	Overlap int
}

// Splitter 递归字符切分器
type Splitter struct {
	maxSize    int
	overlap    int
	separators []string
	hardCut    bool
}

// Option 配置项
type Option func(*Splitter)

// WithSeparators 按优先级排列的分隔符，空串会被忽略
func WithSeparators(seps []string) Option {
	return func(s *Splitter) {
		s.separators = s.separators[:0]
		for _, sep := range seps {
			if sep != "" {
				s.separators = append(s.separators, sep)
			}
		}
	}
}

// WithHardCut 分隔符都无法切小时是否按字符硬切
func WithHardCut(enabled bool) Option {
	return func(s *Splitter) { s.hardCut = enabled }
}

// New 创建切分器
func New(maxSize, overlap int, opts ...Option) (*Splitter, error) {
	if maxSize <= 0 {
		return nil, errors.New("max size must be positive")
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must be in [0, %d)", maxSize)
	}
	s := &Splitter{
		maxSize:    maxSize,
		overlap:    overlap,
		separators: append([]string(nil), DefaultSeparators...),
		hardCut:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split 返回各片段文本
func (s *Splitter) Split(text string) []string {
	spans := s.SplitSpans(text)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.Text
	}
	return out
}

// SplitSpans 切分文本；空白输入返回 nil
// 长空白段落可能单独成为一个片段，调用方按需过滤
func (s *Splitter) SplitSpans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	r := []rune(text)
	pieces := s.pieces(r, 0, len(r), 0)
	return s.merge(r, pieces)
}

type piece struct{ start, end int }

// pieces 递归地把 [lo, hi) 切成不超过 maxSize 的相邻小段
func (s *Splitter) pieces(r []rune, lo, hi, level int) []piece {
	if hi-lo <= s.maxSize {
		return []piece{{lo, hi}}
	}
	for i := level; i < len(s.separators); i++ {
		parts := splitAfter(r, lo, hi, []rune(s.separators[i]))
		if len(parts) <= 1 {
			continue
		}
		out := make([]piece, 0, len(parts))
		for _, p := range parts {
			if p.end-p.start <= s.maxSize {
				out = append(out, p)
			} else {
				out = append(out, s.pieces(r, p.start, p.end, i+1)...)
			}
		}
		return out
	}
	if !s.hardCut {
		return []piece{{lo, hi}}
	}
	out := make([]piece, 0, (hi-lo)/s.maxSize+1)
	for lo < hi {
		end := min(lo+s.maxSize, hi)
		out = append(out, piece{lo, end})
		lo = end
	}
	return out
}

// splitAfter 在每个分隔符之后切开，分隔符留在前一段末尾
func splitAfter(r []rune, lo, hi int, sep []rune) []piece {
	var out []piece
	start := lo
	for i := lo; i+len(sep) <= hi; {
		if runesEqual(r[i:i+len(sep)], sep) {
			end := i + len(sep)
			out = append(out, piece{start, end})
			start = end
			i = end
			continue
		}
		i++
	}
	if start < hi {
		out = append(out, piece{start, hi})
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// merge 贪心地把小段装入窗口，相邻窗口在小段边界上重叠不超过 overlap
func (s *Splitter) merge(r []rune, pieces []piece) []Span {
	var spans []Span
	prevEnd := 0
	for start := 0; start < len(pieces); {
		winStart := pieces[start].start
		end := start
		for end < len(pieces) && pieces[end].end-winStart <= s.maxSize {
			end++
		}
		if end == start {
			// 单个不可再分的超长小段
			end = start + 1
		}
		winEnd := pieces[end-1].end

		// 纯空白窗口也保留，拼接各片段的非重叠部分必须还原原文
		spans = append(spans, Span{
			Text:    string(r[winStart:winEnd]),
			Start:   winStart,
			End:     winEnd,
			Overlap: max(prevEnd-winStart, 0),
		})
		if end == len(pieces) {
			break
		}

		next := end
		for k := end - 1; k > start; k-- {
			if pieces[k].start < winEnd-s.overlap || pieces[end].end-pieces[k].start > s.maxSize {
				break
			}
			next = k
		}
		prevEnd = winEnd
		start = next
	}
	return spans
}
