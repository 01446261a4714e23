package repository

import (
	"math"
	"strings"
	"time"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/google/uuid"
)

// NormalizeTerms 转小写、去空白、去重，保持原有顺序
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// MatchesHybrid 判断知识块是否满足混合检索谓词
// keywords/patterns 须已经过 NormalizeTerms
func MatchesHybrid(c *model.KnowledgeChunk, keywords, patterns []string) bool {
	for _, k := range c.Keywords {
		lk := strings.ToLower(strings.TrimSpace(k))
		for _, q := range keywords {
			if lk == q {
				return true
			}
		}
	}
	topic := strings.ToLower(c.Topic)
	for _, p := range patterns {
		if strings.Contains(topic, p) {
			return true
		}
	}
	return false
}

// CosineDistance 余弦距离 1 - cos(a, b)；零向量视为最远
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// PrepareChunk 补齐入库前的默认字段，各存储后端共用
func PrepareChunk(c *model.KnowledgeChunk) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Seq == 0 {
		c.Seq = model.NextSeq()
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	if c.Difficulty == "" {
		c.Difficulty = model.DifficultyIntermediate
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
}

// escapeLike 转义 LIKE 通配符
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
