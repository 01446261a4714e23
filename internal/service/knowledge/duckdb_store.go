package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pgvector/pgvector-go"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id          VARCHAR PRIMARY KEY,
	owner_id    VARCHAR NOT NULL,
	file_id     VARCHAR NOT NULL,
	content     VARCHAR,
	embedding   FLOAT[],
	topic       VARCHAR,
	keywords    VARCHAR,
	keywords_lc VARCHAR[],
	difficulty  VARCHAR,
	summary     VARCHAR,
	seq         BIGINT NOT NULL,
	created_at  TIMESTAMP
)`

const duckdbColumns = `id, owner_id, file_id, content, CAST(embedding AS VARCHAR), topic, keywords, difficulty, summary, seq, created_at`

// DuckDBStore 基于 DuckDB 的嵌入式知识块存储
type DuckDBStore struct {
	db *sql.DB
}

var _ repository.KnowledgeStore = (*DuckDBStore)(nil)

// NewDuckDBStore 打开（或创建）DuckDB 文件；path 为空时使用内存库
func NewDuckDBStore(ctx context.Context, path string) (*DuckDBStore, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
	} else {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if _, err := db.ExecContext(ctx, duckdbSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create knowledge_chunks: %w", err)
	}
	return &DuckDBStore{db: db}, nil
}

// Close 关闭连接
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func (s *DuckDBStore) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	return s.PutBatch(ctx, []*model.KnowledgeChunk{chunk})
}

func (s *DuckDBStore) PutBatch(ctx context.Context, chunks []*model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range chunks {
		repository.PrepareChunk(c)
		kw, err := json.Marshal([]string(c.Keywords))
		if err != nil {
			return err
		}
		lc := make([]string, 0, len(c.Keywords))
		for _, k := range c.Keywords {
			lc = append(lc, normalizeKeyword(k))
		}
		listExpr, listArgs := listValue(lc)

		args := []any{c.ID, c.OwnerID, c.FileID, c.Content, vectorLiteral(c.Embedding.Slice()), c.Topic, string(kw)}
		args = append(args, listArgs...)
		args = append(args, string(c.Difficulty), c.Summary, c.Seq, c.CreatedAt)
		if _, err := tx.ExecContext(ctx, `INSERT INTO knowledge_chunks
			(id, owner_id, file_id, content, embedding, topic, keywords, keywords_lc, difficulty, summary, seq, created_at)
			VALUES (?, ?, ?, ?, CAST(? AS FLOAT[]), ?, ?, `+listExpr+`, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

func (s *DuckDBStore) GetByOwnerAndTopic(ctx context.Context, ownerID, topic string, limit int) ([]*model.KnowledgeChunk, error) {
	if limit <= 0 {
		return []*model.KnowledgeChunk{}, nil
	}
	return s.query(ctx,
		`SELECT `+duckdbColumns+` FROM knowledge_chunks
		WHERE owner_id = ? AND contains(lower(topic), ?)
		ORDER BY seq ASC LIMIT ?`,
		ownerID, strings.ToLower(strings.TrimSpace(topic)), limit)
}

// HybridSearch 实现 repository.KnowledgeStore
func (s *DuckDBStore) HybridSearch(ctx context.Context, q *repository.HybridQuery) (*repository.HybridResult, error) {
	result := &repository.HybridResult{Chunks: []*model.KnowledgeChunk{}}
	if q.Limit <= 0 {
		return result, nil
	}

	keywords := repository.NormalizeTerms(q.Keywords)
	patterns := repository.NormalizeTerms(q.TopicPatterns)

	var preds []string
	args := []any{q.OwnerID}
	if len(keywords) > 0 {
		listExpr, listArgs := listValue(keywords)
		preds = append(preds, "list_has_any(keywords_lc, "+listExpr+")")
		args = append(args, listArgs...)
	}
	for _, p := range patterns {
		preds = append(preds, "contains(lower(topic), ?)")
		args = append(args, p)
	}

	if len(preds) > 0 {
		query := `SELECT ` + duckdbColumns + ` FROM knowledge_chunks WHERE owner_id = ? AND (` + strings.Join(preds, " OR ") + `)`
		if len(q.Vector) > 0 {
			query += ` ORDER BY list_cosine_distance(embedding, CAST(? AS FLOAT[])) ASC NULLS LAST, seq ASC`
			args = append(args, vectorLiteral(q.Vector))
		} else {
			query += ` ORDER BY seq ASC`
		}
		query += ` LIMIT ?`
		args = append(args, q.Limit)

		chunks, err := s.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		result.Chunks = chunks
	}
	if len(result.Chunks) > 0 || !q.FallbackUnranked {
		return result, nil
	}

	chunks, err := s.query(ctx,
		`SELECT `+duckdbColumns+` FROM knowledge_chunks WHERE owner_id = ? ORDER BY seq ASC LIMIT ?`,
		q.OwnerID, q.Limit)
	if err != nil {
		return nil, err
	}
	result.Chunks = chunks
	result.Fallback = len(chunks) > 0
	return result, nil
}

func (s *DuckDBStore) ListByFile(ctx context.Context, ownerID, fileID string) ([]*model.KnowledgeChunk, error) {
	return s.query(ctx,
		`SELECT `+duckdbColumns+` FROM knowledge_chunks WHERE owner_id = ? AND file_id = ? ORDER BY seq ASC`,
		ownerID, fileID)
}

func (s *DuckDBStore) DeleteByFile(ctx context.Context, ownerID, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE owner_id = ? AND file_id = ?`, ownerID, fileID)
	return err
}

func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DuckDBStore) query(ctx context.Context, query string, args ...any) ([]*model.KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb query failed: %w", err)
	}
	defer rows.Close()

	out := []*model.KnowledgeChunk{}
	for rows.Next() {
		var (
			c                   model.KnowledgeChunk
			vec, kw, diff, summ sql.NullString
			content, topic      sql.NullString
			createdAt           sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.FileID, &content, &vec, &topic, &kw, &diff, &summ, &c.Seq, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Content = content.String
		c.Topic = topic.String
		c.Difficulty = model.Difficulty(diff.String)
		c.Summary = summ.String
		if createdAt.Valid {
			c.CreatedAt = createdAt.Time
		}
		c.Keywords = []string{}
		if kw.Valid && kw.String != "" {
			if err := json.Unmarshal([]byte(kw.String), &c.Keywords); err != nil {
				return nil, fmt.Errorf("failed to decode keywords: %w", err)
			}
		}
		if vec.Valid {
			v, err := parseVector(vec.String)
			if err != nil {
				return nil, err
			}
			c.Embedding = pgvector.NewVector(v)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// vectorLiteral 格式化为 DuckDB 列表字面量 [x, y, ...]
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// listValue 生成 VARCHAR[] 表达式及其参数
func listValue(items []string) (string, []any) {
	if len(items) == 0 {
		return "CAST([] AS VARCHAR[])", nil
	}
	args := make([]any, len(items))
	for i, s := range items {
		args[i] = s
	}
	return "CAST(list_value(" + strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ") + ") AS VARCHAR[])", args
}

// parseVector 解析 CAST(FLOAT[] AS VARCHAR) 的结果
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return []float32{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector element %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
