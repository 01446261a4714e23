// Package tutor 有界的苏格拉底式问答会话
//
// 会话状态：ACTIVE(turn=0..max-1) -> COMPLETED。开始时检索一次上下文并冻结，
// 之后的提问只依赖冻结快照与已问问题。
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/ashwinyue/next-tutor/internal/repository"
	"github.com/ashwinyue/next-tutor/internal/service/evaluation"
	"github.com/ashwinyue/next-tutor/internal/service/llm"
	"github.com/ashwinyue/next-tutor/internal/service/retrieval"
	"github.com/google/uuid"
)

// ContextRetriever 会话开始时的上下文检索
type ContextRetriever interface {
	Retrieve(ctx context.Context, ownerID, query string, topK int) (*retrieval.Result, error)
}

// SessionEvaluator 会话评估
type SessionEvaluator interface {
	Evaluate(ctx context.Context, source []model.FrozenChunk, pairs []evaluation.QAPair) *model.EvaluationResult
}

// AnswerChecker 单题即时反馈
type AnswerChecker interface {
	QuickCheck(ctx context.Context, source []model.FrozenChunk, question, answer string) (*evaluation.QuickFeedback, error)
}

// Config 会话参数
type Config struct {
	MaxQuestions int
	TopK         int
}

// StartResult 开始会话的结果
type StartResult struct {
	Session          *model.TeachingSession `json:"session"`
	Question         string                 `json:"question"`
	ExpandedKeywords []string               `json:"expanded_keywords"`
	Fallback         bool                   `json:"fallback"`
}

// AnswerResult 提交回答的结果；Completed 时 NextQuestion 为空
type AnswerResult struct {
	SessionID    string                    `json:"session_id"`
	TurnIndex    int                       `json:"turn_index"`
	Completed    bool                      `json:"completed"`
	NextQuestion string                    `json:"next_question,omitempty"`
	Feedback     *evaluation.QuickFeedback `json:"feedback,omitempty"`
}

// Engine 会话引擎
type Engine struct {
	retriever ContextRetriever
	gen       llm.Generator
	sessions  repository.SessionRepository
	evaluator SessionEvaluator
	checker   AnswerChecker
	locker    Locker
	cfg       Config
	log       *logger.Logger
}

// Option 配置项
type Option func(*Engine)

func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithAnswerChecker 启用单题即时反馈
func WithAnswerChecker(c AnswerChecker) Option {
	return func(e *Engine) { e.checker = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine 创建会话引擎
func NewEngine(retriever ContextRetriever, gen llm.Generator, sessions repository.SessionRepository, evaluator SessionEvaluator, cfg Config, opts ...Option) *Engine {
	if cfg.MaxQuestions < 1 {
		cfg.MaxQuestions = 3
	}
	if cfg.TopK < 1 {
		cfg.TopK = 6
	}
	e := &Engine{
		retriever: retriever,
		gen:       gen,
		sessions:  sessions,
		evaluator: evaluator,
		locker:    NewLocalLocker(),
		cfg:       cfg,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start 检索上下文、冻结快照并生成第一个问题
func (e *Engine) Start(ctx context.Context, ownerID, topic string) (*StartResult, error) {
	if err := ValidateID(ownerID); err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	res, err := e.retriever.Retrieve(ctx, ownerID, topic, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(res.Chunks) == 0 {
		return nil, ErrNoContext
	}

	frozen := make([]model.FrozenChunk, len(res.Chunks))
	for i, c := range res.Chunks {
		frozen[i] = c.Freeze()
	}

	question := e.generateQuestion(ctx, frozen, nil, 0)
	session := &model.TeachingSession{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Topic:            topic,
		TurnIndex:        0,
		MaxQuestions:     e.cfg.MaxQuestions,
		Context:          frozen,
		ExpandedKeywords: res.ExpandedKeywords,
		PendingQuestion:  question,
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	e.log.Info("teaching session started", "session_id", session.ID, "owner_id", ownerID, "chunks", len(frozen))
	return &StartResult{
		Session:          session,
		Question:         question,
		ExpandedKeywords: res.ExpandedKeywords,
		Fallback:         res.Fallback,
	}, nil
}

// SubmitAnswer 记录回答并推进轮次
func (e *Engine) SubmitAnswer(ctx context.Context, ownerID, sessionID, text string) (*AnswerResult, error) {
	if err := ValidateID(ownerID, sessionID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAnswer
	}

	unlock, err := e.locker.Lock(ctx, sessionID)
	if errors.Is(err, ErrLockHeld) {
		return nil, ErrConcurrentAnswer
	}
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := e.getSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, ErrSessionAlreadyCompleted
	}

	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	asked := session.PendingQuestion
	nextTurn := session.TurnIndex + 1
	completed := nextTurn >= session.MaxQuestions

	var next string
	if !completed {
		prior := make([]string, 0, len(answers)+1)
		for _, a := range answers {
			prior = append(prior, a.Question)
		}
		prior = append(prior, asked)
		next = e.generateQuestion(ctx, session.Context, prior, nextTurn)
	}

	err = e.sessions.RecordAnswer(ctx, &repository.TurnUpdate{
		SessionID:    sessionID,
		ExpectedTurn: session.TurnIndex,
		Answer: &model.Answer{
			ID:       uuid.New().String(),
			Question: asked,
			Text:     text,
		},
		Completed:    completed,
		NextQuestion: next,
	})
	if errors.Is(err, repository.ErrStaleTurn) {
		return nil, ErrConcurrentAnswer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	result := &AnswerResult{
		SessionID:    sessionID,
		TurnIndex:    nextTurn,
		Completed:    completed,
		NextQuestion: next,
	}
	if e.checker != nil {
		fb, err := e.checker.QuickCheck(ctx, session.Context, asked, text)
		if err != nil {
			e.log.Warn("quick feedback unavailable", "session_id", sessionID, "error", err)
		} else {
			result.Feedback = fb
		}
	}
	if completed {
		e.log.Info("teaching session completed", "session_id", sessionID)
	}
	return result, nil
}

// Evaluate 评估已完成的会话；非降级结果会缓存在会话上
func (e *Engine) Evaluate(ctx context.Context, ownerID, sessionID string) (*model.EvaluationResult, error) {
	if err := ValidateID(ownerID, sessionID); err != nil {
		return nil, err
	}
	session, err := e.getSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Completed {
		return nil, ErrSessionNotCompleted
	}

	if len(session.Evaluation) > 0 {
		var cached model.EvaluationResult
		if err := json.Unmarshal(session.Evaluation, &cached); err == nil {
			return &cached, nil
		}
	}

	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	if len(answers) == 0 {
		return nil, ErrNoAnswers
	}

	result := e.evaluator.Evaluate(ctx, session.Context, Transcript(answers))
	if !result.Degraded {
		data, err := json.Marshal(result)
		if err == nil {
			err = e.sessions.SaveEvaluation(ctx, sessionID, data)
		}
		if err != nil {
			e.log.Warn("failed to cache evaluation", "session_id", sessionID, "error", err)
		}
	}
	return result, nil
}

// GetSession 获取会话及其回答
func (e *Engine) GetSession(ctx context.Context, ownerID, sessionID string) (*model.TeachingSession, error) {
	if err := ValidateID(ownerID, sessionID); err != nil {
		return nil, err
	}
	session, err := e.getSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := e.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	session.Answers = make([]model.Answer, len(answers))
	for i, a := range answers {
		session.Answers[i] = *a
	}
	return session, nil
}

// ListSessions 列出学习者的会话
func (e *Engine) ListSessions(ctx context.Context, ownerID string) ([]*model.TeachingSession, error) {
	if err := ValidateID(ownerID); err != nil {
		return nil, err
	}
	return e.sessions.ListByOwner(ctx, ownerID)
}

// DeleteSession 删除会话及其回答
func (e *Engine) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	if err := ValidateID(ownerID, sessionID); err != nil {
		return err
	}
	err := e.sessions.Delete(ctx, ownerID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Transcript 按轮次组装问答对
func Transcript(answers []*model.Answer) []evaluation.QAPair {
	pairs := make([]evaluation.QAPair, len(answers))
	for i, a := range answers {
		pairs[i] = evaluation.QAPair{Question: a.Question, Answer: a.Text}
	}
	return pairs
}

func (e *Engine) getSession(ctx context.Context, ownerID, sessionID string) (*model.TeachingSession, error) {
	session, err := e.sessions.GetByID(ctx, ownerID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (e *Engine) generateQuestion(ctx context.Context, frozen []model.FrozenChunk, prior []string, turn int) string {
	prompt := BuildQuestionPrompt(frozen, prior, turn, e.cfg.MaxQuestions)
	text, err := e.gen.GenerateText(ctx, studentPersona, prompt)
	if err == nil {
		if q := cleanQuestion(text); q != "" {
			return q
		}
	}
	e.log.Warn("question generation degraded", "turn", turn, "error", err)
	return FallbackQuestion
}
