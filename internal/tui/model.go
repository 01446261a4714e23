// Package tui 终端学习客户端
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashwinyue/next-tutor/internal/client"
	"github.com/ashwinyue/next-tutor/internal/model"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TutorPort TUI 使用的教学服务接口
type TutorPort interface {
	SuggestTopics(ctx context.Context, count int) (*client.Suggestions, error)
	StartSession(ctx context.Context, topic string) (*client.StartResponse, error)
	SubmitAnswer(ctx context.Context, sessionID, answer string) (*client.AnswerResponse, error)
	Evaluate(ctx context.Context, sessionID string) (*model.EvaluationResult, error)
}

type stage int

const (
	stageTopic stage = iota
	stageAnswering
	stageEvaluating
	stageDone
)

type (
	suggestedMsg     struct{ res *client.Suggestions }
	suggestFailedMsg struct{ err error }
	startedMsg       struct{ res *client.StartResponse }
	answeredMsg      struct{ res *client.AnswerResponse }
	evaluatedMsg     struct{ res *model.EvaluationResult }
	errMsg           struct{ err error }
)

type turn struct {
	question string
	answer   string
	feedback *client.Feedback
}

// Model 学习会话界面
type Model struct {
	tutor   TutorPort
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	stage       stage
	busy        bool
	suggestions []string
	ready       bool
	topic       string
	sessionID   string
	maxTurns    int
	question    string
	turns       []turn
	awaiting    bool // 最后一条回答尚未被服务端确认
	evaluation  *model.EvaluationResult
	status      string
}

// New 创建界面；topic 非空时启动后直接开始会话
func New(tutor TutorPort, topic string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What do you want to teach today?"
	ti.Focus()
	ti.CharLimit = 0
	ti.SetValue(topic)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		tutor:    tutor,
		timeout:  2 * time.Minute,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Enter a topic from your uploaded material.",
	}
}

func (m Model) Init() tea.Cmd {
	if topic := strings.TrimSpace(m.input.Value()); topic != "" {
		return tea.Batch(textinput.Blink, m.start(topic))
	}
	return tea.Batch(textinput.Blink, m.suggest())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		h := msg.Height - 3 - ih - 1 - fh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, h)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.stage == stageDone {
				return m, tea.Quit
			}
			if m.busy {
				return m, nil
			}
			var cmd tea.Cmd
			if m.stage == stageEvaluating {
				m.status = "Evaluating..."
				cmd = m.evaluate()
			} else {
				cmd = m.submit()
			}
			if cmd == nil {
				return m, nil
			}
			m.busy = true
			return m, tea.Batch(cmd, m.spinner.Tick)
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case suggestedMsg:
		if m.stage != stageTopic || len(msg.res.Topics) == 0 {
			return m, nil
		}
		m.suggestions = msg.res.Topics
		m.status = "Pick a topic by number or type your own."
		m.refresh()
		return m, nil

	case suggestFailedMsg:
		if m.stage == stageTopic {
			m.status = "Enter a topic from your uploaded material. (no suggestions: " + msg.err.Error() + ")"
		}
		return m, nil

	case startedMsg:
		m.busy = false
		m.stage = stageAnswering
		m.sessionID = msg.res.Session.ID
		m.topic = msg.res.Session.Topic
		m.maxTurns = msg.res.Session.MaxQuestions
		m.question = msg.res.Question
		m.input.SetValue("")
		m.input.Placeholder = "Explain it to your student"
		m.status = fmt.Sprintf("Session started on %q.", m.topic)
		if msg.res.Fallback {
			m.status += " No direct match, using your most recent material."
		}
		m.refresh()
		return m, nil

	case answeredMsg:
		m.awaiting = false
		m.turns[len(m.turns)-1].feedback = msg.res.Feedback
		if msg.res.Completed {
			m.stage = stageEvaluating
			m.question = ""
			m.input.Placeholder = "Press Enter to retry the evaluation"
			m.status = "All questions answered. Evaluating..."
			m.refresh()
			return m, m.evaluate()
		}
		m.busy = false
		m.question = msg.res.NextQuestion
		m.status = fmt.Sprintf("Question %d of %d.", msg.res.TurnIndex+1, m.maxTurns)
		m.refresh()
		return m, nil

	case evaluatedMsg:
		m.busy = false
		m.stage = stageDone
		m.evaluation = msg.res
		m.input.Blur()
		m.status = "Press Enter to quit."
		m.refresh()
		return m, nil

	case errMsg:
		m.busy = false
		// 提交失败的回答不计入记录，放回输入框
		if m.awaiting {
			last := m.turns[len(m.turns)-1]
			m.turns = m.turns[:len(m.turns)-1]
			m.input.SetValue(last.answer)
			m.awaiting = false
		}
		m.status = "Error: " + msg.err.Error()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit 根据当前阶段提交输入框内容
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.SetValue("")

	switch m.stage {
	case stageTopic:
		if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(m.suggestions) {
			text = m.suggestions[n-1]
		}
		m.status = fmt.Sprintf("Starting a session on %q...", text)
		return m.start(text)
	case stageAnswering:
		m.turns = append(m.turns, turn{question: m.question, answer: text})
		m.awaiting = true
		m.status = "Thinking..."
		m.refresh()
		id := m.sessionID
		return m.call(func(ctx context.Context) tea.Msg {
			res, err := m.tutor.SubmitAnswer(ctx, id, text)
			if err != nil {
				return errMsg{err}
			}
			return answeredMsg{res}
		})
	}
	return nil
}

func (m *Model) suggest() tea.Cmd {
	return m.call(func(ctx context.Context) tea.Msg {
		res, err := m.tutor.SuggestTopics(ctx, 0)
		if err != nil {
			return suggestFailedMsg{err}
		}
		return suggestedMsg{res}
	})
}

func (m *Model) start(topic string) tea.Cmd {
	return m.call(func(ctx context.Context) tea.Msg {
		res, err := m.tutor.StartSession(ctx, topic)
		if err != nil {
			return errMsg{err}
		}
		return startedMsg{res}
	})
}

func (m *Model) evaluate() tea.Cmd {
	id := m.sessionID
	return m.call(func(ctx context.Context) tea.Msg {
		res, err := m.tutor.Evaluate(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return evaluatedMsg{res}
	})
}

func (m *Model) call(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("next-tutor")
	if m.topic != "" {
		header += dimStyle.Render("  teaching: " + m.topic)
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	if m.stage == stageTopic && len(m.suggestions) > 0 {
		b.WriteString(titleStyle.Render("Suggested topics") + "\n")
		for i, topic := range m.suggestions {
			fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render(strconv.Itoa(i+1)+"."), topic)
		}
	}
	for i, t := range m.turns {
		fmt.Fprintf(&b, "%s %s\n", studentStyle.Render(fmt.Sprintf("Q%d", i+1)), t.question)
		fmt.Fprintf(&b, "%s %s\n", userStyle.Render("You"), t.answer)
		if t.feedback != nil {
			mark := wrongStyle.Render("✗")
			if t.feedback.IsCorrect {
				mark = rightStyle.Render("✓")
			}
			fmt.Fprintf(&b, "  %s %s\n", mark, dimStyle.Render(t.feedback.Feedback))
		}
		b.WriteString("\n")
	}
	if m.question != "" {
		fmt.Fprintf(&b, "%s %s\n", studentStyle.Render(fmt.Sprintf("Q%d", len(m.turns)+1)), m.question)
	}
	if m.evaluation != nil {
		b.WriteString(renderEvaluation(m.evaluation))
	}
	if b.Len() == 0 {
		return dimStyle.Render("Your student is waiting for a topic.")
	}
	return b.String()
}

func renderEvaluation(e *model.EvaluationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Grade"), gradeStyle.Render(e.Grade))
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n" + titleStyle.Render(title) + "\n")
		for _, it := range items {
			b.WriteString("  • " + it + "\n")
		}
	}
	section("Correct concepts", e.CorrectConcepts)
	section("Misconceptions", e.Misconceptions)
	section("Improvement tips", e.ImprovementTips)
	if e.Degraded {
		b.WriteString("\n" + dimStyle.Render("The evaluation could not be completed in full.") + "\n")
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	studentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	rightStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	wrongStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	gradeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
