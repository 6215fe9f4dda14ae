// Package tui is a terminal chat over a project's indexed documents.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"minirag/internal/domain"
	"minirag/internal/service"
)

// Answerer is the TUI-facing subset of the NLP service.
type Answerer interface {
	AnswerRAGQuestion(ctx context.Context, project domain.Project, query string, limit int) (*service.Answer, error)
}

type exchange struct {
	query  string
	answer string
	err    error
}

type answerMsg struct {
	query string
	res   *service.Answer
	err   error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	nlp       Answerer
	project   domain.Project
	limit     int
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	exchanges []exchange
	status    string
	pending   bool
	ready     bool
}

// New creates a chat bound to one project. limit is passed to every
// question; timeout bounds each answer and zero disables it.
func New(nlp Answerer, project domain.Project, limit int, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		nlp:      nlp,
		project:  project,
		limit:    limit,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   fmt.Sprintf("Chatting with %s. Ctrl+C to quit.", service.CollectionName(project.ProjectID)),
	}
}

// Init starts the input cursor blinking.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window resizes and finished answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		ex := exchange{query: msg.query, err: msg.err}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			ex.answer = msg.res.Answer
			m.status = fmt.Sprintf("%d turns in the conversation", len(msg.res.History))
		}
		m.exchanges = append(m.exchanges, ex)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) tea.Cmd {
	nlp, project, limit, timeout := m.nlp, m.project, m.limit, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		res, err := nlp.AnswerRAGQuestion(ctx, project, query, limit)
		return answerMsg{query: query, res: res, err: err}
	}
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.exchanges) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: ") + ex.query + "\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
			continue
		}
		b.WriteString(assistantStyle.Render("Assistant: ") + highlightBestSentence(ex.answer, ex.query))
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe             = regexp.MustCompile(`[\p{L}\p{N}]+`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?؟]+[.!?؟])`)
)

// highlightBestSentence marks the answer sentence sharing the most words
// with the question. Answers with a single sentence are left plain.
func highlightBestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) < 2 {
		return strings.TrimSpace(text)
	}
	qTokens := tokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
