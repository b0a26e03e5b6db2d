// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive chat.
//
// Questions stream into the active thread. Slash commands manage threads,
// edits and attachments. Ctrl+C during an answer cancels it; Ctrl+C or
// Ctrl+D at the prompt exits.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/export"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// ChatSession is one interactive chat.
type ChatSession struct {
	app     *App
	manager *chat.Manager
	out     io.Writer

	// attachments are sent with the next question, then dropped
	attachments []*attach.Attachment

	mu     sync.Mutex
	cancel context.CancelFunc

	questions int
	started   time.Time
}

// NewChatSession creates a session over a fresh manager.
func NewChatSession(a *App) *ChatSession {
	return &ChatSession{
		app:     a,
		manager: a.NewManager(),
		out:     a.Out,
		started: time.Now(),
	}
}

// HandleChat runs interactive chat until the user quits.
func (a *App) HandleChat(ctx context.Context) error {
	s := NewChatSession(a)

	var input lineReader
	if isTerminal(a.In) && isTerminal(a.Out) {
		history, err := a.Config.HistoryPath()
		if err != nil {
			a.Logger.Debug("no history file", "error", err)
		}
		input = newLinerInput(history, a.Logger)
	} else {
		input = newScannerInput(a.In)
	}
	defer input.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if s.cancelGeneration() {
				fmt.Fprintln(a.Err, "\n"+RenderConditional(WarningStyle, "[Cancelled]"))
			}
		}
	}()

	return s.Run(ctx, input)
}

// Run loads threads and reads input until quit or end of input.
func (s *ChatSession) Run(ctx context.Context, input lineReader) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	if !s.app.Args.Quiet {
		s.printWelcome()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := input.Prompt(s.prompt())
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, errInputAborted) {
				return err
			}
			s.printExitSummary()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			s.printExitSummary()
			return nil
		}

		if strings.HasPrefix(line, "/") {
			keepGoing, err := s.handleSlashCommand(ctx, line, input)
			if err != nil {
				DisplayError(s.app.Err, err, false)
			}
			if !keepGoing {
				s.printExitSummary()
				return nil
			}
			continue
		}

		if err := s.ask(ctx, line); err != nil {
			DisplayError(s.app.Err, err, false)
		}
	}
}

// start loads the thread listing. An unreachable backend is reported and
// chat continues in a new thread.
func (s *ChatSession) start(ctx context.Context) error {
	if err := s.manager.Load(ctx); err != nil {
		s.app.Logger.Warn("thread listing unavailable", "error", err)
		fmt.Fprintf(s.app.Err, "%s could not load threads: %v\n", RenderConditional(WarningStyle, "[WARN]"), err)
	}
	if s.app.Args.Thread != "" {
		if err := s.manager.SwitchThread(ctx, s.app.Args.Thread); err != nil {
			return NewCommandError("chat", "open thread "+s.app.Args.Thread, err)
		}
	}
	return nil
}

func (s *ChatSession) prompt() string {
	th := s.manager.Active()
	label := "new"
	if !th.IsProvisional() {
		label = util.TruncateWidth(th.Title, 20)
	}
	if len(s.attachments) > 0 {
		label += fmt.Sprintf(" +%d", len(s.attachments))
	}
	return fmt.Sprintf("[%s] > ", label)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// generationContext returns a context cancelled by Ctrl+C.
func (s *ChatSession) generationContext(ctx context.Context) (context.Context, func()) {
	genCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return genCtx, func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}
}

// cancelGeneration cancels the answer in progress, if any.
func (s *ChatSession) cancelGeneration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// ask submits a new question in the active thread.
func (s *ChatSession) ask(ctx context.Context, question string) error {
	threadID := s.manager.ActiveID()
	attachments := s.takeAttachments()
	return s.submit(ctx, func(ctx context.Context) (*chat.Result, error) {
		return s.manager.Submit(ctx, chat.SubmitRequest{
			ThreadID:    threadID,
			Question:    question,
			Attachments: attachments,
		})
	})
}

// edit resubmits a message of the active thread with a revised question.
func (s *ChatSession) edit(ctx context.Context, messageID, question, modelName string) error {
	threadID := s.manager.ActiveID()
	attachments := s.takeAttachments()
	return s.submit(ctx, func(ctx context.Context) (*chat.Result, error) {
		return s.manager.SubmitEdit(ctx, chat.EditRequest{
			ThreadID:    threadID,
			MessageID:   messageID,
			Question:    question,
			Model:       modelName,
			Attachments: attachments,
		})
	})
}

func (s *ChatSession) submit(ctx context.Context, fn func(context.Context) (*chat.Result, error)) error {
	genCtx, done := s.generationContext(ctx)
	defer done()

	res, err := s.app.submitWithEcho(genCtx, s.manager, true, fn)
	if err != nil {
		return err
	}
	s.questions++
	if !s.app.Args.Quiet {
		stats := formatDurationShort(res.Elapsed)
		if res.ContextUsed {
			stats += " | document context"
		}
		fmt.Fprintln(s.out, RenderConditional(DimStyle, stats))
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *ChatSession) takeAttachments() []*attach.Attachment {
	list := s.attachments
	s.attachments = nil
	return list
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one slash command. It returns false to end the
// session.
func (s *ChatSession) handleSlashCommand(ctx context.Context, line string, input lineReader) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true, nil
	}
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		fmt.Fprint(s.out, commandHelp[CmdChat])
	case "/quit", "/q", "/exit":
		return false, nil
	case "/new", "/n":
		s.manager.NewThread()
		fmt.Fprintln(s.out, RenderConditional(DimStyle, "[New thread]"))
	case "/threads", "/ls":
		printThreadList(s.out, s.manager.Threads(), s.manager.ActiveID(), time.Now())
	case "/switch", "/s":
		return true, s.switchThread(ctx, args)
	case "/delete":
		return true, s.deleteThread(args)
	case "/history":
		s.printHistory()
	case "/refresh":
		return true, s.manager.Refresh(ctx, s.manager.ActiveID())
	case "/edit", "/e":
		return true, s.editMessage(ctx, args, input)
	case "/prev", "/p":
		return true, s.stepEdit(args, -1)
	case "/next":
		return true, s.stepEdit(args, 1)
	case "/attach", "/a":
		return true, s.attach(args, false)
	case "/remote":
		return true, s.attach(args, true)
	case "/detach":
		s.attachments = nil
		fmt.Fprintln(s.out, RenderConditional(DimStyle, "[Attachments cleared]"))
	case "/model", "/m":
		return true, s.setModel(args)
	case "/models":
		s.printModels()
	case "/retry", "/r":
		return true, s.retry(ctx)
	case "/export":
		return true, s.exportThread(args)
	default:
		reason := fmt.Sprintf("unknown command: %s", command)
		if hint := suggestSlashCommand(command); hint != "" {
			reason += fmt.Sprintf(" (did you mean %s?)", hint)
		}
		return true, NewUsageError(reason, "/help")
	}
	return true, nil
}

// threadRef resolves a 1-based listing number or a thread id.
func (s *ChatSession) threadRef(ref string) (string, error) {
	infos := s.manager.Threads()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(infos) {
			return "", fmt.Errorf("no thread #%d (have %d)", n, len(infos))
		}
		return infos[n-1].ID, nil
	}
	return ref, nil
}

func (s *ChatSession) switchThread(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return NewUsageError("missing thread", "/switch <n|id>")
	}
	id, err := s.threadRef(args[0])
	if err != nil {
		return err
	}
	if err := s.manager.SwitchThread(ctx, id); err != nil {
		return err
	}
	s.printHistory()
	return nil
}

func (s *ChatSession) deleteThread(args []string) error {
	id := s.manager.ActiveID()
	if len(args) > 0 {
		ref, err := s.threadRef(args[0])
		if err != nil {
			return err
		}
		id = ref
	}
	if err := s.manager.DeleteThread(id); err != nil {
		return err
	}
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "[Thread removed from this session]"))
	return nil
}

// messageRef resolves a 1-based message number in the active thread.
func (s *ChatSession) messageRef(args []string, usage string) (*model.Message, error) {
	if len(args) < 1 {
		return nil, NewUsageError("missing message number", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, NewUsageError(fmt.Sprintf("invalid message number %q", args[0]), usage)
	}
	th := s.manager.Active()
	if n < 1 || n > len(th.Messages) {
		return nil, fmt.Errorf("%w: #%d", chat.ErrMessageNotFound, n)
	}
	return th.Messages[n-1], nil
}

func (s *ChatSession) editMessage(ctx context.Context, args []string, input lineReader) error {
	msg, err := s.messageRef(args, "/edit <n> [question]")
	if err != nil {
		return err
	}
	threadID := s.manager.ActiveID()
	view, err := s.manager.BeginEdit(threadID, msg.ID)
	if err != nil {
		return err
	}

	question := strings.Join(args[1:], " ")
	if question == "" {
		question, err = input.PromptWithText("edit> ", view.Edit.Question)
		if err != nil {
			if errors.Is(err, errInputAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return s.edit(ctx, msg.ID, question, "")
}

func (s *ChatSession) stepEdit(args []string, delta int) error {
	msg, err := s.messageRef(args, "/prev <n> or /next <n>")
	if err != nil {
		return err
	}
	threadID := s.manager.ActiveID()

	var (
		view  chat.EditView
		moved bool
	)
	if delta < 0 {
		view, moved, err = s.manager.PreviousEdit(threadID, msg.ID)
	} else {
		view, moved, err = s.manager.NextEdit(threadID, msg.ID)
	}
	if err != nil {
		return err
	}
	if !moved {
		fmt.Fprintln(s.out, RenderConditional(DimStyle, fmt.Sprintf("[No more edits: %d/%d]", view.Index+1, view.Count)))
	}
	n, _ := strconv.Atoi(args[0])
	s.app.render.Exchange(n, editPosition{index: view.Index, count: view.Count}, view.Edit)
	return nil
}

func (s *ChatSession) attach(args []string, remote bool) error {
	if len(args) < 1 {
		if remote {
			return NewUsageError("missing path", "/remote <path>")
		}
		return NewUsageError("missing path", "/attach <path>")
	}
	path := strings.Join(args, " ")
	opts := s.app.Config.AttachOptions()

	var (
		att *attach.Attachment
		err error
	)
	if remote {
		att, err = attach.FromRemotePath(path, opts)
	} else {
		att, err = attach.FromFile(path, opts)
	}
	if err != nil {
		return err
	}
	s.attachments = append(s.attachments, att)
	fmt.Fprintf(s.out, "%s %s\n", RenderConditional(SuccessStyle, "[Attached]"), att.Name)
	return nil
}

func (s *ChatSession) setModel(args []string) error {
	threadID := s.manager.ActiveID()
	if len(args) == 0 {
		th := s.manager.Active()
		current := th.Model
		if current == "" {
			current = s.app.Config.Chat.DefaultModel
		}
		fmt.Fprintf(s.out, "Current model: %s\n", current)
		return nil
	}
	name := model.ResolveModel(args[0])
	if err := s.manager.SetModel(threadID, name); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", RenderConditional(SuccessStyle, "[Model]"), name)
	return nil
}

func (s *ChatSession) printModels() {
	current := s.manager.Active().Model
	for _, id := range s.app.Config.AvailableModels() {
		marker := " "
		if id == current {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, util.PadRight(id, 22))
		if info, ok := model.GetModelInfo(id); ok {
			line += RenderConditional(DimStyle, info.Label()+"  "+info.Description)
		}
		fmt.Fprintln(s.out, line)
	}
}

// retry resubmits the question of the active thread's last failure.
func (s *ChatSession) retry(ctx context.Context) error {
	threadID := s.manager.ActiveID()
	f, ok := s.manager.Failure(threadID)
	if !ok {
		return errors.New("nothing to retry")
	}
	if f.MessageID != "" {
		return s.edit(ctx, f.MessageID, f.Question, f.Model)
	}
	return s.submit(ctx, func(ctx context.Context) (*chat.Result, error) {
		return s.manager.Submit(ctx, chat.SubmitRequest{
			ThreadID: threadID,
			Question: f.Question,
			Model:    f.Model,
		})
	})
}

// exportThread writes the active thread to the current directory.
func (s *ChatSession) exportThread(args []string) error {
	format := ""
	if len(args) > 0 {
		format = args[0]
	}
	opts := s.app.exportOptions()
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return NewUsageError(err.Error(), "/export [md|json]")
	}
	path, err := export.ExportToFile(s.manager.Active(), exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", RenderConditional(SuccessStyle, "[Exported]"), path)
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *ChatSession) printWelcome() {
	fmt.Fprintf(s.out, "%s %s\n", RenderConditional(TitleStyle, "ragchat"), RenderConditional(DimStyle, Version))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Backend:"), s.app.Client.BaseURL())
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), s.app.Config.Chat.DefaultModel)
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Threads:"), len(s.manager.Threads()))
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

// printHistory shows the active thread with each message at its displayed
// edit.
func (s *ChatSession) printHistory() {
	th := s.manager.Active()
	if th.IsEmpty() {
		fmt.Fprintf(s.out, "%s\n", RenderConditional(DimStyle, "["+th.Title+": no messages yet]"))
		return
	}
	fmt.Fprintf(s.out, "%s\n\n", RenderConditional(TitleStyle, th.Title))
	for i, msg := range th.Messages {
		view, err := s.manager.DisplayedEdit(th.ID, msg.ID)
		if err != nil {
			continue
		}
		s.app.render.Exchange(i+1, editPosition{index: view.Index, count: view.Count}, view.Edit)
	}
	if p, ok := s.manager.Pending(th.ID); ok {
		fmt.Fprintf(s.out, "%s %s\n", RenderConditional(QuestionStyle, "You:"), p.Question)
		if f, ok := s.manager.Failure(th.ID); ok {
			fmt.Fprintln(s.out, RenderConditional(WarningStyle, f.Answer))
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "Type /retry to resubmit."))
		}
	}
}

func (s *ChatSession) printExitSummary() {
	if s.app.Args.Quiet {
		return
	}
	fmt.Fprintf(s.out, "\n%s %d question(s) in %s\n",
		RenderConditional(DimStyle, "[Session]"),
		s.questions,
		formatDurationShort(time.Since(s.started).Round(time.Second)))
}
