package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chatmesh/gateway/internal/model"
	"github.com/chatmesh/gateway/internal/plugins"
	"github.com/chatmesh/gateway/internal/sessions"
)

// Context keys the built-in commands expect the pipeline's command-dispatch
// stage to populate on every Invocation.
const (
	CtxSession        = "session"         // *model.Session
	CtxConversation   = "conversation"    // *model.Conversation
	CtxPipelineConfig = "pipeline_config" // any, passed to PromptExpander
)

// ModelLister returns the configured LLM model names, for model-list.
type ModelLister func() []string

// DrawFunc renders an image from a text prompt, for the draw command.
type DrawFunc func(ctx context.Context, prompt string) ([]byte, error)

// RegisterBuiltins wires the built-in commands (help, reset,
// prompt switch, session list/switch, history list/delete, plugin
// list/enable/disable, model list, draw) into r, threading the session
// manager and plugin host collaborators the handlers act on.
func RegisterBuiltins(r *Registry, sessMgr *sessions.Manager, host *plugins.Host, models ModelLister, draw DrawFunc) {
	must := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	must(&Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "list available commands",
		Privilege:   Everyone,
		Handler: func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
			return TextReply(r.RenderHelp())
		},
	})

	must(&Command{
		Name:        "reset",
		Description: "clear the active conversation's history",
		Privilege:   Everyone,
		Handler:     resetHandler(sessMgr),
	})

	must(&Command{
		Name:        "prompt",
		Description: "switch the active conversation's system prompt",
		Subcommands: map[string]*Command{
			"switch": {
				Name:        "switch",
				Description: "re-expand the system prompt from the current pipeline config",
				Privilege:   GroupAdmin,
				Handler:     promptSwitchHandler(sessMgr),
			},
		},
	})

	must(&Command{
		Name:        "session",
		Description: "inspect or switch sessions",
		Subcommands: map[string]*Command{
			"list": {
				Name:        "list",
				Description: "list every live session",
				Privilege:   BotAdmin,
				Handler:     sessionListHandler(sessMgr),
			},
			"switch": {
				Name:        "switch",
				Description: "switch the active conversation within this session",
				Privilege:   Everyone,
				AcceptsArgs: true,
				Handler:     sessionSwitchHandler(),
			},
		},
	})

	must(&Command{
		Name:        "history",
		Description: "inspect or clear conversation history",
		Subcommands: map[string]*Command{
			"list": {
				Name:        "list",
				Description: "list the active conversation's history",
				Privilege:   Everyone,
				Handler:     historyListHandler(),
			},
			"delete": {
				Name:        "delete",
				Description: "delete the active conversation's history",
				Privilege:   GroupAdmin,
				Handler:     historyDeleteHandler(sessMgr),
			},
		},
	})

	must(&Command{
		Name:        "plugin",
		Description: "inspect or toggle plugins",
		Subcommands: map[string]*Command{
			"list": {
				Name:        "list",
				Description: "list registered plugins",
				Privilege:   BotAdmin,
				Handler:     pluginListHandler(host),
			},
			"enable": {
				Name:        "enable",
				Description: "report that a disabled plugin cannot be re-enabled at runtime (enables nothing)",
				Privilege:   BotAdmin,
				AcceptsArgs: true,
				Handler:     pluginEnableHandler(),
			},
			"disable": {
				Name:        "disable",
				Description: "disable a plugin's listeners",
				Privilege:   BotAdmin,
				AcceptsArgs: true,
				Handler:     pluginDisableHandler(host),
			},
		},
	})

	must(&Command{
		Name:        "model",
		Description: "list available models",
		Subcommands: map[string]*Command{
			"list": {
				Name:        "list",
				Description: "list every configured model",
				Privilege:   Everyone,
				Handler:     modelListHandler(models),
			},
		},
	})

	must(&Command{
		Name:        "draw",
		Description: "generate an image from a text prompt",
		Privilege:   Everyone,
		AcceptsArgs: true,
		Handler:     drawHandler(draw),
	})
}

func resetHandler(sessMgr *sessions.Manager) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		sess, ok := inv.Context[CtxSession].(*model.Session)
		if !ok || sess == nil {
			return ErrorReply("no active session")
		}
		pipelineConfig := inv.Context[CtxPipelineConfig]
		sessMgr.Reset(ctx, sess, pipelineConfig, "explicit")
		return TextReply("conversation reset")
	}
}

func promptSwitchHandler(sessMgr *sessions.Manager) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		sess, ok := inv.Context[CtxSession].(*model.Session)
		if !ok || sess == nil {
			return ErrorReply("no active session")
		}
		pipelineConfig := inv.Context[CtxPipelineConfig]
		sessMgr.Reset(ctx, sess, pipelineConfig, "explicit")
		return TextReply("system prompt re-expanded")
	}
}

func sessionListHandler(sessMgr *sessions.Manager) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		live := sessMgr.List()
		keys := make([]string, 0, len(live))
		for k := range live {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ch := make(chan CommandReturn, len(keys))
		for _, k := range keys {
			sess := live[k]
			ch <- CommandReturn{Text: fmt.Sprintf("%s (status=%s)", k, sess.Status)}
		}
		close(ch)
		return ch, nil
	}
}

func sessionSwitchHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		sess, ok := inv.Context[CtxSession].(*model.Session)
		if !ok || sess == nil {
			return ErrorReply("no active session")
		}
		if len(inv.Args) == 0 {
			return ErrorReply("usage: session switch <conversation-id>")
		}
		if !sess.SwitchTo(inv.Args[0]) {
			return ErrorReply(fmt.Sprintf("no conversation with id %q", inv.Args[0]))
		}
		return TextReply(fmt.Sprintf("switched to conversation %q", inv.Args[0]))
	}
}

func historyListHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		conv, ok := inv.Context[CtxConversation].(*model.Conversation)
		if !ok || conv == nil {
			return ErrorReply("no active conversation")
		}
		if len(conv.History) == 0 {
			return TextReply("(no history)")
		}
		ch := make(chan CommandReturn, len(conv.History))
		for _, msg := range conv.History {
			ch <- CommandReturn{Text: fmt.Sprintf("[%s] %s", msg.Role, msg.Content)}
		}
		close(ch)
		return ch, nil
	}
}

func historyDeleteHandler(sessMgr *sessions.Manager) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		sess, ok := inv.Context[CtxSession].(*model.Session)
		if !ok || sess == nil {
			return ErrorReply("no active session")
		}
		conv := sess.UsingConversation()
		var prompt []model.Message
		if conv != nil {
			prompt = conv.Prompt
		}
		sess.Reset(prompt)
		return TextReply("history cleared")
	}
}

func pluginListHandler(host *plugins.Host) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		if host == nil {
			return TextReply("(no plugins loaded)")
		}
		ids := host.RegisteredPlugins()
		if len(ids) == 0 {
			return TextReply("(no plugins loaded)")
		}
		ch := make(chan CommandReturn, len(ids))
		for _, id := range ids {
			ch <- CommandReturn{Text: id}
		}
		close(ch)
		return ch, nil
	}
}

func pluginEnableHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		return ErrorReply("plugin enable requires a restart in this deployment; re-add it to the plugins config")
	}
}

func pluginDisableHandler(host *plugins.Host) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		if len(inv.Args) == 0 {
			return ErrorReply("usage: plugin disable <plugin-id>")
		}
		host.Unregister(inv.Args[0])
		return TextReply(fmt.Sprintf("disabled plugin %q", inv.Args[0]))
	}
}

func modelListHandler(models ModelLister) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		if models == nil {
			return TextReply("(no models configured)")
		}
		names := models()
		if len(names) == 0 {
			return TextReply("(no models configured)")
		}
		return TextReply(strings.Join(names, ", "))
	}
}

func drawHandler(draw DrawFunc) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (<-chan CommandReturn, error) {
		if draw == nil {
			return ErrorReply("image generation is not configured")
		}
		prompt := strings.Join(inv.Args, " ")
		if strings.TrimSpace(prompt) == "" {
			return ErrorReply("usage: draw <prompt>")
		}
		img, err := draw(ctx, prompt)
		if err != nil {
			return ErrorReply(fmt.Sprintf("draw failed: %v", err))
		}
		return closedReturn(CommandReturn{Image: img}), nil
	}
}
