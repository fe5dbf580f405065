package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"webhook-chat/internal/conversation"
	"webhook-chat/internal/history"
	"webhook-chat/internal/logger"
	"webhook-chat/internal/terminal"
)

const helpText = `Commands:
  /config [url]  show the config, or set a new webhook URL
  /session       show the session id
  /history       print the whole conversation
  /clear         delete the conversation
  /help          this text
  /exit, /quit   leave`

func runREPL(a *app) error {
	in := terminal.NewReader(a.in)
	d := a.display

	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(done)
	}()
	go func() {
		select {
		case <-sigChan:
			d.PrintInfo("\nShutting down gracefully...")
			a.Close()
			os.Exit(0)
		case <-done:
		}
	}()

	cancel := a.ctrl.Subscribe(func(ev conversation.Event) {
		switch ev.Kind {
		case conversation.EventConfigRequired:
			d.PrintWarning("No webhook URL configured. Use /config <url> to set one.")
		case conversation.EventConfigChanged:
			logger.DebugCF("repl", "Config changed", map[string]interface{}{
				"session_id": ev.State.Config.SessionID,
			})
		}
	})
	defer cancel()

	d.PrintWelcome(a.ctrl.Snapshot().Config)

	if a.ctrl.NeedsConfiguration() {
		if err := promptWebhookURL(a, in); err != nil {
			return err
		}
	}

	if msgs := a.ctrl.Snapshot().Messages; len(msgs) > 0 {
		d.PrintHistory(msgs)
	}

	for {
		d.PrintPrompt()
		line, err := in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.PrintGoodbye()
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") || input == "exit" || input == "quit" {
			if done := handleCommand(a, in, input); done {
				d.PrintGoodbye()
				return nil
			}
			continue
		}

		a.ctrl.SetDraft(line)
		ex, err := a.ctrl.Send(line)
		switch {
		case errors.Is(err, conversation.ErrConfigRequired):
			// The ConfigRequired listener already told the user.
			continue
		case err != nil:
			d.PrintError(err)
			continue
		}

		d.PrintMessage(ex.Request)
		d.PrintWaiting()
		d.PrintReply(ex.Wait())
	}
}

// handleCommand runs one slash command and reports whether to leave the loop.
func handleCommand(a *app, in *terminal.Reader, input string) bool {
	d := a.display
	fields := strings.Fields(input)

	switch fields[0] {
	case "/exit", "/quit", "exit", "quit":
		return true

	case "/help":
		d.PrintInfo(helpText)

	case "/history":
		d.PrintHistory(a.ctrl.Snapshot().Messages)

	case "/session":
		d.PrintInfo("Session: " + a.ctrl.Snapshot().Config.SessionID)

	case "/config":
		if len(fields) == 1 {
			d.PrintConfig(a.ctrl.Snapshot().Config)
			return false
		}
		setWebhookURL(a, fields[1])

	case "/clear":
		d.PrintWarning("Delete the whole conversation? [y/N]")
		if !in.Confirm() {
			d.PrintInfo("Kept the conversation")
			return false
		}
		if err := a.ctrl.ClearConversation(); err != nil {
			d.PrintError(err)
			return false
		}
		d.PrintSuccess("Conversation cleared")

	default:
		d.PrintWarning(fmt.Sprintf("Unknown command %s, try /help", fields[0]))
	}
	return false
}

// promptWebhookURL asks for a URL until one is given. An empty answer skips
// the prompt; sends are then refused until /config sets one.
func promptWebhookURL(a *app, in *terminal.Reader) error {
	d := a.display
	d.PrintInfo("Enter your n8n chat webhook URL (empty to skip):")
	d.PrintPrompt()

	line, err := in.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	url := strings.TrimSpace(line)
	if url == "" {
		return nil
	}
	setWebhookURL(a, url)
	return nil
}

func setWebhookURL(a *app, url string) {
	if err := a.ctrl.UpdateConfig(history.ChatConfig{WebhookURL: url}); err != nil {
		a.display.PrintError(err)
		return
	}
	a.display.PrintSuccess("Webhook URL saved")
}
