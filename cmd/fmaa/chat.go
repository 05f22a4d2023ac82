package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/fmaa-labs/fmaa-chat/internal/protocol"
)

const chatHelp = `Commands: /model <name>, /reset, /quit`

func newChatCmd() *cobra.Command {
	var (
		serverURL string
		agentID   string
		model     string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), chatOptions{
				URL:   serverURL,
				Agent: agentID,
				Model: model,
				In:    cmd.InOrStdin(),
				Out:   cmd.OutOrStdout(),
				Err:   cmd.ErrOrStderr(),
			})
		},
	}
	cmd.Flags().StringVar(&serverURL, "url", "ws://localhost:5000/ws", "chat websocket URL")
	cmd.Flags().StringVar(&agentID, "agent", "", "stored agent id to chat with")
	cmd.Flags().StringVar(&model, "model", "", "switch to this model after connecting")
	return cmd
}

type chatOptions struct {
	URL   string
	Agent string
	Model string
	In    io.Reader
	Out   io.Writer
	Err   io.Writer
}

func chatURL(raw, agentID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if agentID != "" {
		q := u.Query()
		q.Set("agent", agentID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// parseInput turns one line of user input into a client event. quit is true
// for /quit.
func parseInput(line string) (event string, payload any, quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", nil, false
	case line == "/quit" || line == "/exit":
		return "", nil, true
	case line == "/reset":
		return protocol.EventResetConversation, struct{}{}, false
	case strings.HasPrefix(line, "/model "):
		return protocol.EventSwitchModel, protocol.SwitchModel{Model: strings.TrimSpace(strings.TrimPrefix(line, "/model "))}, false
	}
	return protocol.EventSendMessage, protocol.SendMessage{Message: line, Timestamp: protocol.Now()}, false
}

func runChat(ctx context.Context, opts chatOptions) error {
	target, err := chatURL(opts.URL, opts.Agent)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	send := func(event string, payload any) error {
		frame, err := protocol.Encode(event, payload)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, frame)
	}

	var pending replies
	readErr := make(chan error, 1)
	go func() {
		readErr <- printEvents(ctx, conn, opts.Out, opts.Err, pending.observe)
		cancel()
	}()

	_, _ = fmt.Fprintln(opts.Out, "Connected to", target)
	_, _ = fmt.Fprintln(opts.Out, chatHelp)
	if opts.Model != "" {
		if err := send(protocol.EventSwitchModel, protocol.SwitchModel{Model: opts.Model}); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				// Input ended; let replies to what was already sent finish.
				return pending.wait(ctx, readErr)
			}
			event, payload, quit := parseInput(line)
			if quit {
				return nil
			}
			if event == "" {
				continue
			}
			if event == protocol.EventSendMessage {
				pending.sent()
			}
			if err := send(event, payload); err != nil {
				return fmt.Errorf("send %s: %w", event, err)
			}
		}
	}
}

// replies counts sent messages still waiting for message_complete or
// message_error. conversation_reset settles everything before it.
type replies struct {
	mu      sync.Mutex
	pending int
	changed chan struct{}
}

func (r *replies) init() {
	if r.changed == nil {
		r.changed = make(chan struct{}, 1)
	}
}

func (r *replies) sent() {
	r.mu.Lock()
	r.init()
	r.pending++
	r.mu.Unlock()
}

func (r *replies) observe(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	switch event {
	case protocol.EventMessageComplete, protocol.EventMessageError:
		if r.pending > 0 {
			r.pending--
		}
	case protocol.EventConversationReset:
		r.pending = 0
	default:
		return
	}
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

func (r *replies) outstanding() (int, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	return r.pending, r.changed
}

// wait blocks until no replies are outstanding, the connection ends or ctx
// is cancelled.
func (r *replies) wait(ctx context.Context, readErr <-chan error) error {
	for {
		n, changed := r.outstanding()
		if n == 0 {
			return nil
		}
		select {
		case <-changed:
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// printEvents renders server events until the connection closes. observe
// sees every event name after it is rendered.
func printEvents(ctx context.Context, conn *websocket.Conn, out, errOut io.Writer, observe func(string)) error {
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) != -1 {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		renderEvent(env, out, errOut)
		if observe != nil {
			observe(env.Event)
		}
	}
}

func renderEvent(env protocol.Envelope, out, errOut io.Writer) {
	switch env.Event {
	case protocol.EventMessageStart:
		_, _ = fmt.Fprint(out, "agent> ")
	case protocol.EventMessageChunk:
		var msg protocol.MessageChunk
		if json.Unmarshal(env.Data, &msg) == nil {
			_, _ = fmt.Fprint(out, msg.Chunk)
		}
	case protocol.EventMessageComplete:
		_, _ = fmt.Fprintln(out)
	case protocol.EventMessageError:
		var msg protocol.MessageError
		if json.Unmarshal(env.Data, &msg) == nil {
			_, _ = fmt.Fprintln(errOut, "error:", msg.Error)
		}
	case protocol.EventModelSwitched:
		var msg protocol.ModelSwitched
		if json.Unmarshal(env.Data, &msg) == nil {
			_, _ = fmt.Fprintln(out, "model switched to", msg.Model)
		}
	case protocol.EventConversationReset:
		_, _ = fmt.Fprintln(out, "conversation reset")
	}
}
