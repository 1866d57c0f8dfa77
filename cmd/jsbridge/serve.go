package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/cryguy/jsbridge"
	"github.com/cryguy/jsbridge/host"
)

// maxREPLMessageBytes bounds a single evaluated message.
const maxREPLMessageBytes = 1 << 20

// replReply is written back for every message a client sends.
type replReply struct {
	Session string `json:"session"`
	Result  string `json:"result,omitempty"`
	Console string `json:"console,omitempty"`
	Error   string `json:"error,omitempty"`
}

func serveCommand(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envString("JSBRIDGE_ADDR", ":8080"), "listen address")
	timeoutMs := fs.Int64("timeout", envInt("JSBRIDGE_TIMEOUT_MS", 5000), "execution budget per message in milliseconds")
	session := fs.Duration("session", 10*time.Minute, "maximum lifetime of a REPL connection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newREPLHandler(jsbridge.Config{TimeoutMs: *timeoutMs}, *session),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("jsbridge: serving REPL on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

type replHandler struct {
	cfg     jsbridge.Config
	session time.Duration
}

func newREPLHandler(cfg jsbridge.Config, session time.Duration) http.Handler {
	return &replHandler{cfg: cfg, session: session}
}

func (rh *replHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("jsbridge: accepting websocket: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxREPLMessageBytes)

	ctx, cancel := context.WithTimeout(r.Context(), rh.session)
	defer cancel()
	if err := rh.serveSession(ctx, conn); err != nil {
		log.Printf("jsbridge: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// serveSession evaluates every text message on a runtime private to the
// connection. The runtime is driven only from this goroutine; the reader
// goroutine just forwards messages.
func (rh *replHandler) serveSession(ctx context.Context, conn *websocket.Conn) error {
	id := uuid.NewString()
	var console bytes.Buffer
	h, err := host.New(host.Config{
		Config:      rh.cfg,
		Console:     &console,
		OnRejection: func(reason string) { fmt.Fprintf(&console, "[UNHANDLED] %s\n", reason) },
	})
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	defer h.Close()

	type message struct {
		typ  websocket.MessageType
		data []byte
	}
	incoming := make(chan message, 16)
	go func() {
		defer close(incoming)
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			select {
			case incoming <- message{typ: typ, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			reply := replReply{Session: id}
			if msg.typ != websocket.MessageText {
				reply.Error = "only text messages are evaluated"
			} else {
				reply.Result, err = h.Eval(string(msg.data), "<repl>", false)
				if err != nil {
					reply.Error = err.Error()
				}
				runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
				_ = h.Run(runCtx)
				cancel()
			}
			reply.Console = console.String()
			console.Reset()

			data, err := json.Marshal(reply)
			if err != nil {
				return fmt.Errorf("session %s: encoding reply: %w", id, err)
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
