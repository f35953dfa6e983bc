// Command agentd is a runnable demo host binding: it wires a trivial echo
// agent into the Agent Enhancer and serves the seven routes over chi.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/agentruntime/core/internal/httpapi"
	"github.com/agentruntime/core/internal/telemetry"
	"github.com/agentruntime/core/runtime/agent/enhancer"
	"github.com/agentruntime/core/runtime/agent/store"
	"github.com/agentruntime/core/runtime/agent/stream"
)

const shutdownTimeout = 10 * time.Second

// echoAgent is the example ExecRunner: it replies with one chunk joining
// the caller's user-role input, followed by a usage chunk, just enough to
// exercise every route over HTTP.
type echoAgent struct {
	enhancer.Base
}

func (a *echoAgent) ExecRun(ctx context.Context, input []store.InputMessage, cancel <-chan struct{}) (<-chan stream.Chunk, error) {
	ch := make(chan stream.Chunk)
	go func() {
		defer close(ch)
		var texts []string
		for _, msg := range input {
			if msg.Role != store.RoleUser {
				continue
			}
			texts = append(texts, msg.Content.String())
		}
		reply := fmt.Sprintf("echo: %s", strings.Join(texts, " | "))
		select {
		case ch <- stream.Chunk{Type: "assistant", Message: &stream.ChunkMessage{Role: store.RoleAssistant, Content: store.NewInputText(reply)}}:
		case <-cancel:
			return
		case <-ctx.Done():
			return
		}
		select {
		case ch <- stream.Chunk{Type: "result", Usage: &stream.ChunkUsage{PromptTokens: len(texts), CompletionTokens: 1}}:
		case <-cancel:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func main() {
	addrF := flag.String("addr", ":8080", "HTTP listen address")
	dataDirF := flag.String("data-dir", "", "Data directory for the default file store (defaults to TEGG_AGENT_DATA_DIR or ./.agent-data)")
	dbgF := flag.Bool("debug", false, "Enable debug-level logging")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	agent := &echoAgent{}
	if err := enhancer.Enhance(agent,
		enhancer.WithStore(store.NewFileStore(*dataDirF)),
		enhancer.WithLogger(telemetry.NewClueLogger()),
		enhancer.WithTracer(telemetry.NewClueTracer()),
		enhancer.WithMetrics(telemetry.NewClueMetrics()),
	); err != nil {
		log.Fatal(ctx, fmt.Errorf("enhancing agent: %w", err))
	}

	srv := &http.Server{Addr: *addrF, Handler: httpapi.NewRouter(agent.Handlers())}

	errc := make(chan error, 1)
	go func() {
		log.Print(ctx, log.KV{K: "addr", V: *addrF})
		errc <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, err)
		}
	case sig := <-sigc:
		log.Print(ctx, log.KV{K: "signal", V: sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "graceful shutdown failed"})
	}
	if err := enhancer.Teardown(shutdownCtx, agent); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "agent teardown failed"})
	}
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
}
