package graph

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
)

type startKey struct{}

// LoggerCallback logs graph and node lifecycle. Inputs and outputs are only
// logged in debug mode.
type LoggerCallback struct {
	callbacks.HandlerBuilder

	Debug bool
}

func NewLoggerCallback(debug bool) *LoggerCallback {
	return &LoggerCallback{Debug: debug}
}

func runName(info *callbacks.RunInfo) string {
	if info == nil {
		return "?"
	}
	if info.Name != "" {
		return info.Name
	}
	return string(info.Component)
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if cb.Debug {
		log.Printf("[Orchestrator] start %s input=%+v", runName(info), input)
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		log.Printf("[Orchestrator] %s done in %s", runName(info), time.Since(start).Round(time.Millisecond))
	}
	if cb.Debug {
		log.Printf("[Orchestrator] %s output=%+v", runName(info), output)
	}
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	log.Printf("[Orchestrator] %s failed: %v", runName(info), err)
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close() // remember to close the stream in defer
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[Orchestrator] %s stream panic: %v", runName(info), err)
			}
		}()
		frames := 0
		for {
			_, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Printf("[Orchestrator] %s stream error: %v", runName(info), err)
				return
			}
			frames++
		}
		if cb.Debug {
			log.Printf("[Orchestrator] %s streamed %d frames", runName(info), frames)
		}
	}()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}
