package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may enrich the context;
// returning an error skips the handler and sends the message to the DLQ.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error, took time.Duration)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message) (context.Context, error) {
	return ctx, nil
}

func (NoopHook) AfterHandle(context.Context, kafka.Message, error, time.Duration) {}

// HookChain runs hooks in order before handling and in reverse order after.
// A panicking hook is reported as an error instead of killing the worker.
type HookChain []ConsumerHook

func (c HookChain) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	for _, h := range c {
		next, err := safeBefore(h, ctx, km)
		if err != nil {
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (c HookChain) AfterHandle(ctx context.Context, km kafka.Message, err error, took time.Duration) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].AfterHandle(ctx, km, err, took)
		}()
	}
}

func safeBefore(h ConsumerHook, ctx context.Context, km kafka.Message) (out context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = ctx, fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h.BeforeHandle(ctx, km)
}

type ctxKey string

const ctxTraceID ctxKey = "kafka_trace_id"

// TraceHook copies the trace_id header into the handler context.
type TraceHook struct{}

func (TraceHook) BeforeHandle(ctx context.Context, km kafka.Message) (context.Context, error) {
	if id := HeaderValue(km, "trace_id"); id != "" {
		ctx = context.WithValue(ctx, ctxTraceID, id)
	}
	return ctx, nil
}

func (TraceHook) AfterHandle(context.Context, kafka.Message, error, time.Duration) {}

// TraceID returns the trace id placed by TraceHook, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(ctxTraceID).(string)
	return id
}

func HeaderValue(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
