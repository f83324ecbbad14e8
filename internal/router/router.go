// Package router dispatches a message to the first registered handler that
// accepts its topic.
package router

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/provenance-updater/internal/domain"
	"github.com/yungbote/provenance-updater/internal/observability"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

type Handler interface {
	Name() string
	CanHandle(topic string) bool
	Handle(ctx context.Context, msg Message) error
}

// Router evaluates handlers in registration order; the first match wins.
type Router struct {
	handlers []Handler
	log      *logger.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

func New(log *logger.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		log:     log.With("component", "Router"),
		metrics: metrics,
		tracer:  otel.Tracer("provenance-updater/router"),
	}
}

func (r *Router) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	name := h.Name()
	if name == "" {
		return fmt.Errorf("handler Name() is empty")
	}
	for _, have := range r.handlers {
		if have.Name() == name {
			return fmt.Errorf("handler already registered: %s", name)
		}
	}
	r.handlers = append(r.handlers, h)
	return nil
}

// Handlers lists the registered handlers in evaluation order.
func (r *Router) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// Route returns the first handler accepting topic.
func (r *Router) Route(topic string) (Handler, bool) {
	for _, h := range r.handlers {
		if h.CanHandle(topic) {
			return h, true
		}
	}
	return nil, false
}

// Process routes msg and runs its handler to completion.
func (r *Router) Process(ctx context.Context, msg Message) (err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "router.process", trace.WithAttributes(
		attribute.String("message.topic", msg.Topic),
		attribute.String("message.id", msg.ID),
	))
	defer span.End()

	h, ok := r.Route(msg.Topic)
	handlerName := ""
	if ok {
		handlerName = h.Name()
		span.SetAttributes(attribute.String("handler", handlerName))
	}
	log := r.log.With("topic", msg.Topic, "message_id", msg.ID, "handler", handlerName)

	r.metrics.InProgressInc()
	defer func() {
		r.metrics.InProgressDec()
		code := domain.CodeOf(err)
		if err != nil && code == "" {
			code = domain.CodeInternal
		}
		r.metrics.ObserveMessage(handlerName, string(code), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(code))
		}
	}()

	if !ok {
		log.Warn("unroutable message dropped")
		return domain.Unroutable(msg.Topic)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("handler panic", "panic", rec)
			err = domain.NewError(domain.CodeInternal, handlerName, fmt.Sprintf("panic: %v", rec), nil)
		}
	}()

	if err = h.Handle(ctx, msg); err != nil {
		log.Warn("message failed", "code", domain.CodeOf(err), "error", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	log.Info("message processed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
