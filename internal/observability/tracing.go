package observability

import (
	"context"
	"time"

	"github.com/yuqie6/QuestLog/internal/pkg/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("questlog.core")

// Op 一次核心操作的追踪与计量
type Op struct {
	name    string
	span    trace.Span
	started time.Time
}

// StartOp 开启 span 并开始计时
func StartOp(ctx context.Context, name string, userID string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	attrs = append(attrs, attribute.String("user.id", userID))
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Op{name: name, span: span, started: time.Now()}
}

// SetAttributes 追加属性
func (o *Op) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End 结束 span；领域错误以 kind 作为结果标签
func (o *Op) End(err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, outcome)
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.span.SetAttributes(attribute.String("outcome", outcome))
	o.span.End()
	ObserveOperation(o.name, outcome, o.started)
}
