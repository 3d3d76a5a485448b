// Package grpctrace instruments gRPC calls: server interceptors extract
// inbound trace context from metadata and wrap handlers in server
// spans, the client interceptor starts client spans and injects their
// context into outgoing metadata.
package grpctrace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	veltrace "github.com/veltrace/veltrace-go"
	"github.com/veltrace/veltrace-go/propagation"
)

// metadataCarrier adapts metadata.MD to the text carrier contracts.
type metadataCarrier metadata.MD

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) ForeachKey(handler func(key, value string) error) error {
	for k, values := range c {
		for _, v := range values {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnaryServerInterceptor traces unary inbound RPCs.
func UnaryServerInterceptor(tracer *veltrace.Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		span, ctx := startServerSpan(ctx, tracer, info.FullMethod)
		defer span.Finish()

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetTag("error", true)
			span.LogKV("event", "error", "message", err.Error())
		}
		return resp, err
	}
}

// StreamServerInterceptor traces streaming inbound RPCs.
func StreamServerInterceptor(tracer *veltrace.Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		span, ctx := startServerSpan(ss.Context(), tracer, info.FullMethod)
		defer span.Finish()
		span.SetTag("rpc.streaming", true)

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		if err != nil {
			span.SetTag("error", true)
			span.LogKV("event", "error", "message", err.Error())
		}
		return err
	}
}

// UnaryClientInterceptor traces unary outbound RPCs and propagates the
// span context through outgoing metadata.
func UnaryClientInterceptor(tracer *veltrace.Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		builder := tracer.BuildSpan(method).
			WithTag(veltrace.TagSpanKind, "client").
			WithTag("rpc.system", "grpc")
		if parent := veltrace.SpanFromContext(ctx); parent != nil {
			builder.AsChildOf(parent.Context())
		}
		span := builder.Start()
		defer span.Finish()

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.New(nil)
		}
		_ = tracer.Inject(span.Context(), propagation.TextMap, metadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.SetTag("error", true)
			span.LogKV("event", "error", "message", err.Error())
		}
		return err
	}
}

func startServerSpan(ctx context.Context, tracer *veltrace.Tracer, method string) (*veltrace.Span, context.Context) {
	builder := tracer.BuildSpan(method).
		WithTag(veltrace.TagSpanKind, veltrace.SpanKindServer).
		WithTag("rpc.system", "grpc")

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if parent, err := tracer.Extract(propagation.TextMap, metadataCarrier(md)); err == nil {
			builder.AsChildOf(parent)
		}
	}

	span := builder.Start()
	return span, veltrace.ContextWithSpan(ctx, span)
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}
