package cerr

import (
	"context"
	"errors"

	"connectrpc.com/connect"
)

// connectErrorInterceptor turns handler errors into connect errors carrying
// the cerr code and details. Errors a handler already shaped as
// *connect.Error pass through untouched; the client side is left alone.
type connectErrorInterceptor struct{}

func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return connectErrorInterceptor{}
}

func (connectErrorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		resp, err := next(ctx, req)
		return resp, toConnectError(ctx, err)
	}
}

func (connectErrorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (connectErrorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return toConnectError(ctx, next(ctx, conn))
	}
}

func toConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); !ok {
		var ce *connect.Error
		if errors.As(err, &ce) {
			return ce
		}
	}
	return ExtractConnectError(ctx, err)
}
