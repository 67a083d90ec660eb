package logger

import (
	"context"
	"errors"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

// Setup builds the process logger. dev switches to debug level and a
// console writer.
func Setup(dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Fields adds request-scoped fields, e.g. the caller's user and organization,
// to the procedure log line.
type Fields func(ctx context.Context, e *zerolog.Event)

var _ connect.Interceptor = (*ConnectRequests)(nil)

// ConnectRequests logs one line per procedure call with its duration and code.
type ConnectRequests struct {
	logger zerolog.Logger
	fields Fields
}

func NewConnectRequests(logger zerolog.Logger, fields Fields) *ConnectRequests {
	return &ConnectRequests{logger: logger, fields: fields}
}

func (c *ConnectRequests) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		started := time.Now()

		ctx = c.logger.With().
			Str("procedure", req.Spec().Procedure).
			Str("protocol", req.Peer().Protocol).
			Str("addr", req.Peer().Addr).
			Logger().WithContext(ctx)

		resp, err := next(ctx, req)

		code := "ok"
		ev := zerolog.Ctx(ctx).Info()
		if err != nil {
			errCode := connect.CodeOf(err)
			code = errCode.String()
			ev = zerolog.Ctx(ctx).Warn()
			if serverFault(errCode) {
				ev = zerolog.Ctx(ctx).Error()
			}
			ev = ev.Err(err)
		}
		if c.fields != nil {
			c.fields(ctx, ev)
		}

		ev.Str("code", code).Dur("duration", time.Since(started)).Msg("rpc call")
		return resp, err
	}
}

// WrapStreamingClient is a no-op; the server only makes unary calls.
func (c *ConnectRequests) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (c *ConnectRequests) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		started := time.Now()

		ctx = c.logger.With().
			Str("procedure", conn.Spec().Procedure).
			Str("protocol", conn.Peer().Protocol).
			Logger().WithContext(ctx)

		err := next(ctx, conn)
		if err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Dur("duration", time.Since(started)).Msg("rpc stream")
			return err
		}

		zerolog.Ctx(ctx).Info().Dur("duration", time.Since(started)).Msg("rpc stream")
		return err
	}
}

func serverFault(code connect.Code) bool {
	switch code {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss, connect.CodeUnavailable:
		return true
	}
	return false
}
