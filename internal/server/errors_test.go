package server

import (
	"context"
	"fmt"
	"testing"

	"connectrpc.com/connect"
	"github.com/mlop-ai/pluto/internal/auth"
	"github.com/mlop-ai/pluto/internal/cache"
	"github.com/mlop-ai/pluto/internal/clickhouse"
	"github.com/mlop-ai/pluto/internal/runid"
	"github.com/mlop-ai/pluto/internal/store"
	"github.com/stretchr/testify/require"
)

func TestToConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
		msg  string
	}{
		{"validation", invalid("name", "is required"), connect.CodeInvalidArgument, "name: is required"},
		{"bad run id", fmt.Errorf("decode: %w", runid.ErrInvalidIdentifier), connect.CodeInvalidArgument, "runId: invalid identifier"},
		{"forbidden hides reason", fmt.Errorf("%w: delete dashboard_view: not creator or admin", auth.ErrForbidden), connect.CodePermissionDenied, "permission denied"},
		{"unauthenticated", auth.ErrUnauthenticated, connect.CodeUnauthenticated, "authentication required"},
		{"wrapped not found", fmt.Errorf("lookup: %w", store.ErrViewNotFound), connect.CodeNotFound, store.ErrViewNotFound.Error()},
		{"already exists", store.ErrViewAlreadyExists, connect.CodeAlreadyExists, store.ErrViewAlreadyExists.Error()},
		{"default view race", fmt.Errorf("create: %w", store.ErrViewConflict), connect.CodeAborted, store.ErrViewConflict.Error()},
		{"clickhouse down", fmt.Errorf("%w: dial tcp", clickhouse.ErrUnavailable), connect.CodeUnavailable, "upstream unavailable"},
		{"database down", fmt.Errorf("%w: pool closed", store.ErrUnavailable), connect.CodeUnavailable, "upstream unavailable"},
		{"cache params", cache.ErrInvalidParams, connect.CodeInternal, "internal error"},
		{"deadline", context.DeadlineExceeded, connect.CodeDeadlineExceeded, ""},
		{"unknown", fmt.Errorf("boom"), connect.CodeInternal, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toConnectError(tt.err)
			require.Equal(t, tt.code, connect.CodeOf(err))
			if tt.msg != "" {
				require.Equal(t, tt.msg, connectMessage(err))
			}
		})
	}

	require.NoError(t, toConnectError(nil))

	passthrough := connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no active organization"))
	require.Same(t, passthrough, toConnectError(passthrough))
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	require.Equal(t, "json", codec.Name())

	var req GetViewRequest
	require.NoError(t, codec.Unmarshal([]byte(`{"viewId":"7"}`), &req))
	require.Equal(t, "7", req.ViewID)

	require.NoError(t, codec.Unmarshal([]byte("  "), &req))
	require.Error(t, codec.Unmarshal([]byte(`{"viewId":"7","extra":1}`), &req))

	out, err := codec.Marshal(&ResolveRunResponse{RunID: "abc", InternalID: "12"})
	require.NoError(t, err)
	require.JSONEq(t, `{"runId":"abc","internalId":"12"}`, string(out))
}
