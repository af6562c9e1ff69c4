package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentgate/pkg/session"
)

func TestParseRequest(t *testing.T) {
	r := NewRPCRouter()

	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantCode int
	}{
		{"valid", `{"id":"1","method":"session.list","jsonrpc":"2.0"}`, false, 0},
		{"fills jsonrpc version", `{"id":"1","method":"session.list"}`, false, 0},
		{"invalid json", `{not json`, true, ParseError},
		{"missing id", `{"method":"session.list"}`, true, InvalidRequest},
		{"missing method", `{"id":"1"}`, true, InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := r.ParseRequest([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				var rpcErr *RPCError
				require.True(t, errors.As(err, &rpcErr))
				assert.Equal(t, tt.wantCode, rpcErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "2.0", req.JSONRPC)
		})
	}
}

func TestRouteRequest(t *testing.T) {
	r := NewRPCRouter()
	require.NoError(t, r.RegisterMethod("echo", func(params map[string]interface{}) (interface{}, error) {
		return params["value"], nil
	}))
	require.NoError(t, r.RegisterMethod("boom", func(params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("handler failed")
	}))

	resp := r.RouteRequest(&RPCRequest{ID: "1", Method: "echo", Params: map[string]interface{}{"value": "hi"}, JSONRPC: "2.0"})
	require.Nil(t, resp.Error)
	assert.Equal(t, "hi", resp.Result)
	assert.Equal(t, "1", resp.ID)

	resp = r.RouteRequest(&RPCRequest{ID: "2", Method: "boom", JSONRPC: "2.0"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InternalError, resp.Error.Code)

	resp = r.RouteRequest(&RPCRequest{ID: "3", Method: "nope", JSONRPC: "2.0"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestRegisterMethodRejectsNilHandler(t *testing.T) {
	r := NewRPCRouter()
	assert.Error(t, r.RegisterMethod("x", nil))
	assert.False(t, r.HasMethod("x"))
}

func TestToRPCErrorMapsSessionCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", session.ErrNotFound, SessionNotFound},
		{"expired", session.ErrExpired, SessionExpired},
		{"concurrent query", session.ErrConcurrentQuery, QueryInProgress},
		{"timeout", session.ErrTimeout, QueryTimeout},
		{"invalid tool set", session.InvalidToolSetError("finance"), InvalidParams},
		{"invalid query", session.ErrInvalidQuery, InvalidParams},
		{"execution failure", session.ExecutionError(errors.New("boom")), InternalError},
		{"plain error", errors.New("boom"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr := toRPCError(tt.err)
			assert.Equal(t, tt.want, rpcErr.Code)
		})
	}
}

func TestToRPCErrorCarriesSessionCode(t *testing.T) {
	rpcErr := toRPCError(session.ErrConcurrentQuery)
	data, ok := rpcErr.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "concurrent_query_in_progress", data["code"])
}

func TestToRPCErrorPassesThroughRPCErrors(t *testing.T) {
	orig := &RPCError{Code: InvalidParams, Message: "bad params"}
	assert.Same(t, orig, toRPCError(orig))
}
