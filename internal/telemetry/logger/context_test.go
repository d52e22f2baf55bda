package logger

import (
	"context"
	"testing"
)

func TestWithLogger_FromContext(t *testing.T) {
	l, buf := newJSONLogger(t, "info")

	ctx := WithLogger(context.Background(), l)
	FromContext(ctx).Info("test message")

	if buf.Len() == 0 {
		t.Error("Logger from context should produce output")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext should fall back to the default logger")
	}
}

func TestContextIDs(t *testing.T) {
	ctx := WithConnID(context.Background(), "01HZX0CONN")
	ctx = WithRequestID(ctx, "req-1")

	if got := ConnIDFromContext(ctx); got != "01HZX0CONN" {
		t.Errorf("ConnIDFromContext() = %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext() = %q", got)
	}
	if ConnIDFromContext(context.Background()) != "" {
		t.Error("empty context should have no conn id")
	}
}

func TestL_EnrichesWithIDs(t *testing.T) {
	tests := []struct {
		name    string
		connID  string
		reqID   string
		present []string
		absent  []string
	}{
		{"conn only", "c1", "", []string{"conn_id"}, []string{"request_id"}},
		{"request only", "", "r1", []string{"request_id"}, []string{"conn_id"}},
		{"none", "", "", nil, []string{"conn_id", "request_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newJSONLogger(t, "info")
			ctx := WithLogger(context.Background(), l)
			if tt.connID != "" {
				ctx = WithConnID(ctx, tt.connID)
			}
			if tt.reqID != "" {
				ctx = WithRequestID(ctx, tt.reqID)
			}

			L(ctx).Info("message")
			entry := decodeLine(t, buf)
			for _, k := range tt.present {
				if _, ok := entry[k]; !ok {
					t.Errorf("missing %s in %v", k, entry)
				}
			}
			for _, k := range tt.absent {
				if _, ok := entry[k]; ok {
					t.Errorf("unexpected %s in %v", k, entry)
				}
			}
		})
	}
}
