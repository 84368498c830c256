package remote

import (
	"context"
	"errors"
	"testing"

	"advisory.org/internal/consult"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestMapError(t *testing.T) {
	list, err := structpb.NewList([]any{"Advisor name='' cannot be empty."})
	if err != nil {
		t.Fatal(err)
	}
	withDetail, err := status.New(codes.InvalidArgument, "invalid payload").WithDetails(list)
	if err != nil {
		t.Fatal(err)
	}
	plain := errors.New("boom")

	tests := []struct {
		name string
		in   error
		is   error
	}{
		{"not found", status.Error(codes.NotFound, "Legal advisor with id=9 not found"), consult.ErrNotFound},
		{"permission denied", status.Error(codes.PermissionDenied, "nope"), consult.ErrNotAuthorized},
		{"invalid without detail", status.Error(codes.InvalidArgument, "bad"), consult.ErrInvalidPayload},
		{"invalid with detail", withDetail.Err(), consult.ErrInvalidPayload},
		{"non-status error", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.in); !errors.Is(got, tt.is) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.in, got, tt.is)
			}
		})
	}

	v := consult.Violations(mapError(withDetail.Err()))
	if len(v) != 1 || v[0] != "Advisor name='' cannot be empty." {
		t.Fatalf("unexpected violations %v", v)
	}

	unavailable := status.Error(codes.Unavailable, "down")
	if got := mapError(unavailable); status.Code(got) != codes.Unavailable {
		t.Fatalf("unmapped codes must pass through, got %v", got)
	}
}

func TestCallRoundTripsArgs(t *testing.T) {
	closed := true
	in := Args{ID: 3, ClosedAt: 1_700_000_000_123_456_789, IsAvailable: &closed, Text: "hi"}
	req, err := EncodeCall(MethodCloseConsultation, in)
	if err != nil {
		t.Fatal(err)
	}
	method, out, err := DecodeCall(req)
	if err != nil {
		t.Fatal(err)
	}
	if method != MethodCloseConsultation || out.ID != 3 || out.ClosedAt != in.ClosedAt || out.IsAvailable == nil || !*out.IsAvailable {
		t.Fatalf("unexpected decoded call %s %+v", method, out)
	}

	if _, _, err := DecodeCall(&structpb.Struct{}); err == nil {
		t.Fatal("expected error for call without method")
	}
}

func TestClientWithoutConnection(t *testing.T) {
	var c *Client
	if err := c.Call(context.Background(), MethodListAdvisors, Args{}, nil); !errors.Is(err, errNoConn) {
		t.Fatalf("expected errNoConn, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
}
