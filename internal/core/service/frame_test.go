package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

func TestDecodeEnvelope(t *testing.T) {
	r := NewRouter(NewRegistry(), NewTracker(nil), nil, nil)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"valid offer", `{"type":"offer","from":"a","to":"b","payload":{"sdp":"v=0"}}`, nil},
		{"unknown fields ignored", `{"type":"candidate","from":"a","to":"b","payload":{},"extra":1}`, nil},
		{"not json", `{"type":`, domain.ErrMalformedEnvelope},
		{"missing to", `{"type":"offer","from":"a","payload":{}}`, domain.ErrMalformedEnvelope},
		{"missing from", `{"type":"offer","to":"b","payload":{}}`, domain.ErrMalformedEnvelope},
		{"missing type", `{"from":"a","to":"b","payload":{}}`, domain.ErrMalformedEnvelope},
		{"self addressed", `{"type":"offer","from":"a","to":"a","payload":{}}`, domain.ErrMalformedEnvelope},
		{"missing payload", `{"type":"offer","from":"a","to":"b"}`, domain.ErrMalformedEnvelope},
		{"payload not object", `{"type":"offer","from":"a","to":"b","payload":"sdp"}`, domain.ErrMalformedEnvelope},
		{"unsupported type", `{"type":"chat","from":"a","to":"b","payload":{}}`, domain.ErrUnsupportedMessageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := r.DecodeEnvelope([]byte(tt.raw))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if env.From != "a" || env.To != "b" {
					t.Fatalf("env = %+v", env)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandleFrame_ErrorFrameKeepsConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.router.HandleFrame(ctx, f.alice, []byte(`not json`))
	_ = f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"chat","from":"alice","to":"bob","payload":{}}`))
	_ = f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"offer","from":"alice","to":"carol","payload":{}}`))

	errs := f.alice.Errors()
	want := []string{domain.CodeMalformedEnvelope, domain.CodeUnsupportedMessageType, domain.CodeUnknownTarget}
	if len(errs) != len(want) {
		t.Fatalf("error frames = %+v", errs)
	}
	for i, code := range want {
		if errs[i].Code != code {
			t.Errorf("error %d code = %s, want %s", i, errs[i].Code, code)
		}
	}
	if errs[2].Peer != "carol" {
		t.Errorf("unknown target error addressed to %q", errs[2].Peer)
	}

	if err := f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"offer","from":"alice","to":"bob","payload":{"sdp":"v=0"}}`)); err != nil {
		t.Fatalf("valid frame after errors: %v", err)
	}
	if len(f.bob.Signals()) != 1 {
		t.Fatalf("bob did not receive the offer")
	}
}

func TestHandleFrame_Bye(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"offer","from":"alice","to":"bob","payload":{"sdp":"v=0"}}`))

	if err := f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"bye","from":"alice","to":"bob"}`)); err != nil {
		t.Fatalf("bye: %v", err)
	}
	if f.router.Tracker().Len() != 0 {
		t.Fatalf("bye did not tear down the session")
	}
	if byes := f.bob.Byes(); len(byes) != 1 || byes[0] != "alice" {
		t.Fatalf("bob byes = %v", byes)
	}

	err := f.router.HandleFrame(ctx, f.alice, []byte(`{"type":"bye","from":"bob","to":"alice"}`))
	if !errors.Is(err, domain.ErrSenderMismatch) {
		t.Fatalf("spoofed bye: %v", err)
	}
}
