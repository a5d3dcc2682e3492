package services_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"figurespeaker/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrProtocol, "mopidy", "core.tracklist.clear", "call failed", base)
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"mopidy", "core.tracklist.clear", "call failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.Wrap(services.ErrConflict, "engine", "start", "already running", nil), http.StatusConflict},
		{services.Wrap(services.ErrProtocol, "mopidy", "lookup", "", errors.New("eof")), http.StatusBadGateway},
		{services.Wrap(services.ErrValidation, "volume", "", "min exceeds max", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "figures", "", "unknown tag", nil), http.StatusNotFound},
		{services.Wrap(services.ErrUnavailable, "daemon", "", "store closed", nil), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := services.WithRequestID(services.WithTag(services.WithTrigger(context.Background(), "rfid"), "04a1"), "req-1")
	if v, ok := services.TriggerFromContext(ctx); !ok || v != "rfid" {
		t.Fatalf("trigger = %q, %v", v, ok)
	}
	if v, ok := services.TagFromContext(ctx); !ok || v != "04a1" {
		t.Fatalf("tag = %q, %v", v, ok)
	}
	if v, ok := services.RequestIDFromContext(ctx); !ok || v != "req-1" {
		t.Fatalf("request id = %q, %v", v, ok)
	}
	if _, ok := services.TagFromContext(services.WithTag(context.Background(), "")); ok {
		t.Fatal("expected empty tag to be ignored")
	}
}
