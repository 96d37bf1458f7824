package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/orderdesk/api/internal/auth"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/middleware"
)

type mockResolver struct {
	resolveFn func(ctx context.Context, token string) (*auth.Principal, error)
	calls     int
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (*auth.Principal, error) {
	m.calls++
	return m.resolveFn(ctx, token)
}

func sessionRequest(token string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	return req
}

func TestSession_AttachesPrincipal(t *testing.T) {
	want := &auth.Principal{SessionID: uuid.New(), UserID: uuid.New(), Username: "admin"}
	resolver := &mockResolver{resolveFn: func(ctx context.Context, token string) (*auth.Principal, error) {
		if token != "good-token" {
			t.Errorf("token: got %q, want good-token", token)
		}
		return want, nil
	}}

	var got *auth.Principal
	handler := middleware.Session(resolver, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.PrincipalFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest("good-token"))

	if got != want {
		t.Errorf("principal: got %+v, want %+v", got, want)
	}
}

func TestSession_NoCookieSkipsLookup(t *testing.T) {
	resolver := &mockResolver{}

	called := false
	handler := middleware.Session(resolver, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if middleware.PrincipalFromContext(r.Context()) != nil {
			t.Error("expected no principal")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest(""))

	if !called {
		t.Fatal("handler not called")
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0", resolver.calls)
	}
}

func TestSession_UnresolvableSessionIsAnonymous(t *testing.T) {
	errs := []error{auth.ErrSessionNotFound, auth.ErrInvalidSession, errors.New("redis down")}
	for _, resolveErr := range errs {
		t.Run(resolveErr.Error(), func(t *testing.T) {
			resolver := &mockResolver{resolveFn: func(ctx context.Context, token string) (*auth.Principal, error) {
				return nil, resolveErr
			}}

			called := false
			handler := middleware.Session(resolver, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if middleware.PrincipalFromContext(r.Context()) != nil {
					t.Error("expected no principal")
				}
			}))
			handler.ServeHTTP(httptest.NewRecorder(), sessionRequest("revoked"))

			if !called {
				t.Fatal("handler not called")
			}
		})
	}
}

func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if body := rr.Body.String(); body != "{\"error\":\"Unauthorized\"}\n" {
		t.Errorf("body: got %q", body)
	}
}

func TestRequireAuth_AllowsPrincipal(t *testing.T) {
	handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), &auth.Principal{Username: "admin"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
}
