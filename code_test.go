package oauthkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauthkit/oauthkit/ormstore"
)

func TestValidateCodeRequestBroken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ctx := context.Background()
	client := registerWebClient(t, srv, "http://a.example/cb", "http://b.example/cb")

	tests := []struct {
		name     string
		req      CodeRequest
		wantCode string
	}{
		{
			name:     "missing response type",
			req:      CodeRequest{ClientID: client.ID()},
			wantCode: ErrorCodeMissingResponseType,
		},
		{
			name:     "unsupported response type",
			req:      CodeRequest{ResponseType: "token", ClientID: client.ID()},
			wantCode: ErrorCodeInvalidResponseType,
		},
		{
			name:     "missing client id",
			req:      CodeRequest{ResponseType: ResponseTypeCode},
			wantCode: ErrorCodeMissingClientID,
		},
		{
			name:     "unknown client id",
			req:      CodeRequest{ResponseType: ResponseTypeCode, ClientID: "who"},
			wantCode: ErrorCodeInvalidClientID,
		},
		{
			name:     "no redirect with several registered",
			req:      CodeRequest{ResponseType: ResponseTypeCode, ClientID: client.ID()},
			wantCode: ErrorCodeMissingRedirectURI,
		},
		{
			name: "unregistered redirect",
			req: CodeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     client.ID(),
				RedirectURI:  "http://evil.example/cb",
			},
			wantCode: ErrorCodeInvalidRedirectURI,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := srv.ValidateCodeRequest(ctx, tt.req)
			assert.Nil(t, grant, "broken requests must not yield a grant")
			verr := AsValidationError(err)
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Equal(t, SeverityBroken, verr.Severity)
		})
	}
}

func TestValidateCodeRequestScope(t *testing.T) {
	srv, _ := newTestServer(t, Config{Scopes: []string{"user_ro", "user_rw"}})
	ctx := context.Background()
	client := registerWebClient(t, srv)

	tests := []struct {
		name     string
		scope    string
		wantCode string
	}{
		{"missing scope", "", ErrorCodeMissingScope},
		{"unknown scope", "admin", ErrorCodeInvalidScope},
		{"partially unknown scope", "user_ro admin", ErrorCodeInvalidScope},
		{"valid single", "user_ro", ""},
		{"valid multiple", "user_ro user_rw", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := srv.ValidateCodeRequest(ctx, CodeRequest{
				ResponseType: ResponseTypeCode,
				ClientID:     client.ID(),
				Scope:        tt.scope,
				State:        "xyz",
			})
			require.NotNil(t, grant, "scope failures still yield a grant for the error redirect")
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			verr := AsValidationError(err)
			require.NotNil(t, verr)
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Equal(t, SeverityInvalid, verr.Severity)

			redirect, rerr := grant.ErrorRedirect(verr.Code)
			require.NoError(t, rerr)
			assert.Equal(t, "http://web.example.com/oauth2cb?error="+verr.Code+"&state=xyz", redirect)
		})
	}
}

func TestSaveCodeRequiresValidRequest(t *testing.T) {
	srv, _ := newTestServer(t, Config{Scopes: []string{"user_ro"}})

	_, err := srv.SaveCode(context.Background(), CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     "unknown",
	}, nil)
	assert.ErrorIs(t, err, ErrRequestNotValid)
}

func TestAcceptPreservesQueryAndFragment(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ctx := context.Background()
	client := registerWebClient(t, srv, "http://a.example/cb?app=shop#top")

	code, err := srv.SaveCode(ctx, CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID(),
		State:        "1234",
	}, nil)
	require.NoError(t, err)

	redirect, err := code.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/cb?app=shop&code="+code.ID()+"&state=1234#top", redirect)

	// Acceptance is persisted.
	got, err := srv.GetCode(ctx, code.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Accepted())
}

func TestAcceptWithoutState(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ctx := context.Background()
	client := registerWebClient(t, srv, "http://a.example/cb")

	code, err := srv.SaveCode(ctx, CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID(),
	}, nil)
	require.NoError(t, err)

	redirect, err := code.Accept(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/cb?code="+code.ID(), redirect)
}

func TestDecline(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ctx := context.Background()
	client := registerWebClient(t, srv, "http://a.example/cb")

	code, err := srv.SaveCode(ctx, CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID(),
		State:        "1234",
	}, nil)
	require.NoError(t, err)

	redirect, err := code.Decline(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/cb?error=access_denied&state=1234", redirect)

	// The code is gone; a second decline still yields the redirect.
	got, err := srv.GetCode(ctx, code.ID())
	require.NoError(t, err)
	assert.Nil(t, got)

	redirect, err = code.Decline(ctx, "temporarily_unavailable")
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/cb?error=temporarily_unavailable&state=1234", redirect)
}

func TestCodeExpires(t *testing.T) {
	srv, clock := newTestServer(t, Config{AuthorizationCodeTimeout: 10 * time.Minute})
	ctx := context.Background()
	client := registerWebClient(t, srv)

	code, err := srv.SaveCode(ctx, CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID(),
	}, nil)
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Second)
	got, err := srv.GetCode(ctx, code.ID())
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(time.Second)
	got, err = srv.GetCode(ctx, code.ID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveCodeStoresOwnerAttrs(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ctx := context.Background()
	client := registerWebClient(t, srv)

	code, err := srv.SaveCode(ctx, CodeRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     client.ID(),
	}, ormstore.Attrs{
		AttrUserID: ormstore.String("user-1"),
		"roles":    ormstore.List("admin", "ops"),
	})
	require.NoError(t, err)

	got, err := srv.GetCode(ctx, code.ID())
	require.NoError(t, err)
	require.NotNil(t, got)

	v, ok := got.Attr("roles")
	require.True(t, ok)
	roles, _ := v.Strings()
	assert.Equal(t, []string{"admin", "ops"}, roles)
}
