package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestTokenSubject(t *testing.T) {
	user := uuid.New()
	got, err := tokenSubject(testutil.Token("any-secret", user))
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = tokenSubject("not-a-token")
	assert.Error(t, err)
}

func TestMissingToken(t *testing.T) {
	t.Setenv("CHATCTL_TOKEN", "")
	_, errOut, err := run(t, "heartbeat")
	require.Error(t, err)
	assert.Contains(t, errOut, "token is required")
}

func TestHeartbeatAndResync(t *testing.T) {
	user := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/presence/heartbeat":
			_, _ = w.Write([]byte(`{"liveness":"online"}`))
		case "/api/sync":
			_, _ = w.Write([]byte(`{"topic":"` + r.URL.Query().Get("topic") + `","seq":4,"state":{"status":"none"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"nope","code":"UNAUTHENTICATED"}`))
		}
	}))
	defer srv.Close()
	token := testutil.Token("secret", user)

	out, _, err := run(t, "--server", srv.URL, "--token", token, "heartbeat")
	require.NoError(t, err)
	assert.Contains(t, out, "online")

	out, _, err = run(t, "--server", srv.URL, "--token", token, "--json", "resync", "presence:"+user.String())
	require.NoError(t, err)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, float64(4), snap["seq"])

	_, errOut, err := run(t, "--server", srv.URL, "--token", token, "send", uuid.NewString(), "hello")
	require.Error(t, err)
	assert.Contains(t, errOut, "Hint")
}
