package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
	"biotutor-cli/internal/provider"
	"biotutor-cli/internal/tutor"
)

func newTestRouter(t *testing.T, backend http.Handler) *Router {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	orchestrator := tutor.New(api.NewClient(srv.URL))
	return New(orchestrator, nil, provider.NewOpenAI("", ""))
}

func TestRouteUnknownModel(t *testing.T) {
	r := newTestRouter(t, http.NotFoundHandler())

	var frags []string
	err := r.Route(context.Background(), nil, "no-such-model", func(s string) { frags = append(frags, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"错误：未找到所选模型的配置。"}, frags)
}

func TestRouteBiologyTutor(t *testing.T) {
	r := newTestRouter(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/api/session":
			json.NewEncoder(w).Encode(map[string]string{"session_id": "s1", "greeting": "你好~"})
		case strings.HasSuffix(req.URL.Path, "/chat"):
			json.NewEncoder(w).Encode(map[string]string{"content": "这是辅导后端的回复"})
		default:
			http.NotFound(w, req)
		}
	}))

	history := []*chat.Message{chat.NewMessage(chat.RoleUser, "你好")}
	var frags []string
	err := r.Route(context.Background(), history, "biology-tutor", func(s string) { frags = append(frags, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"这是辅导后端的回复"}, frags)
}

func TestRouteFallbackToMock(t *testing.T) {
	r := newTestRouter(t, http.NotFoundHandler())

	history := []*chat.Message{chat.NewMessage(chat.RoleUser, "你好")}
	var frags []string
	err := r.Route(context.Background(), history, "deepseek-chat", func(s string) { frags = append(frags, s) })
	require.NoError(t, err)

	full := strings.Join(frags, "")
	assert.Contains(t, full, "**DeepSeek V3**")
	assert.Contains(t, full, "模拟回复")
}

func TestRouteOpenAIWithoutKey(t *testing.T) {
	r := newTestRouter(t, http.NotFoundHandler())

	history := []*chat.Message{chat.NewMessage(chat.RoleUser, "你好")}
	var frags []string
	err := r.Route(context.Background(), history, "gpt-4o", func(s string) { frags = append(frags, s) })
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0], "未配置 API Key")
}
