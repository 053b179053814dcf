package devstub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetaFacil/AppConecta/internal/model"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestInsertMessageBumpsChatUpdatedAt(t *testing.T) {
	stub := New()
	srv := httptest.NewServer(stub)
	defer srv.Close()

	c := stub.SeedChat(model.Chat{
		ClienteID: "u1", FreelancerID: "u2",
		CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour),
	})

	resp := postJSON(t, srv.URL+"/v1/messages", model.MessageInsert{
		ChatID: c.ID, SenderID: "u1", Conteudo: "oi", MessageType: model.MessageTypeText,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var m model.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.NotEmpty(t, m.ID)

	got, err := http.Get(srv.URL + "/v1/chats/" + c.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	var after model.Chat
	require.NoError(t, json.NewDecoder(got.Body).Decode(&after))
	assert.True(t, after.UpdatedAt.After(c.UpdatedAt), "new message moves the chat up the list")
}

func TestInsertMessageUnknownChat(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/messages", model.MessageInsert{ChatID: "nope", SenderID: "u1", Conteudo: "x"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateChatValidatesParticipants(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/chats", map[string]string{"cliente_id": "u1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListChatsOrderedByActivity(t *testing.T) {
	stub := New()
	srv := httptest.NewServer(stub)
	defer srv.Close()

	now := time.Now()
	stub.SeedChat(model.Chat{ID: "old", ClienteID: "u1", FreelancerID: "u2", UpdatedAt: now.Add(-time.Hour)})
	stub.SeedChat(model.Chat{ID: "new", ClienteID: "u1", FreelancerID: "u3", UpdatedAt: now})
	stub.SeedChat(model.Chat{ID: "foreign", ClienteID: "u4", FreelancerID: "u5", UpdatedAt: now})

	resp, err := http.Get(srv.URL + "/v1/chats?user_id=u1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var chats []model.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chats))
	require.Len(t, chats, 2)
	assert.Equal(t, "new", chats[0].ID)
	assert.Equal(t, "old", chats[1].ID)
}

func TestPairLookupPrefersMostRecent(t *testing.T) {
	stub := New()
	srv := httptest.NewServer(stub)
	defer srv.Close()

	now := time.Now()
	stub.SeedChat(model.Chat{ID: "stale", ClienteID: "u1", FreelancerID: "u2", UpdatedAt: now.Add(-time.Hour)})
	stub.SeedChat(model.Chat{ID: "fresh", ClienteID: "u2", FreelancerID: "u1", UpdatedAt: now})

	resp, err := http.Get(srv.URL + "/v1/chats/pair?user_a=u1&user_b=u2")
	require.NoError(t, err)
	defer resp.Body.Close()

	var c model.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	assert.Equal(t, "fresh", c.ID)
}
