//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sy264115809/techshow/internal/api"
	"github.com/sy264115809/techshow/internal/gateway"
)

func doJSON(t *testing.T, stack *testStack, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}
	w := httptest.NewRecorder()
	stack.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// waitForStatus polls the channel until it reaches the wanted status or the
// deadline passes
func waitForStatus(t *testing.T, stack *testStack, channelID int64, want string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, stack, http.MethodGet, fmt.Sprintf("/api/channels/%d", channelID), 0, nil)
		if w.Code == http.StatusOK {
			var ch api.ChannelResponse
			decodeInto(t, w, &ch)
			if ch.Status == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel %d never reached status %s", channelID, want)
}

func TestChannelLifecycleRoundTrip(t *testing.T) {
	stack := setupStack(t)
	owner := createUser(t, stack, "broadcaster")
	viewer := createUser(t, stack, "viewer")

	// Create
	w := doJSON(t, stack, http.MethodPost, "/api/channels", owner.ID, map[string]interface{}{
		"title": "Morning Show",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created api.ChannelResponse
	decodeInto(t, w, &created)
	assert.Equal(t, "new", created.Status)

	// Publish
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/publish", created.ID), owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var published api.PublishResponse
	decodeInto(t, w, &published)
	assert.Equal(t, "publishing", published.Channel.Status)
	require.NotNil(t, published.URLs)
	assert.NotEmpty(t, published.URLs.RTMP)
	require.NotNil(t, published.Monitor)

	// The monitor task is queryable while pending
	w = doJSON(t, stack, http.MethodGet, "/api/tasks/"+published.Monitor.ID, 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A viewer can access the live channel
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/access", created.ID), viewer.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var access api.AccessResponse
	decodeInto(t, w, &access)
	assert.True(t, access.Live)

	// Chat while live
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/messages", created.ID), viewer.ID, map[string]interface{}{
		"content": "great show",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Finish; reconciliation then settles the recording asynchronously
	start := time.Now().Add(-30 * time.Minute).Unix()
	stack.stream.setSegments(gateway.SegmentList{
		Duration: 1200,
		Items:    []gateway.Segment{{Start: start, End: start + 1200}},
	})

	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/finish", created.ID), owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var finished api.FinishResponse
	decodeInto(t, w, &finished)
	assert.Equal(t, "calculating", finished.Channel.Status)
	require.NotNil(t, finished.Reconcile)

	waitForStatus(t, stack, created.ID, "published")

	// Replay access uses the recording URL
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/access", created.ID), viewer.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &access)
	assert.False(t, access.Live)
	assert.NotEmpty(t, access.PlaybackURL)

	// A replay comment is rejected without a timeline position
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/messages", created.ID), viewer.ID, map[string]interface{}{
		"content": "floating comment",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// And accepted when it names one
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/messages", created.ID), viewer.ID, map[string]interface{}{
		"content": "nice recording",
		"offset":  30,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Close for good
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/close", created.ID), owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var closed api.ChannelResponse
	decodeInto(t, w, &closed)
	assert.Equal(t, "closed", closed.Status)
}

func TestPublishGuardsOverHTTP(t *testing.T) {
	stack := setupStack(t)
	owner := createUser(t, stack, "broadcaster")
	other := createUser(t, stack, "other")

	w := doJSON(t, stack, http.MethodPost, "/api/channels", owner.ID, map[string]interface{}{"title": "Guarded"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.ChannelResponse
	decodeInto(t, w, &created)

	// Missing identity
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/publish", created.ID), 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong owner
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/publish", created.ID), other.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Finishing a channel that never published fails the guard
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/finish", created.ID), owner.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown channel
	w = doJSON(t, stack, http.MethodPost, "/api/channels/99999/publish", owner.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminBanOverHTTP(t *testing.T) {
	stack := setupStack(t)
	owner := createUser(t, stack, "broadcaster")

	w := doJSON(t, stack, http.MethodPost, "/api/channels", owner.ID, map[string]interface{}{"title": "Edgy Show"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.ChannelResponse
	decodeInto(t, w, &created)

	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/publish", created.ID), owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Give the stopped session a recording so reconciliation keeps the row
	start := time.Now().Add(-10 * time.Minute).Unix()
	stack.stream.setSegments(gateway.SegmentList{
		Duration: 300,
		Items:    []gateway.Segment{{Start: start, End: start + 300}},
	})

	// Ban it
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/admin/channels/%d/disable", created.ID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var banned api.FinishResponse
	decodeInto(t, w, &banned)
	assert.Equal(t, "banned", banned.Channel.Status)

	// Banned channels are not watchable
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/channels/%d/access", created.ID), owner.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Release restores it to published
	w = doJSON(t, stack, http.MethodPost, fmt.Sprintf("/api/admin/channels/%d/enable", created.ID), 0, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var restored api.ChannelResponse
	decodeInto(t, w, &restored)
	assert.Equal(t, "published", restored.Status)
}
