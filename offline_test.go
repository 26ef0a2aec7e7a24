package cloud115

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMagnet = "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a"

// lixianMux routes on the ac query parameter the way the real host does.
func lixianMux(t *testing.T, handlers map[string]http.HandlerFunc) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lixian" {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}

		assert.Equal(t, "lixian", r.URL.Query().Get("ct"))

		ac := r.URL.Query().Get("ac")

		handler, ok := handlers[ac]
		if !ok {
			t.Errorf("unexpected ac=%s", ac)
			return
		}

		handler(w, r)
	})
}

func TestTaskList_Paginates(t *testing.T) {
	var fetches atomic.Int32

	client := newTestClient(t, lixianMux(t, map[string]http.HandlerFunc{
		"task_lists": func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)

			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			switch page {
			case 1:
				_, _ = w.Write([]byte(`{
					"state": true, "page": 1, "page_count": 2, "count": 3,
					"tasks": [
						{"info_hash":"aaa","name":"iso-1","status":1,"percentDone":42.5,"size":1000,"url":"magnet:?xt=urn:btih:aaa","add_time":1700000000},
						{"info_hash":"bbb","name":"iso-2","status":2,"percentDone":100,"size":2000,"url":"magnet:?xt=urn:btih:bbb","add_time":1700000100}
					]
				}`))
			case 2:
				_, _ = w.Write([]byte(`{
					"state": true, "page": 2, "page_count": 2, "count": 3,
					"tasks": [
						{"info_hash":"ccc","name":"iso-3","status":-1,"percentDone":10,"size":3000,"url":"https://example.test/iso-3.iso","add_time":1700000200}
					]
				}`))
			default:
				t.Errorf("unexpected page %d", page)
			}
		},
	}))

	tasks, err := client.Offline().List().Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, int32(2), fetches.Load())

	assert.Equal(t, "aaa", tasks[0].ID)
	assert.Equal(t, TaskRunning, tasks[0].Status)
	assert.InDelta(t, 42.5, tasks[0].Progress, 0.001)
	assert.Equal(t, "magnet:?xt=urn:btih:aaa", tasks[0].SourceURL)

	assert.Equal(t, TaskDone, tasks[1].Status)
	assert.Equal(t, TaskFailed, tasks[2].Status)
}

func TestTaskStatusMapping(t *testing.T) {
	tests := []struct {
		raw  int
		want TaskStatus
	}{
		{1, TaskRunning},
		{2, TaskDone},
		{-1, TaskFailed},
		{0, TaskPending},
		{7, TaskPending},
	}

	for _, tt := range tests {
		r := taskRecord{Status: tt.raw}
		assert.Equal(t, tt.want, r.toTask().Status, "raw status %d", tt.raw)
	}
}

func TestAddURLs_MixedOutcomesAreIndependent(t *testing.T) {
	var submissions atomic.Int32

	client := newTestClient(t, lixianMux(t, map[string]http.HandlerFunc{
		"add_task_url": func(w http.ResponseWriter, r *http.Request) {
			submissions.Add(1)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, testMagnet, r.PostForm.Get("url"))

			_, _ = w.Write([]byte(`{"state":true,"info_hash":"c12fe1c06bba254a9dc9f519b335aa7c1367a88a"}`))
		},
	}))

	results, err := client.Offline().AddURLs(context.Background(), testMagnet, "not-a-source")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, testMagnet, results[0].Source)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "c12fe1c06bba254a9dc9f519b335aa7c1367a88a", results[0].TaskID)

	assert.Equal(t, "not-a-source", results[1].Source)
	assert.ErrorIs(t, results[1].Err, ErrInvalidSource)

	assert.Equal(t, int32(1), submissions.Load(), "malformed source never reaches the wire")
}

func TestAddURLs_RemoteRejectionDoesNotAbortBatch(t *testing.T) {
	var submissions atomic.Int32

	client := newTestClient(t, lixianMux(t, map[string]http.HandlerFunc{
		"add_task_url": func(w http.ResponseWriter, _ *http.Request) {
			if submissions.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"state":false,"errcode":10008,"error_msg":"task exists"}`))
				return
			}

			_, _ = w.Write([]byte(`{"state":true,"info_hash":"def"}`))
		},
	}))

	results, err := client.Offline().AddURLs(context.Background(),
		"https://example.test/a.iso",
		"https://example.test/b.iso",
	)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var remoteErr *RemoteError
	require.ErrorAs(t, results[0].Err, &remoteErr)
	assert.Equal(t, 10008, remoteErr.Code)

	assert.NoError(t, results[1].Err)
	assert.Equal(t, "def", results[1].TaskID)
	assert.Equal(t, int32(2), submissions.Load())
}

func TestAddURLs_SessionExpiryAbortsBatch(t *testing.T) {
	// Every endpoint, including the re-validation check, rejects the
	// cookies: the batch stops rather than burning calls.
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"state":false,"errcode":990001}`))
	}))

	results, err := client.Offline().AddURLs(context.Background(),
		"https://example.test/a.iso",
		"https://example.test/b.iso",
	)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, results)
	assert.True(t, client.Expired())
}

func TestTaskDelete(t *testing.T) {
	client := newTestClient(t, lixianMux(t, map[string]http.HandlerFunc{
		"task_del": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "aaa", r.PostForm.Get("hash[0]"))
			assert.Equal(t, "bbb", r.PostForm.Get("hash[1]"))
			assert.Equal(t, "1", r.PostForm.Get("flag"))

			_, _ = w.Write([]byte(`{"state":true}`))
		},
	}))

	require.NoError(t, client.Offline().Delete(context.Background(), []string{"aaa", "bbb"}, true))
}

func TestTaskDelete_NoHashesIsNoop(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s", r.URL)
	}))

	require.NoError(t, client.Offline().Delete(context.Background(), nil, false))
}

func TestTaskClear(t *testing.T) {
	client := newTestClient(t, lixianMux(t, map[string]http.HandlerFunc{
		"task_clear": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "5", r.PostForm.Get("flag"))

			_, _ = w.Write([]byte(`{"state":true}`))
		},
	}))

	require.NoError(t, client.Offline().Clear(context.Background(), ClearAllAndFiles))
}

func TestValidateSource(t *testing.T) {
	valid := []string{
		testMagnet,
		"magnet:?xt=urn:btih:AAA&dn=name",
		"ed2k://|file|name.iso|123|0123456789ABCDEF|/",
		"http://example.test/file.iso",
		"https://example.test/file.iso",
	}
	for _, src := range valid {
		assert.NoError(t, validateSource(src), src)
	}

	invalid := []string{
		"",
		"not-a-source",
		"ftp://example.test/file.iso",
		"magnet:?dn=no-topic",
		"ed2k://server|1.2.3.4|4661|/",
		"https://",
	}
	for _, src := range invalid {
		assert.ErrorIs(t, validateSource(src), ErrInvalidSource, src)
	}
}
