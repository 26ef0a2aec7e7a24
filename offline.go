package cloud115

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/cloud115/cloud115-go/internal/protocol"
	"github.com/cloud115/cloud115-go/internal/session"
)

// TaskStatus is the lifecycle state of an offline download task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskDone
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OfflineTask is a read-only projection of one server-side download job.
// Recreated on every listing call; nothing is cached.
type OfflineTask struct {
	ID        string // the task's info hash
	Name      string
	Status    TaskStatus
	Progress  float64 // percent, 0-100
	Size      int64   // bytes, when known
	SourceURL string
	CreatedAt time.Time
}

// AddResult is the per-source outcome of AddURLs. Err is nil on success;
// otherwise ErrInvalidSource for a malformed source or a *RemoteError when
// the service rejected it (duplicate, quota).
type AddResult struct {
	Source string
	TaskID string // info hash assigned by the service, when reported
	Err    error
}

// ClearFlag selects which tasks Clear removes.
type ClearFlag int

const (
	ClearCompleted         ClearFlag = 0
	ClearAll               ClearFlag = 1
	ClearFailed            ClearFlag = 2
	ClearRunning           ClearFlag = 3
	ClearCompletedAndFiles ClearFlag = 4 // also deletes downloaded files
	ClearAllAndFiles       ClearFlag = 5
)

// OfflineService manages server-side download tasks. All calls go through
// the shared session; the service holds no transport state of its own.
type OfflineService struct {
	sess      *session.Manager
	endpoints Endpoints
	logger    *slog.Logger
}

// Provider status ints observed on task records.
const (
	rawStatusFailed  = -1
	rawStatusRunning = 1
	rawStatusDone    = 2
)

type taskRecord struct {
	InfoHash string     `json:"info_hash"`
	Name     string     `json:"name"`
	Status   int        `json:"status"`
	Percent  float64    `json:"percentDone"`
	Size     int64      `json:"size"`
	URL      string     `json:"url"`
	AddTime  flexTime   `json:"add_time"`
	FileID   flexString `json:"file_id"`
}

func (r *taskRecord) toTask() OfflineTask {
	task := OfflineTask{
		ID:        r.InfoHash,
		Name:      norm.NFC.String(r.Name),
		Progress:  r.Percent,
		Size:      r.Size,
		SourceURL: r.URL,
		CreatedAt: r.AddTime.Time,
	}

	switch r.Status {
	case rawStatusRunning:
		task.Status = TaskRunning
	case rawStatusDone:
		task.Status = TaskDone
	case rawStatusFailed:
		task.Status = TaskFailed
	default:
		task.Status = TaskPending
	}

	return task
}

type taskListResponse struct {
	Page      int          `json:"page"`
	PageCount int          `json:"page_count"`
	Count     int          `json:"count"`
	Tasks     []taskRecord `json:"tasks"`
}

// List returns a lazy cursor over all offline tasks, newest first (the
// service's own order). Pages are fetched as the consumer advances.
func (o *OfflineService) List() *Iter[OfflineTask] {
	page := 1

	return newIter(func(ctx context.Context) ([]OfflineTask, bool, error) {
		req := &protocol.Request{
			Method: http.MethodGet,
			URL:    o.endpoints.Lixian,
			Query: url.Values{
				"ct":   {"lixian"},
				"ac":   {"task_lists"},
				"page": {strconv.Itoa(page)},
			},
			Idempotent: true,
		}

		var resp taskListResponse
		if err := o.sess.Call(ctx, req, &resp); err != nil {
			return nil, false, err
		}

		tasks := make([]OfflineTask, 0, len(resp.Tasks))
		for i := range resp.Tasks {
			tasks = append(tasks, resp.Tasks[i].toTask())
		}

		o.logger.Debug("fetched task page",
			slog.Int("page", page),
			slog.Int("count", len(tasks)),
			slog.Int("total", resp.Count),
		)

		page++

		return tasks, page <= resp.PageCount, nil
	})
}

type addTaskResponse struct {
	InfoHash string `json:"info_hash"`
}

// AddURLs submits one or more download sources (magnet, ed2k, or HTTP(S)
// URL). Each source is validated and submitted as an independent mutating
// call, so one bad source never aborts the others; outcomes come back
// per source in input order. The returned error is non-nil only for
// batch-fatal conditions (session expiry, cancellation), with the results
// accumulated so far.
func (o *OfflineService) AddURLs(ctx context.Context, sources ...string) ([]AddResult, error) {
	results := make([]AddResult, 0, len(sources))

	for _, src := range sources {
		if err := validateSource(src); err != nil {
			results = append(results, AddResult{Source: src, Err: err})
			continue
		}

		req := &protocol.Request{
			Method: http.MethodPost,
			URL:    o.endpoints.Lixian,
			Query: url.Values{
				"ct": {"lixian"},
				"ac": {"add_task_url"},
			},
			Form: url.Values{"url": {src}},
		}

		var resp addTaskResponse

		err := o.sess.Call(ctx, req, &resp)
		if err != nil {
			if errors.Is(err, ErrSessionExpired) || ctx.Err() != nil {
				return results, err
			}

			o.logger.Warn("task submission rejected",
				slog.String("error", err.Error()),
			)

			results = append(results, AddResult{Source: src, Err: err})

			continue
		}

		o.logger.Info("task submitted", slog.String("info_hash", resp.InfoHash))

		results = append(results, AddResult{Source: src, TaskID: resp.InfoHash})
	}

	return results, nil
}

// Delete removes tasks by info hash. deleteFiles also removes any files the
// tasks downloaded. Mutating: not retried.
func (o *OfflineService) Delete(ctx context.Context, hashes []string, deleteFiles bool) error {
	if len(hashes) == 0 {
		return nil
	}

	o.logger.Info("deleting tasks",
		slog.Int("count", len(hashes)),
		slog.Bool("delete_files", deleteFiles),
	)

	flag := "0"
	if deleteFiles {
		flag = "1"
	}

	form := url.Values{"flag": {flag}}
	for i, h := range hashes {
		form.Set(fmt.Sprintf("hash[%d]", i), h)
	}

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    o.endpoints.Lixian,
		Query: url.Values{
			"ct": {"lixian"},
			"ac": {"task_del"},
		},
		Form: form,
	}

	return o.sess.Call(ctx, req, nil)
}

// Clear removes tasks in bulk according to flag. Mutating: not retried.
func (o *OfflineService) Clear(ctx context.Context, flag ClearFlag) error {
	o.logger.Info("clearing tasks", slog.Int("flag", int(flag)))

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    o.endpoints.Lixian,
		Query: url.Values{
			"ct": {"lixian"},
			"ac": {"task_clear"},
		},
		Form: url.Values{"flag": {strconv.Itoa(int(flag))}},
	}

	return o.sess.Call(ctx, req, nil)
}

// validateSource checks that a source string carries a scheme the offline
// service accepts: magnet with a btih exact topic, ed2k file link, or a
// well-formed HTTP(S) URL.
func validateSource(src string) error {
	switch {
	case strings.HasPrefix(src, "magnet:?"):
		u, err := url.Parse(src)
		if err != nil || !strings.HasPrefix(u.Query().Get("xt"), "urn:btih:") {
			return fmt.Errorf("%w: magnet without btih topic: %q", ErrInvalidSource, src)
		}

		return nil
	case strings.HasPrefix(src, "ed2k://"):
		if !strings.HasPrefix(src, "ed2k://|file|") {
			return fmt.Errorf("%w: unsupported ed2k link: %q", ErrInvalidSource, src)
		}

		return nil
	default:
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidSource, src)
		}

		return nil
	}
}
