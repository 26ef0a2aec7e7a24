package cloud115

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/cloud115/cloud115-go/internal/protocol"
	"github.com/cloud115/cloud115-go/internal/session"
)

// RootDirID is the ID of the account's root directory.
const RootDirID = "0"

// Order is a directory sort mode understood by the service.
type Order string

const (
	OrderByName    Order = "file_name"
	OrderBySize    Order = "file_size"
	OrderByType    Order = "file_type"
	OrderByCreated Order = "user_ptime"
	OrderByUpdated Order = "user_utime"
	OrderByOpened  Order = "user_otime"
)

// FileEntry is a read-only projection of one remote file or directory
// record. Entries are recreated on every listing call; nothing is cached.
type FileEntry struct {
	ID          string
	ParentID    string
	Name        string
	PickCode    string // ticket for download/play endpoints
	Size        int64  // zero for directories
	SHA1        string // hex, files only
	IsDirectory bool
	IsHidden    bool
	CreatedAt   time.Time // zero when the record omits it
	ModifiedAt  time.Time
}

// PathNode is one ancestor in a file's directory path, root first.
type PathNode struct {
	ID   string
	Name string
}

// EntryInfo is the detail record returned by Stat.
type EntryInfo struct {
	Name        string
	PickCode    string
	IsDirectory bool
	Path        []PathNode
}

// SpaceInfo reports account storage usage in bytes.
type SpaceInfo struct {
	Total     int64
	Used      int64
	Remaining int64
}

// StorageService lists and manages files. All calls go through the shared
// session; the service holds no transport state of its own.
type StorageService struct {
	sess      *session.Manager
	endpoints Endpoints
	logger    *slog.Logger
	pageSize  int
}

// flexString decodes a JSON string or number into a string. 115 is
// inconsistent about ID fields across endpoints.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*f = flexString(n.String())

	return nil
}

// flexTime decodes the several timestamp encodings 115 uses: epoch seconds
// as a number or numeric string, or a "2006-01-02 15:04" local-time string.
// Unparseable values decode as the zero time rather than failing the record.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil || s == "" {
		return err
	}

	if secs, err := strconv.ParseInt(string(s), 10, 64); err == nil {
		f.Time = time.Unix(secs, 0).UTC()
		return nil
	}

	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, string(s)); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}

	return nil
}

// fileRecord mirrors one entry of the file-list JSON. A record without fid
// is a directory: cid is then its own ID and pid its parent. For files, cid
// is the containing directory.
type fileRecord struct {
	FID      flexString `json:"fid"`
	CID      flexString `json:"cid"`
	PID      flexString `json:"pid"`
	Name     string     `json:"n"`
	PickCode string     `json:"pc"`
	Size     int64      `json:"s"`
	SHA1     string     `json:"sha"`
	Hidden   int        `json:"hdf"`
	Updated  flexTime   `json:"te"`
	Updated2 flexTime   `json:"tu"`
	Created  flexTime   `json:"tp"`
}

// toEntry normalizes a raw record into a FileEntry. Names are normalized to
// NFC — 115 stores whatever form the uploading client used, and mixed forms
// break name comparisons downstream.
func (r *fileRecord) toEntry() FileEntry {
	entry := FileEntry{
		Name:      norm.NFC.String(r.Name),
		PickCode:  r.PickCode,
		IsHidden:  r.Hidden != 0,
		CreatedAt: r.Created.Time,
	}

	entry.ModifiedAt = r.Updated.Time
	if entry.ModifiedAt.IsZero() {
		entry.ModifiedAt = r.Updated2.Time
	}

	if r.FID == "" {
		entry.IsDirectory = true
		entry.ID = string(r.CID)
		entry.ParentID = string(r.PID)
	} else {
		entry.ID = string(r.FID)
		entry.ParentID = string(r.CID)
		entry.Size = r.Size
		entry.SHA1 = r.SHA1
	}

	return entry
}

type fileListResponse struct {
	Data     []fileRecord `json:"data"`
	Count    int          `json:"count"`
	Offset   int          `json:"offset"`
	Order    string       `json:"order"`
	IsAsc    int          `json:"is_asc"`
	PageSize int          `json:"page_size"`
}

// orderHint is decoded from an order-changed error payload; the service
// reports the directory's stored order there.
type orderHint struct {
	Order string `json:"order"`
	IsAsc int    `json:"is_asc"`
}

// List returns a lazy cursor over the contents of a directory. Pages are
// fetched as the consumer advances; entries come back in the order the
// service provides them (the directory's stored order), never re-sorted.
// Fails with ErrNotFound when dirID does not resolve and ErrSessionExpired
// when the session is gone.
func (s *StorageService) List(dirID string) *Iter[FileEntry] {
	// Cursor state lives in the closure. The order starts at the
	// create-time default and follows the server's hint if the directory
	// is sorted differently.
	offset := 0
	order := string(OrderByCreated)
	asc := "1"

	return newIter(func(ctx context.Context) ([]FileEntry, bool, error) {
		page, err := s.listPage(ctx, dirID, offset, &order, &asc)
		if err != nil {
			return nil, false, err
		}

		entries := make([]FileEntry, 0, len(page.Data))
		for i := range page.Data {
			entries = append(entries, page.Data[i].toEntry())
		}

		offset += len(page.Data)

		s.logger.Debug("fetched directory page",
			slog.String("dir_id", dirID),
			slog.Int("count", len(entries)),
			slog.Int("offset", offset),
			slog.Int("total", page.Count),
		)

		return entries, offset < page.Count, nil
	})
}

// listPage fetches one page, following the order-changed hint at most once.
// Name-ordered listings are served by a dedicated natural-sort host.
func (s *StorageService) listPage(ctx context.Context, dirID string, offset int, order, asc *string) (*fileListResponse, error) {
	for hinted := false; ; {
		endpoint := s.endpoints.Web + "/files"
		if *order == string(OrderByName) {
			endpoint = s.endpoints.Natsort
		}

		req := &protocol.Request{
			Method: http.MethodGet,
			URL:    endpoint,
			Query: url.Values{
				"aid":      {"1"},
				"cid":      {dirID},
				"show_dir": {"1"},
				"o":        {*order},
				"asc":      {*asc},
				"offset":   {strconv.Itoa(offset)},
				"limit":    {strconv.Itoa(s.pageSize)},
				"fc_mix":   {"0"},
				"natsort":  {"1"},
				"format":   {"json"},
			},
			Idempotent: true,
		}

		var page fileListResponse

		err := s.sess.Call(ctx, req, &page)
		if err == nil {
			return &page, nil
		}

		var remoteErr *RemoteError
		if !hinted && errors.As(err, &remoteErr) && remoteErr.Code == protocol.CodeOrderChanged {
			var hint orderHint
			if jsonErr := json.Unmarshal(remoteErr.Raw, &hint); jsonErr == nil && hint.Order != "" {
				s.logger.Debug("directory order differs, re-issuing listing",
					slog.String("dir_id", dirID),
					slog.String("order", hint.Order),
				)

				*order = hint.Order
				*asc = strconv.Itoa(hint.IsAsc)
				hinted = true

				continue
			}
		}

		return nil, err
	}
}

// Search returns a lazy cursor over files matching keyword under dirID
// (RootDirID searches the whole account).
func (s *StorageService) Search(keyword, dirID string) *Iter[FileEntry] {
	offset := 0

	return newIter(func(ctx context.Context) ([]FileEntry, bool, error) {
		req := &protocol.Request{
			Method: http.MethodGet,
			URL:    s.endpoints.Web + "/files/search",
			Query: url.Values{
				"aid":          {"1"},
				"cid":          {dirID},
				"search_value": {keyword},
				"offset":       {strconv.Itoa(offset)},
				"limit":        {strconv.Itoa(s.pageSize)},
				"format":       {"json"},
			},
			Idempotent: true,
		}

		var page fileListResponse
		if err := s.sess.Call(ctx, req, &page); err != nil {
			return nil, false, err
		}

		entries := make([]FileEntry, 0, len(page.Data))
		for i := range page.Data {
			entries = append(entries, page.Data[i].toEntry())
		}

		offset += len(page.Data)

		return entries, offset < page.Count, nil
	})
}

type entryInfoResponse struct {
	FileName     string     `json:"file_name"`
	PickCode     string     `json:"pick_code"`
	FileCategory flexString `json:"file_category"`
	Paths        []struct {
		FileID   flexString `json:"file_id"`
		FileName string     `json:"file_name"`
	} `json:"paths"`
}

// Stat fetches detail for a single file or directory ID, including its
// ancestor path. Fails with ErrNotFound for an unknown ID.
func (s *StorageService) Stat(ctx context.Context, fileID string) (*EntryInfo, error) {
	req := &protocol.Request{
		Method:     http.MethodGet,
		URL:        s.endpoints.Web + "/category/get",
		Query:      url.Values{"cid": {fileID}},
		Idempotent: true,
	}

	var resp entryInfoResponse
	if err := s.sess.Call(ctx, req, &resp); err != nil {
		return nil, err
	}

	info := &EntryInfo{
		Name:     norm.NFC.String(resp.FileName),
		PickCode: resp.PickCode,
		// file_category "0" marks a directory.
		IsDirectory: resp.FileCategory == "0",
	}

	for _, p := range resp.Paths {
		info.Path = append(info.Path, PathNode{
			ID:   string(p.FileID),
			Name: norm.NFC.String(p.FileName),
		})
	}

	return info, nil
}

type makeDirResponse struct {
	FileID flexString `json:"file_id"`
}

// MakeDir creates a directory under parentID and returns the new ID.
// Mutating: not retried.
func (s *StorageService) MakeDir(ctx context.Context, parentID, name string) (string, error) {
	s.logger.Info("creating directory",
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    s.endpoints.Web + "/files/add",
		Form: url.Values{
			"pid":   {parentID},
			"cname": {name},
		},
	}

	var resp makeDirResponse
	if err := s.sess.Call(ctx, req, &resp); err != nil {
		return "", err
	}

	return string(resp.FileID), nil
}

// Move moves files or directories into targetDirID. Mutating: not retried.
func (s *StorageService) Move(ctx context.Context, targetDirID string, fileIDs ...string) error {
	if len(fileIDs) == 0 {
		return nil
	}

	s.logger.Info("moving entries",
		slog.String("target_dir_id", targetDirID),
		slog.Int("count", len(fileIDs)),
	)

	form := url.Values{
		"pid":         {targetDirID},
		"ignore_warn": {"1"},
	}
	for i, id := range fileIDs {
		form.Set(fmt.Sprintf("fid[%d]", i), id)
	}

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    s.endpoints.Web + "/files/move",
		Form:   form,
	}

	return s.sess.Call(ctx, req, nil)
}

// Rename renames entries in one batch, keyed by file ID.
// Mutating: not retried.
func (s *StorageService) Rename(ctx context.Context, newNames map[string]string) error {
	if len(newNames) == 0 {
		return nil
	}

	s.logger.Info("renaming entries", slog.Int("count", len(newNames)))

	form := url.Values{}
	for id, name := range newNames {
		form.Set(fmt.Sprintf("files_new_name[%s]", id), name)
	}

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    s.endpoints.Web + "/files/batch_rename",
		Form:   form,
	}

	return s.sess.Call(ctx, req, nil)
}

// Delete moves files or directories to the recycle bin.
// Mutating: not retried.
func (s *StorageService) Delete(ctx context.Context, fileIDs ...string) error {
	if len(fileIDs) == 0 {
		return nil
	}

	s.logger.Info("deleting entries", slog.Int("count", len(fileIDs)))

	form := url.Values{"ignore_warn": {"1"}}
	for i, id := range fileIDs {
		form.Set(fmt.Sprintf("fid[%d]", i), id)
	}

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    s.endpoints.Web + "/rb/delete",
		Form:   form,
	}

	return s.sess.Call(ctx, req, nil)
}

// SetOrder stores the sort order for a directory. Subsequent List calls
// follow it via the order-changed hint. Mutating: not retried.
func (s *StorageService) SetOrder(ctx context.Context, dirID string, order Order, asc bool) error {
	ascFlag := "0"
	if asc {
		ascFlag = "1"
	}

	req := &protocol.Request{
		Method: http.MethodPost,
		URL:    s.endpoints.Web + "/files/order",
		Form: url.Values{
			"file_id":    {dirID},
			"user_order": {string(order)},
			"user_asc":   {ascFlag},
			"fc_mix":     {"0"},
		},
	}

	return s.sess.Call(ctx, req, nil)
}

type spaceInfoResponse struct {
	Data struct {
		SpaceInfo struct {
			Total  spaceSize `json:"all_total"`
			Remain spaceSize `json:"all_remain"`
			Use    spaceSize `json:"all_use"`
		} `json:"space_info"`
	} `json:"data"`
}

type spaceSize struct {
	Size float64 `json:"size"`
}

// SpaceInfo reports total, used, and remaining account storage.
func (s *StorageService) SpaceInfo(ctx context.Context) (*SpaceInfo, error) {
	req := &protocol.Request{
		Method:     http.MethodGet,
		URL:        s.endpoints.Web + "/files/index_info",
		Idempotent: true,
	}

	var resp spaceInfoResponse
	if err := s.sess.Call(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &SpaceInfo{
		Total:     int64(resp.Data.SpaceInfo.Total.Size),
		Used:      int64(resp.Data.SpaceInfo.Use.Size),
		Remaining: int64(resp.Data.SpaceInfo.Remain.Size),
	}, nil
}
