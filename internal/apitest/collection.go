package apitest

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/bde-portal/internal/dto"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/response"
)

const defaultLimit = 10

type record map[string]interface{}

func (r record) clone() record {
	out := make(record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type entry struct {
	seq uint64
	rec record
}

// collection is a schemaless JSON store with the list semantics of the real API:
// search, type filter, sort, page and limit.
type collection struct {
	name         string
	searchFields []string

	mu      sync.Mutex
	entries []*entry
	seq     uint64
}

func newCollection(name string, searchFields ...string) *collection {
	return &collection{name: name, searchFields: searchFields}
}

func (col *collection) insert(rec record, author string) record {
	col.mu.Lock()
	defer col.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if id, _ := rec["id"].(string); id == "" {
		rec["id"] = uuid.NewString()
	}
	if ts, _ := rec["created_at"].(string); ts == "" || strings.HasPrefix(ts, "0001-") {
		rec["created_at"] = now
	}
	if ts, _ := rec["updated_at"].(string); ts == "" || strings.HasPrefix(ts, "0001-") {
		rec["updated_at"] = rec["created_at"]
	}
	if _, ok := rec["is_pinned"]; !ok {
		rec["is_pinned"] = false
	}
	if author != "" {
		rec["author"] = author
	}
	col.seq++
	col.entries = append(col.entries, &entry{seq: col.seq, rec: rec})
	return rec.clone()
}

func (col *collection) count() int {
	col.mu.Lock()
	defer col.mu.Unlock()
	return len(col.entries)
}

func (col *collection) find(id string) (int, bool) {
	for i, e := range col.entries {
		if e.rec["id"] == id {
			return i, true
		}
	}
	return -1, false
}

func (col *collection) list(c *gin.Context) {
	page, err := positiveInt(c.DefaultQuery("page", "1"))
	if err != nil {
		response.Error(c, appErrors.Validation("", map[string]string{"page": "Invalid page."}))
		return
	}
	limit, err := positiveInt(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil {
		response.Error(c, appErrors.Validation("", map[string]string{"limit": "Invalid limit."}))
		return
	}
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))
	kind := strings.TrimSpace(c.Query("type"))

	col.mu.Lock()
	matched := make([]*entry, 0, len(col.entries))
	for _, e := range col.entries {
		if kind != "" && !strings.EqualFold(fmt.Sprint(e.rec["type"]), kind) {
			continue
		}
		if search != "" && !col.matches(e.rec, search) {
			continue
		}
		matched = append(matched, &entry{seq: e.seq, rec: e.rec.clone()})
	}
	col.mu.Unlock()

	sortEntries(matched, c.Query("sort"))

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	results := make([]record, 0, end-start)
	for _, e := range matched[start:end] {
		results = append(results, e.rec)
	}
	response.List(c, results, total)
}

func (col *collection) matches(rec record, search string) bool {
	for _, field := range col.searchFields {
		if v, ok := rec[field].(string); ok && strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}

// sortEntries orders pinned items first, then by the requested key. The default is newest first.
func sortEntries(entries []*entry, key string) {
	desc := strings.HasPrefix(key, "-")
	field := strings.TrimPrefix(key, "-")
	if field == "" {
		field, desc = "created_at", true
	}
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].rec["is_pinned"] == true, entries[j].rec["is_pinned"] == true
		if pi != pj {
			return pi
		}
		a, b := fmt.Sprint(entries[i].rec[field]), fmt.Sprint(entries[j].rec[field])
		if field == "created_at" || a == b {
			if desc {
				return entries[i].seq > entries[j].seq
			}
			return entries[i].seq < entries[j].seq
		}
		if desc {
			return a > b
		}
		return a < b
	})
}

func (col *collection) create(c *gin.Context) {
	var rec record
	if err := c.ShouldBindJSON(&rec); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if title, _ := rec["title"].(string); strings.TrimSpace(title) == "" {
		response.Error(c, appErrors.Validation("", map[string]string{"title": "This field is required."}))
		return
	}
	delete(rec, "id")
	cl := c.MustGet(contextUserKey).(*claims)
	response.Created(c, col.insert(rec, cl.Name))
}

func (col *collection) update(c *gin.Context) {
	var patch record
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	col.mu.Lock()
	idx, ok := col.find(c.Param("id"))
	if !ok {
		col.mu.Unlock()
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "Not found."))
		return
	}
	rec := col.entries[idx].rec
	for k, v := range patch {
		switch k {
		case "id", "created_at", "author":
			continue
		}
		rec[k] = v
	}
	rec["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	out := rec.clone()
	col.mu.Unlock()

	response.JSON(c, http.StatusOK, out)
}

func (col *collection) remove(c *gin.Context) {
	col.mu.Lock()
	idx, ok := col.find(c.Param("id"))
	if ok {
		col.entries = append(col.entries[:idx], col.entries[idx+1:]...)
	}
	col.mu.Unlock()
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "Not found."))
		return
	}
	response.NoContent(c)
}

func (col *collection) bulkDelete(c *gin.Context) {
	var req dto.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		response.Error(c, appErrors.Validation("", map[string]string{"ids": "This field is required."}))
		return
	}
	drop := make(map[string]struct{}, len(req.IDs))
	for _, id := range req.IDs {
		drop[id] = struct{}{}
	}

	col.mu.Lock()
	kept := col.entries[:0]
	deleted := 0
	for _, e := range col.entries {
		if id, _ := e.rec["id"].(string); id != "" {
			if _, ok := drop[id]; ok {
				deleted++
				continue
			}
		}
		kept = append(kept, e)
	}
	col.entries = kept
	col.mu.Unlock()

	response.JSON(c, http.StatusOK, dto.BulkDeleteResponse{Deleted: deleted})
}

func positiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return n, nil
}
