package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

const (
	keyLastAttempt = "last-attempt"
	keyLastSuccess = "last-success"
	runKeyPrefix   = "run-"
)

// History persists sync reports as JSON files under a state directory.
type History struct {
	d    *diskv.Diskv
	keep int
}

// OpenHistory returns a History rooted at dir keeping the last keep runs.
func OpenHistory(dir string, keep int) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("syncer: history dir: %w", err)
	}
	if keep <= 0 {
		keep = 50
	}
	return &History{
		d: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 256 * 1024,
		}),
		keep: keep,
	}, nil
}

// Record stores rep as the last attempt, as the last success when it has no
// error, and appends it to the run log.
func (h *History) Record(rep Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("syncer: encode report: %w", err)
	}
	if err := h.d.Write(keyLastAttempt, data); err != nil {
		return fmt.Errorf("syncer: write history: %w", err)
	}
	if rep.Error == "" {
		if err := h.d.Write(keyLastSuccess, data); err != nil {
			return fmt.Errorf("syncer: write history: %w", err)
		}
	}
	key := fmt.Sprintf("%s%020d-%s", runKeyPrefix, rep.StartedAt.UnixNano(), rep.ID)
	if err := h.d.Write(key, data); err != nil {
		return fmt.Errorf("syncer: write history: %w", err)
	}
	return h.prune()
}

// LastAttempt returns the most recent report, or nil.
func (h *History) LastAttempt() (*Report, error) { return h.read(keyLastAttempt) }

// LastSuccess returns the most recent successful report, or nil.
func (h *History) LastSuccess() (*Report, error) { return h.read(keyLastSuccess) }

// Recent returns up to n reports, newest first.
func (h *History) Recent(n int) ([]Report, error) {
	keys := h.runKeys()
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	out := make([]Report, 0, len(keys))
	for _, k := range keys {
		rep, err := h.read(k)
		if err != nil {
			return nil, err
		}
		if rep != nil {
			out = append(out, *rep)
		}
	}
	return out, nil
}

func (h *History) read(key string) (*Report, error) {
	if !h.d.Has(key) {
		return nil, nil
	}
	data, err := h.d.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncer: read history: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("syncer: decode report %s: %w", key, err)
	}
	return &rep, nil
}

func (h *History) runKeys() []string {
	var keys []string
	for k := range h.d.Keys(context.Background().Done()) {
		if strings.HasPrefix(k, runKeyPrefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (h *History) prune() error {
	keys := h.runKeys()
	if len(keys) <= h.keep {
		return nil
	}
	sort.Strings(keys)
	for _, k := range keys[:len(keys)-h.keep] {
		if err := h.d.Erase(k); err != nil {
			return fmt.Errorf("syncer: prune history: %w", err)
		}
	}
	return nil
}
