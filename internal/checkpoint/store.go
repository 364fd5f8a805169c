package checkpoint

import (
	"crypto/md5" //nolint:gosec // filename key, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

// Store manages the checkpoint directory. Each target's state lives in
// its own file keyed by a hash of the target URL, so stores are safe
// for concurrent use across distinct targets.
type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// PathFor returns the checkpoint file path for a target URL.
func (s *Store) PathFor(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Load reads the checkpoint for a target, creating a zeroed one when no
// file exists, repairing malformed substructures in place, and
// reconciling the stored quota plan against the caller's plan.
func (s *Store) Load(url string, plan review.QuotaPlan) (*Checkpoint, error) {
	c := &Checkpoint{path: s.PathFor(url)}

	data, err := os.ReadFile(c.path)
	switch {
	case err == nil:
		c.doc = repairDocument(url, plan, data)
	case os.IsNotExist(err):
		c.doc = newDocument(url, plan)
	default:
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	c.rebuildSeen()

	if err := c.Reconcile(plan); err != nil {
		return nil, err
	}
	// A fresh document has not touched disk yet; Reconcile only saves on
	// drift, so persist explicitly to claim the file.
	if _, statErr := os.Stat(c.path); os.IsNotExist(statErr) {
		if err := c.save(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// repairDocument decodes a checkpoint file section by section, replacing
// any missing or malformed substructure with its zero form instead of
// discarding the rest of the record.
func repairDocument(url string, plan review.QuotaPlan, data []byte) document {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return newDocument(url, plan)
	}

	d := newDocument(url, plan)

	if v, ok := raw["url"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			d.URL = s
		}
	}
	if v, ok := raw["completed"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			d.Completed = b
		}
	}
	if v, ok := raw["last_update"]; ok {
		var f float64
		if json.Unmarshal(v, &f) == nil {
			d.LastUpdate = f
		}
	}

	repairIntMap(raw["targets"], d.Targets, true)
	repairIntMap(raw["counts"], d.Counts, true)
	repairIntMap(raw["pages_done"], d.PagesDone, false)

	if v, ok := raw["exhausted"]; ok {
		var m map[string]bool
		if json.Unmarshal(v, &m) == nil {
			for _, s := range review.StarLevels {
				if b, ok := m[starKey(s)]; ok {
					d.Exhausted[starKey(s)] = b
				}
			}
		}
	}
	if v, ok := raw["seen_hashes"]; ok {
		var m map[string][]string
		if json.Unmarshal(v, &m) == nil {
			for _, s := range review.StarLevels {
				if bucket, ok := m[starKey(s)]; ok && bucket != nil {
					d.SeenHashes[starKey(s)] = bucket
				}
			}
		}
	}
	return d
}

func repairIntMap(v json.RawMessage, dst map[string]int, withTotal bool) {
	if v == nil {
		return
	}
	var m map[string]int
	if json.Unmarshal(v, &m) != nil {
		return
	}
	for _, s := range review.StarLevels {
		if n, ok := m[starKey(s)]; ok {
			dst[starKey(s)] = n
		}
	}
	if withTotal {
		if n, ok := m[totalKey]; ok {
			dst[totalKey] = n
		}
	}
}

// TargetProgress is a read-only view of one persisted checkpoint,
// served by the status API.
type TargetProgress struct {
	URL        string      `json:"url"`
	Completed  bool        `json:"completed"`
	Total      int         `json:"total"`
	TotalCap   int         `json:"total_cap"`
	PerStar    map[int]int `json:"per_star"`
	LastUpdate float64     `json:"last_update"`
}

func progressOf(d document) TargetProgress {
	tp := TargetProgress{
		URL:        d.URL,
		Completed:  d.Completed,
		Total:      d.Counts[totalKey],
		TotalCap:   d.Targets[totalKey],
		PerStar:    make(map[int]int, len(review.StarLevels)),
		LastUpdate: d.LastUpdate,
	}
	for _, star := range review.StarLevels {
		tp.PerStar[star] = d.Counts[starKey(star)]
	}
	return tp
}

// Peek reads one target's persisted progress as-is, without
// reconciling it against any plan.
func (s *Store) Peek(url string) (TargetProgress, bool, error) {
	data, err := os.ReadFile(s.PathFor(url))
	switch {
	case os.IsNotExist(err):
		return TargetProgress{}, false, nil
	case err != nil:
		return TargetProgress{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return TargetProgress{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return progressOf(d), true, nil
}

// Snapshot enumerates every persisted checkpoint.
func (s *Store) Snapshot() ([]TargetProgress, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]TargetProgress, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var d document
		if json.Unmarshal(data, &d) != nil {
			continue
		}
		out = append(out, progressOf(d))
	}
	return out, nil
}

// CompletedTargets returns the set of target URLs marked completed, so
// the sweep can skip them without opening the orchestrator.
func (s *Store) CompletedTargets() (map[string]struct{}, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{})
	for _, tp := range snapshot {
		if tp.Completed && tp.URL != "" {
			done[tp.URL] = struct{}{}
		}
	}
	return done, nil
}
