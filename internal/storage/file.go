package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "tradealert/pkg/logx"
)

// compactEvery is the number of journal appends between snapshot rewrites.
const compactEvery = 200

// fileStore keeps the whole history in memory.
//
// Files:
//   - <path>               (snapshot: JSON map key -> record)
//   - <path>.journal.jsonl (append-only journal since the last snapshot)
//
// The journal is folded into the snapshot by atomic rename.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	records      map[string]AlertRecord
	retention    time.Duration

	writes int
}

type journalRecord struct {
	Key string `json:"key"`
	AlertRecord
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	journalPath := path + ".journal.jsonl"

	// A missing or unparsable history means an empty one. Single bad
	// records are skipped and the rest are kept.
	records := map[string]AlertRecord{}
	skipped, err := loadSnapshot(path, cfg.Location, records)
	switch {
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		log.Warn("alert history unreadable; starting empty", logx.String("path", path), logx.Err(err))
		records = map[string]AlertRecord{}
		if rerr := os.Rename(path, path+".corrupt"); rerr != nil {
			log.Debug("could not move corrupt history aside", logx.Err(rerr))
		}
	case skipped > 0:
		log.Warn("alert history records skipped", logx.String("path", path), logx.Int("skipped", skipped))
	}
	if err := replayJournal(journalPath, records); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("alert journal unreadable; ignoring tail", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: path,
		journalFile:  jf,
		records:      records,
		retention:    cfg.Retention,
	}
	s.mu.Lock()
	if err := s.compactLocked(); err != nil {
		s.log.Warn("alert history compact failed", logx.Err(err))
	}
	s.mu.Unlock()
	log.Debug("alert history loaded", logx.Int("records", len(records)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journalFile.Close(); err == nil {
		err = cerr
	}
	s.journalFile = nil
	return err
}

func (s *fileStore) Has(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok, nil
}

func (s *fileStore) Put(ctx context.Context, key string, rec AlertRecord) (bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("empty key")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	// memory first: a failed write still suppresses for this process
	s.records[key] = rec
	if s.journalFile == nil {
		return true, errors.New("alert journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(journalRecord{Key: key, AlertRecord: rec}); err != nil {
		return true, err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("alert history compact failed", logx.Err(err))
		}
	}
	return true, nil
}

func (s *fileStore) Prune(ctx context.Context, before time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	n := pruneBefore(s.records, before)
	if n == 0 {
		return 0, nil
	}
	return n, s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	if s.retention > 0 {
		pruneBefore(s.records, time.Now().Add(-s.retention))
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if s.journalFile == nil {
		return nil
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

// loadSnapshot merges the snapshot into out and returns how many records
// were skipped. Only a file that is not a JSON object is an error.
func loadSnapshot(path string, loc *time.Location, out map[string]AlertRecord) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return 0, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return 0, err
	}
	skipped := 0
	for k, raw := range m {
		rec, err := decodeRecord(raw, loc)
		if err != nil || strings.TrimSpace(k) == "" {
			skipped++
			continue
		}
		out[k] = rec
	}
	return skipped, nil
}

// decodeRecord reads one snapshot value. Timestamps may lack a zone offset.
func decodeRecord(raw json.RawMessage, loc *time.Location) (AlertRecord, error) {
	var v struct {
		Timestamp string `json:"timestamp"`
		Alerted   *bool  `json:"alerted"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return AlertRecord{}, err
	}
	ts, err := ParseTimestamp(v.Timestamp, loc)
	if err != nil {
		return AlertRecord{}, err
	}
	rec := AlertRecord{Timestamp: ts, Alerted: true}
	if v.Alerted != nil {
		rec.Alerted = *v.Alerted
	}
	return rec, nil
}

func replayJournal(path string, out map[string]AlertRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		if _, ok := out[r.Key]; !ok {
			out[r.Key] = r.AlertRecord
		}
	}
	return sc.Err()
}

func pruneBefore(m map[string]AlertRecord, before time.Time) int {
	n := 0
	for k, v := range m {
		if v.Timestamp.Before(before) {
			delete(m, k)
			n++
		}
	}
	return n
}
