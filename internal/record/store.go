package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"regdesk/pkg/sentinel"
)

var (
	// ErrIndexOutOfRange marks a record index no longer present, typically a
	// stale session binding after an external reload shrank the table.
	// Callers treat it as a session expiry, never a crash.
	ErrIndexOutOfRange = errors.New("record index out of range")

	// ErrNoSuchField marks a write to a column the table does not declare.
	ErrNoSuchField = errors.New("no such field")
)

// defaultHeader seeds a brand-new table file. Column order follows the
// original registry layout.
var defaultHeader = []string{
	"FullName", "DateOfBirth", "BankName", "AccountNumber",
	FieldEmail, FieldPhone, "AdmissionNumber",
	"Course", "Address", "Wallet", "Timestamp",
}

// ActionLogger is the consumer-side port into the append-only action log.
// A nil logger disables recording.
type ActionLogger interface {
	RecordAction(ctx context.Context, actor, action, subject, reason string)
}

// Match pairs a record with its positional index for search results.
type Match struct {
	Index  int
	Record Record
}

// Store owns the in-memory table and its backing CSV file. Every operation
// runs under one lock: readers share, and Load/SetField/Append/Persist are
// exclusive with everything, so a read never observes a half-applied swap.
type Store struct {
	mu sync.RWMutex

	csvPath    string
	backupDir  string
	backupKeep int

	header []string
	rows   []Record
	mtime  time.Time
	loaded bool

	logger *slog.Logger
	audit  ActionLogger
}

func NewStore(csvPath, backupDir string, backupKeep int, logger *slog.Logger, audit ActionLogger) *Store {
	return &Store{
		csvPath:    csvPath,
		backupDir:  backupDir,
		backupKeep: backupKeep,
		logger:     logger,
		audit:      audit,
	}
}

// Path returns the canonical table file path.
func (s *Store) Path() string { return s.csvPath }

// Load reads the backing file and replaces the in-memory table as a single
// atomic swap. It is idempotent while the file's modification time is
// unchanged. A missing file is created with the declared columns.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.csvPath)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeFileLocked(defaultHeader, nil); err != nil {
			return fmt.Errorf("create table file: %w", err)
		}
		info, err = os.Stat(s.csvPath)
		if err != nil {
			return fmt.Errorf("stat table file: %w", err)
		}
		s.header = append([]string(nil), defaultHeader...)
		s.rows = nil
		s.mtime = info.ModTime()
		s.loaded = true
		s.logger.InfoContext(ctx, "table file created", "path", s.csvPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat table file: %w", err)
	}

	if s.loaded && info.ModTime().Equal(s.mtime) {
		return nil
	}

	header, rows, err := s.parseFile()
	if err != nil {
		return err
	}

	s.warnDuplicateIdentities(ctx, rows)

	s.header = header
	s.rows = rows
	s.mtime = info.ModTime()
	s.loaded = true
	s.logger.InfoContext(ctx, "table loaded", "path", s.csvPath, "rows", len(rows))
	return nil
}

func (s *Store) parseFile() ([]string, []Record, error) {
	f, err := os.Open(s.csvPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open table file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return append([]string(nil), defaultHeader...), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("parse table header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	// Every declared column must exist; absent ones are created empty so
	// lookups and edits never hit a missing key.
	for _, declared := range append(append([]string(nil), ImmutableFields...), EditableFields...) {
		found := false
		for _, h := range header {
			if h == declared {
				found = true
				break
			}
		}
		if !found {
			header = append(header, declared)
		}
	}

	var rows []Record
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse table row %d: %w", len(rows)+1, err)
		}
		row := make(Record, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// warnDuplicateIdentities flags rows sharing a normalized (email, phone) pair.
// Lookup resolves them first-match-wins; the warning makes the tie-break an
// explicit policy instead of a silent accident.
func (s *Store) warnDuplicateIdentities(ctx context.Context, rows []Record) {
	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		key := normalizeEmail(row[FieldEmail]) + "\x00" + normalizePhone(row[FieldPhone])
		if key == "\x00" {
			continue
		}
		if first, ok := seen[key]; ok {
			s.logger.WarnContext(ctx, "duplicate identity pair, first match wins",
				"first_index", first, "duplicate_index", i, "email", row[FieldEmail])
			continue
		}
		seen[key] = i
	}
}

// FindByIdentity scans for the first record matching the claimed pair.
// Email compares case-insensitively, phone literally, both after trimming.
func (s *Store) FindByIdentity(email, phone string) (int, Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantEmail := normalizeEmail(email)
	wantPhone := normalizePhone(phone)
	if wantEmail == "" || wantPhone == "" {
		return 0, nil, sentinel.ErrNotFound
	}
	for i, row := range s.rows {
		if normalizeEmail(row[FieldEmail]) == wantEmail && normalizePhone(row[FieldPhone]) == wantPhone {
			return i, row.Clone(), nil
		}
	}
	return 0, nil, sentinel.ErrNotFound
}

// Get returns a copy of the row at index.
func (s *Store) Get(index int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.rows) {
		return nil, ErrIndexOutOfRange
	}
	return s.rows[index].Clone(), nil
}

// SetField mutates one cell in memory and returns the previous value. It does
// not persist; callers pair it with Persist.
func (s *Store) SetField(index int, field, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.rows) {
		return "", ErrIndexOutOfRange
	}
	if !s.hasColumnLocked(field) {
		return "", ErrNoSuchField
	}
	old := s.rows[index][field]
	s.rows[index][field] = value
	return old, nil
}

func (s *Store) hasColumnLocked(field string) bool {
	for _, h := range s.header {
		if h == field {
			return true
		}
	}
	return false
}

// Append adds a new row, filling declared columns from fields and leaving
// unknown keys out. Returns the new row's index.
func (s *Store) Append(fields map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return 0, sentinel.ErrInvalidState
	}
	row := make(Record, len(s.header))
	for _, col := range s.header {
		row[col] = fields[col]
	}
	s.rows = append(s.rows, row)
	return len(s.rows) - 1, nil
}

// Search returns rows where any cell contains q, case-insensitively.
func (s *Store) Search(q string) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var matches []Match
	for i, row := range s.rows {
		for _, v := range row {
			if strings.Contains(strings.ToLower(v), q) {
				matches = append(matches, Match{Index: i, Record: row.Clone()})
				break
			}
		}
	}
	return matches
}

// Rows returns a copy of every row in positional order.
func (s *Store) Rows() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.rows))
	for i, row := range s.rows {
		out[i] = row.Clone()
	}
	return out
}

// Header returns the column order used on disk.
func (s *Store) Header() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.header...)
}

// Len returns the current row count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Persist writes a timestamped backup of the current on-disk file, then the
// in-memory table to a temp file renamed over the canonical path. A crash
// mid-write leaves the canonical file either fully old or fully new.
func (s *Store) Persist(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.csvPath); err == nil {
		if _, err := s.backupLocked(); err != nil {
			return fmt.Errorf("backup before persist: %w", err)
		}
	}

	if err := s.writeFileLocked(s.header, s.rows); err != nil {
		return err
	}
	if info, err := os.Stat(s.csvPath); err == nil {
		// Adopting our own write's mtime keeps the watcher from reloading it.
		s.mtime = info.ModTime()
	}

	if s.audit != nil {
		s.audit.RecordAction(ctx, "system", "table_persisted", s.csvPath, reason)
	}
	s.logger.InfoContext(ctx, "table persisted", "reason", reason, "rows", len(s.rows))
	return nil
}

// Backup copies the current on-disk file into the backup directory without
// rewriting the canonical file. Used by the admin force-backup operation.
func (s *Store) Backup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.backupLocked()
	if err != nil {
		return "", err
	}
	if s.audit != nil {
		s.audit.RecordAction(ctx, "admin", "backup_written", path, "manual backup")
	}
	return path, nil
}

func (s *Store) backupLocked() (string, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", err
	}
	src, err := os.ReadFile(s.csvPath)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("data_%s.csv", time.Now().UTC().Format("20060102_150405"))
	dst := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(dst, src, 0o644); err != nil {
		return "", err
	}
	s.pruneBackupsLocked()
	return dst, nil
}

// pruneBackupsLocked enforces the count-based retention bound. The timestamp
// filename format sorts lexicographically, oldest first.
func (s *Store) pruneBackupsLocked() {
	if s.backupKeep <= 0 {
		return
	}
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		s.logger.Warn("backup prune skipped", "error", err)
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "data_") && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= s.backupKeep {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-s.backupKeep] {
		if err := os.Remove(filepath.Join(s.backupDir, name)); err != nil {
			s.logger.Warn("backup prune failed", "file", name, "error", err)
		}
	}
}

func (s *Store) writeFileLocked(header []string, rows []Record) error {
	tmp := s.csvPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write temp table file: %w", err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write(header)
	for _, row := range rows {
		if writeErr != nil {
			break
		}
		cells := make([]string, len(header))
		for i, col := range header {
			cells[i] = row[col]
		}
		writeErr = w.Write(cells)
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write temp table file: %w", writeErr)
	}

	if err := os.Rename(tmp, s.csvPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename table file: %w", err)
	}
	return nil
}
