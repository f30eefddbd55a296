// Package decisionlog is the durable, append-only CSV record of every
// classification decision. The first record written to an empty store
// fixes the header; later rows are aligned to it by column name.
package decisionlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// DriftHook observes every record whose field set differs from the header.
type DriftHook func(d Drift, policy DriftPolicy)

// Options configures a Log.
type Options struct {
	DriftPolicy DriftPolicy
	OnDrift     DriftHook
	Logger      *zap.Logger
}

// Log appends decision rows to a CSV file.
// Safe for concurrent use, including by other processes sharing the path:
// every append holds an exclusive lock on LockPath(path) and re-reads the
// header under it. Each row is written with a single write call.
type Log struct {
	path    string
	mu      sync.Mutex
	header  []string
	policy  DriftPolicy
	onDrift DriftHook
	logger  *zap.Logger
}

// Open prepares a decision log at path, creating parent directories.
// The file itself is created by the first Append. An existing store's
// header is read back and its schema sidecar repaired if needed.
func Open(path string, opts Options) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("decisionlog: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("decisionlog: create directory: %w", err)
	}

	policy := opts.DriftPolicy
	if policy == "" {
		policy = DriftTolerate
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{
		path:    path,
		policy:  policy,
		onDrift: opts.OnDrift,
		logger:  logger.With(zap.String("log_path", path)),
	}

	unlock, err := lockFile(LockPath(path))
	if err != nil {
		return nil, err
	}
	defer unlock()

	header, err := l.loadHeader()
	if err != nil {
		// Retried on the next Append.
		l.logger.Warn("read decision log header", zap.Error(err))
	}
	l.header = header
	return l, nil
}

// LockPath returns the advisory lock file guarding the log at logPath.
func LockPath(logPath string) string {
	return logPath + ".lock"
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Header returns a copy of the established header, or nil for an empty store.
func (l *Log) Header() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.header...)
}

// SetDriftPolicy swaps the drift policy for subsequent appends.
func (l *Log) SetDriftPolicy(p DriftPolicy) {
	l.mu.Lock()
	l.policy = p
	l.mu.Unlock()
}

// DriftPolicy returns the active drift policy.
func (l *Log) DriftPolicy() DriftPolicy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.policy
}

// Append writes one decision row, preceded by the header when the store
// is empty or missing.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := lockFile(LockPath(l.path))
	if err != nil {
		return err
	}
	defer unlock()

	cols := rec.columns()
	vals := rec.values()

	header, err := l.currentHeader()
	if err != nil {
		return err
	}
	if header == nil {
		return l.create(cols, vals)
	}

	if d := diffColumns(header, cols); !d.Empty() {
		l.logger.Warn("record fields differ from log header",
			zap.Strings("added", d.Added),
			zap.Strings("missing", d.Missing),
			zap.String("policy", string(l.policy)))
		if l.onDrift != nil {
			l.onDrift(d, l.policy)
		}
		switch l.policy {
		case DriftReject:
			return &DriftError{Drift: d}
		case DriftMigrate:
			if len(d.Added) > 0 {
				header, err = l.migrate(header, d.Added)
				if err != nil {
					return err
				}
			}
		}
	}

	return l.write(false, nil, rowFor(header, vals))
}

// currentHeader reads the header row from disk and refreshes the cache.
// Another process may have created, deleted or widened the store since
// the last append. A missing or empty file returns nil. Callers hold the
// file lock.
func (l *Log) currentHeader() ([]string, error) {
	header, err := readFirstRow(l.path)
	if err != nil {
		return nil, err
	}
	if header == nil {
		l.header = nil
		return nil, nil
	}
	if l.header == nil || !sameColumns(l.header, header) {
		if l.header != nil {
			l.logger.Info("decision log header changed on disk",
				zap.Strings("cached", l.header),
				zap.Strings("header", header))
		}
		if header, err = l.loadHeader(); err != nil {
			return nil, err
		}
	}
	l.header = header
	return header, nil
}

// create starts an empty store: header and first row land in one write.
func (l *Log) create(cols []string, vals map[string]string) error {
	if err := l.write(true, cols, rowFor(cols, vals)); err != nil {
		return err
	}
	l.header = cols
	if err := writeSchema(SchemaPath(l.path), cols); err != nil {
		l.logger.Warn("write schema sidecar", zap.Error(err))
	}
	return nil
}

// write appends the encoded rows and syncs.
func (l *Log) write(withHeader bool, header, row []string) (err error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if withHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("decisionlog: encode header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("decisionlog: encode row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("decisionlog: encode row: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("decisionlog: open: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("decisionlog: close: %w", cerr)
		}
	}()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("decisionlog: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("decisionlog: sync: %w", err)
	}
	return nil
}

// loadHeader reads the first physical row and reconciles the sidecar with it.
func (l *Log) loadHeader() ([]string, error) {
	header, err := readFirstRow(l.path)
	if err != nil || header == nil {
		return nil, err
	}

	schemaPath := SchemaPath(l.path)
	schema, err := ReadSchema(schemaPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.logger.Info("schema sidecar missing, rebuilding from header row")
	case err != nil:
		l.logger.Warn("schema sidecar unreadable, rebuilding from header row", zap.Error(err))
	case !sameColumns(schema.Columns, header):
		l.logger.Warn("schema sidecar disagrees with header row, header row wins",
			zap.Strings("sidecar", schema.Columns),
			zap.Strings("header", header))
	default:
		return header, nil
	}
	if err := writeSchema(schemaPath, header); err != nil {
		l.logger.Warn("repair schema sidecar", zap.Error(err))
	}
	return header, nil
}

// migrate widens the header with added columns by rewriting the store
// into a temporary file and renaming it over the original.
func (l *Log) migrate(header, added []string) ([]string, error) {
	table, err := ReadTable(l.path)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	widened := append(append([]string(nil), header...), added...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(widened); err != nil {
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	for _, row := range table.Rows {
		out := make([]string, len(widened))
		copy(out, row)
		if err := w.Write(out); err != nil {
			return nil, fmt.Errorf("decisionlog: migrate: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".decisionlog-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("decisionlog: migrate: %w", err)
	}

	l.header = widened
	if err := writeSchema(SchemaPath(l.path), widened); err != nil {
		l.logger.Warn("write schema sidecar", zap.Error(err))
	}
	l.logger.Info("decision log header widened",
		zap.Strings("added", added),
		zap.Int("rows", len(table.Rows)))
	return widened, nil
}

// rowFor aligns values to header by name. Absent columns are empty;
// values without a header column are dropped.
func rowFor(header []string, vals map[string]string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = vals[col]
	}
	return row
}

func readFirstRow(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decisionlog: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	row, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decisionlog: read header: %w", err)
	}
	return row, nil
}
