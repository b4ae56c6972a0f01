package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"wisefido-power/internal/models"

	"go.uber.org/zap"
)

// FileHistoryLog append-only CSV log, one "epoch_ms,watts" line per point.
// Lines written by the legacy meter reader ("epoch_s,watts") are read as well.
type FileHistoryLog struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	size   int64
	last   time.Time
	logger *zap.Logger
}

// NewFileHistoryLog opens (or creates) the log, recovers the last timestamp and
// drops a torn trailing line left by a crash mid-append.
func NewFileHistoryLog(path string, logger *zap.Logger) (*FileHistoryLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}

	l := &FileHistoryLog{
		path:   path,
		file:   f,
		logger: logger,
	}
	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Info("History log opened",
		zap.String("path", path),
		zap.Int64("size_bytes", l.size),
		zap.Time("last_timestamp", l.last),
	)
	return l, nil
}

func (l *FileHistoryLog) recover() error {
	rf, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open history log for scan: %w", err)
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var offset int64
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				l.logger.Warn("Truncating torn history line",
					zap.Int64("offset", offset),
					zap.Int("bytes", len(line)),
				)
				if err := l.file.Truncate(offset); err != nil {
					return fmt.Errorf("failed to truncate torn history line: %w", err)
				}
			}
			break
		}
		if err != nil {
			return fmt.Errorf("failed to scan history log: %w", err)
		}
		offset += int64(len(line))

		if p, ok := parseLine(bytes.TrimSpace(line)); ok && p.Timestamp.After(l.last) {
			l.last = p.Timestamp
		}
	}

	l.size = offset
	return nil
}

func parseLine(line []byte) (models.HistoryPoint, bool) {
	comma := bytes.IndexByte(line, ',')
	if comma <= 0 {
		return models.HistoryPoint{}, false
	}
	return parsePoint(string(line[:comma]), string(line[comma+1:]))
}

func parsePoint(tsField, wattsField string) (models.HistoryPoint, bool) {
	ts, err := strconv.ParseInt(strings.TrimSpace(tsField), 10, 64)
	if err != nil {
		return models.HistoryPoint{}, false
	}
	watts, ok := models.ParseRawPower(wattsField)
	if !ok {
		return models.HistoryPoint{}, false
	}
	return models.HistoryPoint{Timestamp: fromEpoch(ts), PowerWatts: watts}, true
}

// Append writes one line in a single write call under the write lock
func (l *FileHistoryLog) Append(_ context.Context, p models.HistoryPoint) error {
	p.Timestamp = normalize(p.Timestamp)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() && !p.Timestamp.After(l.last) {
		return fmt.Errorf("%w: %s is not after %s", ErrOutOfOrder,
			p.Timestamp.Format(time.RFC3339Nano), l.last.Format(time.RFC3339Nano))
	}

	line := strconv.AppendInt(nil, p.Timestamp.UnixMilli(), 10)
	line = append(line, ',')
	line = strconv.AppendInt(line, p.PowerWatts, 10)
	line = append(line, '\n')

	n, err := l.file.Write(line)
	if err != nil {
		if n > 0 {
			// keep the file line-aligned for the next append
			if terr := l.file.Truncate(l.size); terr != nil {
				l.logger.Error("Failed to roll back partial history line", zap.Error(terr))
			}
		}
		return fmt.Errorf("%w: failed to append history line: %v", ErrStorage, err)
	}

	l.size += int64(n)
	l.last = p.Timestamp
	return nil
}

// Query scans the file up to the size committed when the query began.
// The lock is held only for that snapshot, so appends proceed during the scan.
func (l *FileHistoryLog) Query(ctx context.Context, r models.TimeRange) (models.HistorySeries, error) {
	l.mu.RLock()
	size := l.size
	l.mu.RUnlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open history log: %v", ErrStorage, err)
	}
	defer f.Close()

	// bytes below size are never rewritten: rollback truncates back to l.size only
	cr := csv.NewReader(io.LimitReader(f, size))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	series := models.HistorySeries{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, fmt.Errorf("%w: failed to read history log: %v", ErrStorage, err)
		}
		if len(record) < 2 {
			continue
		}

		p, ok := parsePoint(record[0], record[1])
		if !ok {
			// header row or foreign line
			continue
		}
		if !r.To.IsZero() && p.Timestamp.After(r.To) {
			break
		}
		if r.Contains(p.Timestamp) {
			series = append(series, p)
		}
	}

	return series, nil
}

// Last timestamp of the newest point, zero if empty
func (l *FileHistoryLog) Last() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Close closes the underlying file
func (l *FileHistoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
