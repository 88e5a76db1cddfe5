// Package csvfile stores each table as one CSV file with a fixed header row.
// The files are loaded into memory at open; reads never touch disk.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
	"github.com/unichat/internal/storage/memory"
)

// Table appends new rows to the file and rewrites it through a temp file when a row changes.
type Table[T storage.Record] struct {
	mu    sync.Mutex
	path  string
	codec codec[T]
	index *memory.Table[T]
}

func openTable[T storage.Record](dir, name string, c codec[T]) (*Table[T], error) {
	t := &Table[T]{
		path:  filepath.Join(dir, name+".csv"),
		codec: c,
		index: memory.NewTable[T](),
	}
	if err := t.load(); err != nil {
		return nil, fmt.Errorf("csvfile.open %s: %w", name, err)
	}
	return t, nil
}

func (t *Table[T]) load() error {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return t.rewrite(nil)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		f.Close()
		return t.rewrite(nil)
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, t.codec.header) {
		return fmt.Errorf("unexpected header %v", header)
	}

	ctx := context.Background()
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) != len(t.codec.header) {
			logger.Errorf("csvfile: %s line %d has %d fields, skipped", t.path, line, len(row))
			continue
		}
		rec, err := t.codec.decode(row)
		if err != nil {
			logger.Errorf("csvfile: %s line %d: %v, skipped", t.path, line, err)
			continue
		}
		if err := t.index.Put(ctx, rec); err != nil {
			return err
		}
	}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	return t.index.Get(ctx, id)
}

func (t *Table[T]) List(ctx context.Context, match func(T) bool) ([]T, error) {
	return t.index.List(ctx, match)
}

func (t *Table[T]) Append(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("csvfile.Append", time.Now())()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.index.Get(ctx, rec.RecordID()); err == nil {
		return storage.ErrConflict
	}
	if err := t.appendRow(rec); err != nil {
		return fmt.Errorf("csvfile.Append: %w", err)
	}
	return t.index.Append(ctx, rec)
}

func (t *Table[T]) Put(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("csvfile.Put", time.Now())()
	t.mu.Lock()
	defer t.mu.Unlock()

	id := rec.RecordID()
	if _, err := t.index.Get(ctx, id); errors.Is(err, storage.ErrNotFound) {
		if err := t.appendRow(rec); err != nil {
			return fmt.Errorf("csvfile.Put: %w", err)
		}
		return t.index.Put(ctx, rec)
	}

	all, err := t.index.List(ctx, nil)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].RecordID() == id {
			all[i] = rec
		}
	}
	if err := t.rewrite(all); err != nil {
		return fmt.Errorf("csvfile.Put: %w", err)
	}
	return t.index.Put(ctx, rec)
}

func (t *Table[T]) appendRow(rec T) error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.codec.encode(rec)); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rewrite replaces the file atomically with header plus rows.
func (t *Table[T]) rewrite(rows []T) error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.codec.header); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	for _, rec := range rows {
		if err := w.Write(t.codec.encode(rec)); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, t.path)
}

// Open loads (or creates) the five table files under dir.
func Open(dir string) (*storage.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvfile.Open: %w", err)
	}
	users, err := openTable(dir, storage.TableUsers, userCodec)
	if err != nil {
		return nil, err
	}
	chats, err := openTable(dir, storage.TableChats, chatCodec)
	if err != nil {
		return nil, err
	}
	messages, err := openTable(dir, storage.TableMessages, messageCodec)
	if err != nil {
		return nil, err
	}
	groups, err := openTable(dir, storage.TableGroups, groupCodec)
	if err != nil {
		return nil, err
	}
	announcements, err := openTable(dir, storage.TableAnnouncements, announcementCodec)
	if err != nil {
		return nil, err
	}
	logger.Infof("csvfile: opened %s", dir)
	return &storage.Store{
		Users:         users,
		Chats:         chats,
		Messages:      messages,
		Groups:        groups,
		Announcements: announcements,
	}, nil
}

var _ storage.Table[model.Group] = (*Table[model.Group])(nil)
