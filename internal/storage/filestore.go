package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"pricebot/internal/market"
)

const (
	// DefaultMaxHistory caps each per-token history file.
	DefaultMaxHistory = 1000
	// DefaultMaxAlerts caps the shared alerts file.
	DefaultMaxAlerts = 500

	alertsFile = "alerts.json"
)

// HistoryStore persists per-token price history.
type HistoryStore interface {
	SavePriceData(ctx context.Context, token string, record PriceRecord) error
	LoadPriceData(ctx context.Context, token string) ([]PriceRecord, error)
	LastPrice(ctx context.Context, token string) (PriceRecord, bool, error)
}

// AlertLog persists triggered alerts.
type AlertLog interface {
	SaveAlertData(ctx context.Context, alert market.Alert) error
	LoadAlertData(ctx context.Context) ([]market.Alert, error)
}

// FileStoreOptions parameterise the JSON file store.
type FileStoreOptions struct {
	Dir        string
	MaxHistory int
	MaxAlerts  int
}

// FileStore keeps one pretty-printed JSON array per token plus a shared alerts file.
// Every save is a whole-file read-modify-write, serialized per file and
// committed with a rename so a crash never leaves a partial file behind.
type FileStore struct {
	fs     afero.Fs
	opts   FileStoreOptions
	logger zerolog.Logger
	locks  *keyedMutex
}

// NewFileStore wires a filesystem into a FileStore.
func NewFileStore(fsys afero.Fs, opts FileStoreOptions, logger zerolog.Logger) *FileStore {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	if opts.Dir == "" {
		opts.Dir = "data"
	}
	return &FileStore{
		fs:     fsys,
		opts:   opts,
		logger: logger.With().Str("component", "file_store").Logger(),
		locks:  newKeyedMutex(),
	}
}

// Init creates the data directory. Safe to call repeatedly.
func (s *FileStore) Init() error {
	exists, err := afero.DirExists(s.fs, s.opts.Dir)
	if err != nil {
		return &StorageError{Op: "stat", Resource: s.opts.Dir, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.fs.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Resource: s.opts.Dir, Err: err}
	}
	s.logger.Info().Str("dir", s.opts.Dir).Msg("created data directory")
	return nil
}

// SavePriceData appends record to the token's history, keeping the newest MaxHistory entries.
func (s *FileStore) SavePriceData(ctx context.Context, token string, record PriceRecord) error {
	path, err := s.historyPath(token)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "save", Resource: path, Err: err}
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	history, err := readRecords[PriceRecord](s.fs, path)
	if err != nil {
		return err
	}
	history = appendCapped(history, record, s.opts.MaxHistory)
	return s.writeRecords(path, history)
}

// LoadPriceData returns the token's history oldest-first; empty if never saved.
func (s *FileStore) LoadPriceData(ctx context.Context, token string) ([]PriceRecord, error) {
	path, err := s.historyPath(token)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(path)
	defer unlock()

	return readRecords[PriceRecord](s.fs, path)
}

// LastPrice returns the newest persisted record, ok is false when history is empty.
func (s *FileStore) LastPrice(ctx context.Context, token string) (PriceRecord, bool, error) {
	history, err := s.LoadPriceData(ctx, token)
	if err != nil {
		return PriceRecord{}, false, err
	}
	if len(history) == 0 {
		return PriceRecord{}, false, nil
	}
	return history[len(history)-1], true, nil
}

// SaveAlertData appends alert to the shared alerts file, keeping the newest MaxAlerts entries.
func (s *FileStore) SaveAlertData(ctx context.Context, alert market.Alert) error {
	path := filepath.Join(s.opts.Dir, alertsFile)
	if err := ctx.Err(); err != nil {
		return &StorageError{Op: "save", Resource: path, Err: err}
	}

	unlock := s.locks.Lock(path)
	defer unlock()

	alerts, err := readRecords[market.Alert](s.fs, path)
	if err != nil {
		return err
	}
	alerts = appendCapped(alerts, alert, s.opts.MaxAlerts)
	return s.writeRecords(path, alerts)
}

// LoadAlertData returns persisted alerts oldest-first.
func (s *FileStore) LoadAlertData(ctx context.Context) ([]market.Alert, error) {
	path := filepath.Join(s.opts.Dir, alertsFile)
	unlock := s.locks.Lock(path)
	defer unlock()

	return readRecords[market.Alert](s.fs, path)
}

func (s *FileStore) historyPath(token string) (string, error) {
	if token == "" || strings.ContainsAny(token, `/\`) || strings.Contains(token, "..") {
		return "", &StorageError{Op: "resolve", Resource: token, Err: errors.New("invalid token identifier")}
	}
	return filepath.Join(s.opts.Dir, token+"_prices.json"), nil
}

func (s *FileStore) writeRecords(path string, records any) error {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Resource: path, Err: err}
	}
	if err := writeAtomic(s.fs, path, payload); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("write failed; previous content kept")
		return err
	}
	return nil
}

func readRecords[T any](fsys afero.Fs, path string) ([]T, error) {
	content, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, &StorageError{Op: "read", Resource: path, Err: err}
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return []T{}, nil
	}

	records := make([]T, 0)
	if err := json.Unmarshal(content, &records); err != nil {
		return nil, &StorageError{Op: "decode", Resource: path, Err: err}
	}
	return records, nil
}

func writeAtomic(fsys afero.Fs, path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fsys, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create temp", Resource: path, Err: err}
	}
	tmpName := tmp.Name()

	cleanup := func(op string, cause error) error {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return &StorageError{Op: op, Resource: path, Err: cause}
	}

	if _, err := tmp.Write(payload); err != nil {
		return cleanup("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return &StorageError{Op: "close", Resource: path, Err: err}
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return &StorageError{Op: "rename", Resource: path, Err: fmt.Errorf("%s: %w", tmpName, err)}
	}
	return nil
}

// appendCapped appends v and drops the oldest entries beyond max.
func appendCapped[T any](items []T, v T, max int) []T {
	items = append(items, v)
	if max > 0 && len(items) > max {
		items = append([]T(nil), items[len(items)-max:]...)
	}
	return items
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

var (
	_ HistoryStore = (*FileStore)(nil)
	_ AlertLog     = (*FileStore)(nil)
)
