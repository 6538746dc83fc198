// Package snapshot сохраняет черновики терминала в key-value хранилище
// в фоне, не блокируя изменения черновиков.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/draft"
	"github.com/alebrije/pos/internal/metrics"
)

const (
	// DraftKeyPrefix: префикс ключей снимков черновиков.
	DraftKeyPrefix = "draft:"
	// ActiveDraftKey хранит id активного черновика. Ключ лежит вне DraftKeyPrefix,
	// поэтому не пересекается со снимком черновика с любым id.
	ActiveDraftKey = "draft_active"

	defaultQueueSize = 256
)

// DraftKey возвращает ключ снимка черновика.
func DraftKey(id string) string {
	return DraftKeyPrefix + id
}

type opKind int

const (
	opSave opKind = iota
	opDelete
	opActive
)

type op struct {
	kind     opKind
	id       string
	draft    domain.DraftSale
	activeID *string
}

// Option настраивает Writer.
type Option func(*Writer)

// WithQueueSize задаёт ёмкость очереди снимков.
func WithQueueSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queue = make(chan op, n)
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics подключает счётчики записи снимков.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// Writer реализует draft.Observer. Изменения попадают в буферизированную
// очередь, Run пишет их в хранилище. Переполнение очереди и ошибки записи
// только логируются.
type Writer struct {
	kv      domain.KeyValueStore
	queue   chan op
	logger  *log.Entry
	metrics *metrics.POSMetrics
}

var _ draft.Observer = (*Writer)(nil)

// NewWriter создаёт Writer поверх kv.
func NewWriter(kv domain.KeyValueStore, opts ...Option) *Writer {
	w := &Writer{
		kv:     kv,
		queue:  make(chan op, defaultQueueSize),
		logger: log.WithField("component", "draft-snapshot"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DraftSaved ставит снимок черновика в очередь.
func (w *Writer) DraftSaved(d domain.DraftSale) {
	w.enqueue(op{kind: opSave, id: d.ID, draft: d})
}

// DraftDiscarded ставит удаление снимка в очередь.
func (w *Writer) DraftDiscarded(id string) {
	w.enqueue(op{kind: opDelete, id: id})
}

// ActiveChanged ставит запись указателя активного черновика в очередь.
func (w *Writer) ActiveChanged(id *string) {
	w.enqueue(op{kind: opActive, activeID: id})
}

func (w *Writer) enqueue(o op) {
	select {
	case w.queue <- o:
	default:
		w.metrics.RecordSnapshotDropped()
		w.logger.WithField("draft_id", o.id).Warn("snapshot queue is full, change dropped")
	}
}

// Run пишет изменения до отмены ctx, затем дописывает то, что уже в очереди.
// Отмена ctx только останавливает цикл: начатые записи идут без отмены.
func (w *Writer) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case o := <-w.queue:
			w.apply(writeCtx, o)
		}
	}
}

// Flush синхронно записывает всё, что сейчас лежит в очереди.
func (w *Writer) Flush(ctx context.Context) {
	for {
		select {
		case o := <-w.queue:
			w.apply(ctx, o)
		default:
			return
		}
	}
}

func (w *Writer) drain() {
	w.Flush(context.Background())
}

func (w *Writer) apply(ctx context.Context, o op) {
	var err error
	switch o.kind {
	case opSave:
		var payload []byte
		payload, err = json.Marshal(o.draft)
		if err == nil {
			err = w.kv.Set(ctx, DraftKey(o.id), payload)
		}
	case opDelete:
		err = w.kv.Delete(ctx, DraftKey(o.id))
	case opActive:
		if o.activeID == nil {
			err = w.kv.Delete(ctx, ActiveDraftKey)
		} else {
			err = w.kv.Set(ctx, ActiveDraftKey, []byte(*o.activeID))
		}
	}

	if err != nil {
		w.metrics.RecordSnapshotWrite("error")
		w.logger.WithError(err).WithField("draft_id", o.id).Warn("failed to persist draft snapshot")
		return
	}
	w.metrics.RecordSnapshotWrite("ok")
}

// Restore загружает сохранённые черновики и активный указатель в store.
// Повреждённые снимки и снимки, не вошедшие в лимит черновиков, удаляются из kv.
// Возвращает количество восстановленных черновиков.
func Restore(ctx context.Context, kv domain.KeyValueStore, store *draft.Store, logger *log.Entry) (int, error) {
	if logger == nil {
		logger = log.WithField("component", "draft-snapshot")
	}

	entries, err := kv.List(ctx, DraftKeyPrefix)
	if err != nil {
		return 0, err
	}

	var activeID *string
	raw, err := kv.Get(ctx, ActiveDraftKey)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(raw)); id != "" {
			activeID = &id
		}
	case errors.Is(err, domain.ErrKeyNotFound):
	default:
		return 0, err
	}

	var stale []string
	keys := make(map[string]string, len(entries))
	drafts := make([]domain.DraftSale, 0, len(entries))
	for key, value := range entries {
		var d domain.DraftSale
		if err := json.Unmarshal(value, &d); err != nil {
			logger.WithError(err).WithField("key", key).Warn("dropping corrupt draft snapshot")
			stale = append(stale, key)
			continue
		}
		if d.ID == "" {
			d.ID = strings.TrimPrefix(key, DraftKeyPrefix)
		}
		keys[d.ID] = key
		drafts = append(drafts, d)
	}

	restored := store.Restore(drafts, activeID)
	for id, key := range keys {
		if _, err := store.Get(id); errors.Is(err, domain.ErrDraftNotFound) {
			stale = append(stale, key)
		}
	}

	sort.Strings(stale)
	for _, key := range stale {
		if err := kv.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			logger.WithError(err).WithField("key", key).Warn("failed to delete stale draft snapshot")
		}
	}

	logger.WithFields(log.Fields{
		"restored": restored,
		"found":    len(entries),
		"dropped":  len(stale),
	}).Info("draft snapshots restored")
	return restored, nil
}
