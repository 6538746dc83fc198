// Package draft хранит черновики продаж терминала и указатель на активный черновик.
package draft

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alebrije/pos/internal/domain"
	"github.com/alebrije/pos/internal/metrics"
)

// DefaultMaxDrafts: лимит одновременно открытых черновиков по умолчанию.
const DefaultMaxDrafts = 5

// Observer получает уведомления об изменениях черновиков.
// Методы вызываются под блокировкой Store, поэтому не должны блокироваться
// и не должны обращаться к Store.
type Observer interface {
	DraftSaved(draft domain.DraftSale)
	DraftDiscarded(id string)
	ActiveChanged(id *string)
}

// Options задаёт параметры Store.
type Options struct {
	MaxDrafts int
	Clock     func() time.Time
	NewID     func() string
	RandomN   func(n int) int
	Logger    *log.Entry
	Metrics   *metrics.POSMetrics
	Observer  Observer
}

// Option настраивает Store.
type Option func(*Options)

// WithMaxDrafts задаёт лимит черновиков; n <= 0 снимает лимит.
func WithMaxDrafts(n int) Option {
	return func(opts *Options) {
		opts.MaxDrafts = n
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор идентификаторов черновиков.
func WithIDGenerator(gen func() string) Option {
	return func(opts *Options) {
		opts.NewID = gen
	}
}

// WithRandom подменяет источник случайного суффикса номера заказа.
func WithRandom(randN func(n int) int) Option {
	return func(opts *Options) {
		opts.RandomN = randN
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики черновиков.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithObserver подписывает observer на изменения (например, запись снимков).
func WithObserver(observer Observer) Option {
	return func(opts *Options) {
		opts.Observer = observer
	}
}

// Store: владелец состояния черновиков. Безопасен для конкурентного использования.
type Store struct {
	mu       sync.RWMutex
	drafts   map[string]*domain.DraftSale
	activeID *string
	// claimed: черновики, по которым идёт оформление продажи.
	claimed map[string]struct{}

	maxDrafts int
	now       func() time.Time
	newID     func() string
	randN     func(n int) int
	logger    *log.Entry
	metrics   *metrics.POSMetrics
	observer  Observer
}

// NewStore создаёт пустой Store.
func NewStore(options ...Option) *Store {
	opts := Options{
		MaxDrafts: DefaultMaxDrafts,
		Clock:     time.Now,
		NewID:     uuid.NewString,
		RandomN:   rand.IntN,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "draft-store")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.RandomN == nil {
		opts.RandomN = rand.IntN
	}

	return &Store{
		drafts:    make(map[string]*domain.DraftSale),
		claimed:   make(map[string]struct{}),
		maxDrafts: opts.MaxDrafts,
		now:       opts.Clock,
		newID:     opts.NewID,
		randN:     opts.RandomN,
		logger:    logger,
		metrics:   opts.Metrics,
		observer:  opts.Observer,
	}
}

// MaxDrafts возвращает настроенный лимит (0: без лимита).
func (s *Store) MaxDrafts() int {
	if s.maxDrafts < 0 {
		return 0
	}
	return s.maxDrafts
}

// Create открывает новый черновик и делает его активным.
// При достигнутом лимите возвращает ErrDraftLimitReached, не меняя ни набор
// черновиков, ни активный указатель.
func (s *Store) Create(ownerID *int64) (domain.DraftSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxDrafts > 0 && len(s.drafts) >= s.maxDrafts {
		s.metrics.RecordDraftRejected()
		s.logger.WithField("max_drafts", s.maxDrafts).Debug("draft limit reached, create ignored")
		return domain.DraftSale{}, domain.ErrDraftLimitReached
	}

	now := s.now()
	draft := &domain.DraftSale{
		ID:          s.newID(),
		OrderNumber: OrderNumber(now, s.randN(10000)),
		CreatedAt:   now.UTC(),
		OwnerID:     copyInt64(ownerID),
		Items:       []domain.LineItem{},
		Total:       domain.RecalculateTotal(nil),
		Status:      domain.DraftStatusInProgress,
	}
	s.drafts[draft.ID] = draft
	id := draft.ID
	s.activeID = &id

	s.metrics.RecordDraftCreated()
	s.metrics.SetOpenDrafts(len(s.drafts))
	s.logger.WithFields(log.Fields{
		"draft_id":     draft.ID,
		"order_number": draft.OrderNumber,
	}).Debug("draft created")

	out := draft.Clone()
	s.notifySaved(out)
	s.notifyActive()
	return out, nil
}

// AddItem добавляет позицию в конец списка и пересчитывает сумму.
// Количество должно быть положительным, остатки Store не проверяет.
func (s *Store) AddItem(draftID string, item domain.LineItem) (domain.DraftSale, error) {
	if err := item.Validate(); err != nil {
		return domain.DraftSale{}, err
	}
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		if item.UnitPrice != nil {
			price := *item.UnitPrice
			item.UnitPrice = &price
		}
		d.Items = append(d.Items, item)
		d.Total = domain.RecalculateTotal(d.Items)
		return nil
	})
}

// UpdateItem применяет патч к позиции index и пересчитывает сумму.
func (s *Store) UpdateItem(draftID string, index int, patch domain.LineItemPatch) (domain.DraftSale, error) {
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		if index < 0 || index >= len(d.Items) {
			return fmt.Errorf("%w: index %d, items %d", domain.ErrItemIndexOutOfRange, index, len(d.Items))
		}
		updated := patch.Apply(d.Items[index])
		if err := updated.Validate(); err != nil {
			return err
		}
		d.Items[index] = updated
		d.Total = domain.RecalculateTotal(d.Items)
		return nil
	})
}

// MergeItem увеличивает количество позиции с тем же товаром, размером и цветом
// или добавляет позицию в конец. Итоговое количество не может превысить limit;
// limit <= 0 снимает ограничение. Чтение и запись идут под одной блокировкой.
func (s *Store) MergeItem(draftID string, item domain.LineItem, limit int32) (domain.DraftSale, error) {
	if err := item.Validate(); err != nil {
		return domain.DraftSale{}, err
	}
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		for i, existing := range d.Items {
			if !existing.SameVariant(item) {
				continue
			}
			merged := existing.Quantity + item.Quantity
			if limit > 0 && merged > limit {
				return fmt.Errorf("%w: draft already holds %d, available %d", domain.ErrInsufficientStock, existing.Quantity, limit)
			}
			d.Items[i].Quantity = merged
			d.Total = domain.RecalculateTotal(d.Items)
			return nil
		}
		if limit > 0 && item.Quantity > limit {
			return fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, item.Quantity, limit)
		}
		if item.UnitPrice != nil {
			price := *item.UnitPrice
			item.UnitPrice = &price
		}
		d.Items = append(d.Items, item)
		d.Total = domain.RecalculateTotal(d.Items)
		return nil
	})
}

// RemoveItem удаляет позицию index, сдвигая последующие на одну позицию вниз.
func (s *Store) RemoveItem(draftID string, index int) (domain.DraftSale, error) {
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		if index < 0 || index >= len(d.Items) {
			return fmt.Errorf("%w: index %d, items %d", domain.ErrItemIndexOutOfRange, index, len(d.Items))
		}
		d.Items = append(d.Items[:index], d.Items[index+1:]...)
		d.Total = domain.RecalculateTotal(d.Items)
		return nil
	})
}

// ClearItems очищает список позиций черновика.
func (s *Store) ClearItems(draftID string) (domain.DraftSale, error) {
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		d.Items = []domain.LineItem{}
		d.Total = domain.RecalculateTotal(nil)
		return nil
	})
}

// SetStatus меняет статус без проверки допустимости перехода: любой статус
// достижим из любого.
func (s *Store) SetStatus(draftID string, status domain.DraftStatus) (domain.DraftSale, error) {
	if !status.Valid() {
		return domain.DraftSale{}, fmt.Errorf("%w: %q", domain.ErrDraftStatusInvalid, status)
	}
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		d.Status = status
		return nil
	})
}

// SetOwner назначает продавца черновику.
func (s *Store) SetOwner(draftID string, ownerID *int64) (domain.DraftSale, error) {
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		d.OwnerID = copyInt64(ownerID)
		return nil
	})
}

// SetPickupInStore выставляет флаг самовывоза.
func (s *Store) SetPickupInStore(draftID string, pickup bool) (domain.DraftSale, error) {
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		d.PickupInStore = pickup
		return nil
	})
}

// SetAddress задаёт адрес доставки; nil снимает его.
func (s *Store) SetAddress(draftID string, addressID *int64) (domain.DraftSale, error) {
	if addressID != nil && *addressID <= 0 {
		return domain.DraftSale{}, fmt.Errorf("%w: id %d", domain.ErrAddressInvalid, *addressID)
	}
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		d.AddressID = copyInt64(addressID)
		return nil
	})
}

// SetContact задаёт контакт покупателя; nil снимает его.
func (s *Store) SetContact(draftID string, contact *domain.Contact) (domain.DraftSale, error) {
	if contact != nil {
		if err := contact.Validate(); err != nil {
			return domain.DraftSale{}, err
		}
	}
	return s.mutate(draftID, func(d *domain.DraftSale) error {
		if contact == nil {
			d.Contact = nil
			return nil
		}
		c := *contact
		d.Contact = &c
		return nil
	})
}

// SetActive обновляет указатель активного черновика. Существование id не проверяется.
func (s *Store) SetActive(draftID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = copyString(draftID)
	s.notifyActive()
}

// Discard удаляет черновик; если он был активным, указатель сбрасывается.
func (s *Store) Discard(draftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[draftID]; !ok {
		return domain.ErrDraftNotFound
	}
	if _, busy := s.claimed[draftID]; busy {
		return domain.ErrDraftBusy
	}
	s.removeLocked(draftID)
	return nil
}

// Claim закрепляет черновик за оформлением продажи. Пока черновик закреплён,
// изменения и повторный Claim возвращают ErrDraftBusy. Продать можно только
// черновик в статусе in_progress.
func (s *Store) Claim(draftID string) (domain.DraftSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draftID]
	if !ok {
		return domain.DraftSale{}, domain.ErrDraftNotFound
	}
	if _, busy := s.claimed[draftID]; busy {
		return domain.DraftSale{}, domain.ErrDraftBusy
	}
	if d.Status != domain.DraftStatusInProgress {
		return domain.DraftSale{}, fmt.Errorf("%w: status %s", domain.ErrDraftNotOpen, d.Status)
	}
	s.claimed[draftID] = struct{}{}
	return d.Clone(), nil
}

// Release снимает закрепление, например после отказа backend.
func (s *Store) Release(draftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, draftID)
}

// Finalize переводит закреплённый черновик в finalized и удаляет его.
// Возвращает закрытый черновик.
func (s *Store) Finalize(draftID string) (domain.DraftSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claimed, draftID)
	d, ok := s.drafts[draftID]
	if !ok {
		return domain.DraftSale{}, domain.ErrDraftNotFound
	}
	out := d.Clone()
	out.Status = domain.DraftStatusFinalized
	s.removeLocked(draftID)
	return out, nil
}

func (s *Store) removeLocked(draftID string) {
	delete(s.drafts, draftID)

	activeCleared := false
	if s.activeID != nil && *s.activeID == draftID {
		s.activeID = nil
		activeCleared = true
	}

	s.metrics.RecordDraftsDiscarded(1)
	s.metrics.SetOpenDrafts(len(s.drafts))
	s.logger.WithField("draft_id", draftID).Debug("draft discarded")

	if s.observer != nil {
		s.observer.DraftDiscarded(draftID)
	}
	if activeCleared {
		s.notifyActive()
	}
}

// DiscardAll удаляет все черновики и сбрасывает активный указатель.
// Возвращает количество удалённых черновиков.
func (s *Store) DiscardAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.drafts))
	for id := range s.drafts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.drafts = make(map[string]*domain.DraftSale)
	s.claimed = make(map[string]struct{})
	s.activeID = nil

	s.metrics.RecordDraftsDiscarded(len(ids))
	s.metrics.SetOpenDrafts(0)

	if s.observer != nil {
		for _, id := range ids {
			s.observer.DraftDiscarded(id)
		}
	}
	s.notifyActive()
	return len(ids)
}

// Get возвращает копию черновика.
func (s *Store) Get(draftID string) (domain.DraftSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[draftID]
	if !ok {
		return domain.DraftSale{}, domain.ErrDraftNotFound
	}
	return d.Clone(), nil
}

// List возвращает копии всех черновиков в порядке создания.
func (s *Store) List() []domain.DraftSale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DraftSale, 0, len(s.drafts))
	for _, d := range s.drafts {
		result = append(result, d.Clone())
	}
	sortByCreation(result)
	return result
}

// Active возвращает активный черновик, если указатель ссылается на существующий.
func (s *Store) Active() (domain.DraftSale, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == nil {
		return domain.DraftSale{}, false
	}
	d, ok := s.drafts[*s.activeID]
	if !ok {
		return domain.DraftSale{}, false
	}
	return d.Clone(), true
}

// ActiveID возвращает копию указателя активного черновика.
func (s *Store) ActiveID() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyString(s.activeID)
}

// Count возвращает количество черновиков.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.drafts)
}

// Restore загружает ранее сохранённые черновики при старте терминала.
// Сумма пересчитывается из позиций, сохранённому значению не доверяем.
// Лимит соблюдается: при переполнении остаются самые свежие черновики.
// Observer не уведомляется: снимки уже лежат в хранилище.
func (s *Store) Restore(drafts []domain.DraftSale, activeID *string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]domain.DraftSale, 0, len(drafts))
	for _, d := range drafts {
		if d.ID == "" {
			continue
		}
		if _, exists := s.drafts[d.ID]; exists {
			continue
		}
		candidates = append(candidates, d.Clone())
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	restored := 0
	for _, d := range candidates {
		if s.maxDrafts > 0 && len(s.drafts) >= s.maxDrafts {
			s.logger.WithField("draft_id", d.ID).Warn("draft limit reached, snapshot not restored")
			continue
		}
		if d.Items == nil {
			d.Items = []domain.LineItem{}
		}
		if !d.Status.Valid() {
			d.Status = domain.DraftStatusInProgress
		}
		d.Total = domain.RecalculateTotal(d.Items)
		draft := d
		s.drafts[draft.ID] = &draft
		restored++
	}

	if activeID != nil {
		if _, ok := s.drafts[*activeID]; ok {
			s.activeID = copyString(activeID)
		}
	}

	s.metrics.SetOpenDrafts(len(s.drafts))
	return restored
}

// mutate применяет fn к черновику под блокировкой. Если fn вернула ошибку,
// состояние не меняется.
func (s *Store) mutate(draftID string, fn func(d *domain.DraftSale) error) (domain.DraftSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.drafts[draftID]
	if !ok {
		return domain.DraftSale{}, domain.ErrDraftNotFound
	}
	if _, busy := s.claimed[draftID]; busy {
		return domain.DraftSale{}, domain.ErrDraftBusy
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return domain.DraftSale{}, err
	}
	s.drafts[draftID] = &working

	out := working.Clone()
	s.notifySaved(out)
	return out, nil
}

func (s *Store) notifySaved(d domain.DraftSale) {
	if s.observer == nil {
		return
	}
	s.observer.DraftSaved(d.Clone())
}

func (s *Store) notifyActive() {
	if s.observer == nil {
		return
	}
	s.observer.ActiveChanged(copyString(s.activeID))
}

func sortByCreation(drafts []domain.DraftSale) {
	sort.Slice(drafts, func(i, j int) bool {
		if !drafts[i].CreatedAt.Equal(drafts[j].CreatedAt) {
			return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
		}
		return drafts[i].ID < drafts[j].ID
	})
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
