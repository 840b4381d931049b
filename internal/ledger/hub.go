package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/supplier-orders/internal/model"
)

const (
	defaultReconnectDelay = 200 * time.Millisecond
	maxReconnectDelay     = 30 * time.Second
)

// Hub: реестр живых подписок на разделы журнала.
// На каждый раздел держится одно соединение, общее для всех подписчиков;
// соединение закрывается, когда уходит последний подписчик.
type Hub struct {
	store          Store
	logger         *zap.Logger
	reconnectDelay time.Duration

	mu     sync.Mutex
	feeds  map[model.PartitionKey]*feed
	nextID uint64
	wg     sync.WaitGroup
}

// NewHub создаёт независимый реестр подписок.
func NewHub(store Store, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:          store,
		logger:         logger,
		reconnectDelay: defaultReconnectDelay,
		feeds:          make(map[model.PartitionKey]*feed),
	}
}

type subscriber struct {
	id      uint64
	onValue func([]model.OrderEntry)
	onError func(error)
	active  atomic.Bool
	// mu удерживается на время обратного вызова.
	mu sync.Mutex
	// seen меняется только горутиной раздела.
	seen bool
}

type feed struct {
	key    model.PartitionKey
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[uint64]*subscriber

	// calling: подписчик, чей обратный вызов выполняется сейчас.
	calling atomic.Pointer[subscriber]

	// joined будит горутину раздела, чтобы отдать текущее значение новым подписчикам.
	joined chan struct{}

	// last и hasLast меняются только горутиной раздела.
	last    []model.OrderEntry
	hasLast bool
}

// Subscribe регистрирует подписчика на раздел. onError может быть nil.
func (h *Hub) Subscribe(key model.PartitionKey, onValue func([]model.OrderEntry), onError func(error)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &subscriber{id: h.nextID, onValue: onValue, onError: onError}
	s.active.Store(true)

	f, ok := h.feeds[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{
			key:    key,
			cancel: cancel,
			subs:   make(map[uint64]*subscriber),
			joined: make(chan struct{}, 1),
		}
		h.feeds[key] = f

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.run(ctx, f)
		}()
		h.logger.Debug("live connection opened", zap.String("partition", key.String()))
	}

	f.mu.Lock()
	f.subs[s.id] = s
	f.mu.Unlock()

	select {
	case f.joined <- struct{}{}:
	default:
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.leave(f, s) })
	}
}

// leave снимает подписчика. После возврата новые обратные вызовы не начинаются;
// уже начатый может завершиться.
func (h *Hub) leave(f *feed, s *subscriber) {
	s.active.Store(false)
	// Блокировку берём, только если сейчас не выполняется вызов этого подписчика:
	// иначе отписка из самого обратного вызова зависнет.
	if f.calling.Load() != s {
		s.mu.Lock()
		s.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f.mu.Lock()
	delete(f.subs, s.id)
	empty := len(f.subs) == 0
	f.mu.Unlock()

	if empty && h.feeds[f.key] == f {
		delete(h.feeds, f.key)
		f.cancel()
		h.logger.Debug("live connection closed", zap.String("partition", f.key.String()))
	}
}

// Feeds возвращает число открытых живых соединений.
func (h *Hub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close закрывает все соединения и ждёт завершения их горутин.
func (h *Hub) Close() {
	h.mu.Lock()
	for key, f := range h.feeds {
		f.mu.Lock()
		for _, s := range f.subs {
			s.active.Store(false)
		}
		f.mu.Unlock()
		f.cancel()
		delete(h.feeds, key)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

// run обслуживает один раздел: все обратные вызовы его подписчиков выполняются здесь последовательно.
func (h *Hub) run(ctx context.Context, f *feed) {
	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	watchErrs := make(chan error)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.watch(ctx, f.key, notify, watchErrs)
	}()

	h.refresh(ctx, f)

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			h.refresh(ctx, f)
		case <-f.joined:
			if f.hasLast {
				for _, s := range f.snapshot() {
					if !s.seen {
						h.deliver(f, s, f.last)
					}
				}
			}
		case err := <-watchErrs:
			h.broadcastError(f, &StorageError{Op: "subscribe", Key: f.key, Err: err})
		}
	}
}

// watch держит соединение открытым и переподключается с откатом, пока ctx не отменён.
func (h *Hub) watch(ctx context.Context, key model.PartitionKey, notify func(), errs chan<- error) {
	newBackoff := func() retry.Backoff {
		return retry.WithCappedDuration(maxReconnectDelay, retry.NewExponential(h.reconnectDelay))
	}
	backoff := newBackoff()

	for {
		var established atomic.Bool
		err := h.store.Watch(ctx, key, func() {
			established.Store(true)
			notify()
		})
		if ctx.Err() != nil {
			return
		}

		// после рабочего соединения откат начинается заново
		if established.Load() {
			backoff = newBackoff()
		}

		if err != nil {
			h.logger.Warn("live connection lost",
				zap.String("partition", key.String()),
				zap.Error(err),
			)
			select {
			case errs <- err:
			case <-ctx.Done():
				return
			}
		}

		delay, _ := backoff.Next()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (h *Hub) refresh(ctx context.Context, f *feed) {
	p, err := h.store.Load(ctx, f.key)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.broadcastError(f, &StorageError{Op: "subscribe", Key: f.key, Err: err})
		return
	}

	f.last = p.Entries
	f.hasLast = true

	for _, s := range f.snapshot() {
		h.deliver(f, s, f.last)
	}
}

func (h *Hub) deliver(f *feed, s *subscriber, entries []model.OrderEntry) {
	h.invoke(f, s, func() {
		s.seen = true
		s.onValue(cloneEntries(entries))
	})
}

func (h *Hub) broadcastError(f *feed, err error) {
	for _, s := range f.snapshot() {
		if s.onError != nil {
			h.invoke(f, s, func() { s.onError(err) })
		}
	}
}

// invoke выполняет обратный вызов активного подписчика под его блокировкой.
func (h *Hub) invoke(f *feed, s *subscriber, call func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Load() {
		return
	}

	f.calling.Store(s)
	defer f.calling.Store(nil)

	call()
}

func (f *feed) snapshot() []*subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	return subs
}
