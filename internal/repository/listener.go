package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// notifyChannel: общий канал уведомлений об изменении разделов; в payload передаётся метка раздела.
const notifyChannel = "order_ledger_changes"

var errListenerStopped = errors.New("listener stopped")

// listenConn: выделенное соединение для LISTEN. *pgx.Conn удовлетворяет интерфейсу.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// listener держит одно соединение вне пула на все наблюдаемые разделы
// и раздаёт уведомления по меткам разделов.
type listener struct {
	connect func(ctx context.Context) (listenConn, error)

	mu      sync.Mutex
	session *listenSession
	wg      sync.WaitGroup
}

type watcher struct {
	tag     string
	changed func()
}

// listenSession живёт, пока соединение исправно и есть хотя бы один наблюдатель.
type listenSession struct {
	conn     listenConn
	cancel   context.CancelFunc
	watchers map[string]map[*watcher]struct{}
	count    int

	// lost закрывается при завершении сессии; err выставляется до закрытия.
	lost chan struct{}
	err  error
}

func newListener(connect func(ctx context.Context) (listenConn, error)) *listener {
	return &listener{connect: connect}
}

// pgxConnector открывает соединения для LISTEN по конфигурации пула, минуя сам пул.
func pgxConnector(cfg *pgx.ConnConfig) func(ctx context.Context) (listenConn, error) {
	return func(ctx context.Context) (listenConn, error) {
		conn, err := pgx.ConnectConfig(ctx, cfg.Copy())
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// add регистрирует наблюдателя. После возврата без ошибки LISTEN уже действует.
func (l *listener) add(ctx context.Context, tag string, changed func()) (*watcher, *listenSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.session
	if s == nil {
		var err error
		if s, err = l.start(ctx); err != nil {
			return nil, nil, err
		}
		l.session = s
	}

	w := &watcher{tag: tag, changed: changed}
	if s.watchers[tag] == nil {
		s.watchers[tag] = make(map[*watcher]struct{})
	}
	s.watchers[tag][w] = struct{}{}
	s.count++

	return w, s, nil
}

// remove снимает наблюдателя; соединение закрывается вместе с последним.
func (l *listener) remove(s *listenSession, w *watcher) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := s.watchers[w.tag]
	if !ok {
		return
	}
	if _, ok := set[w]; !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(s.watchers, w.tag)
	}
	s.count--

	if s.count == 0 && l.session == s {
		l.session = nil
		s.cancel()
	}
}

func (l *listener) start(ctx context.Context) (*listenSession, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := l.connect(connectCtx)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}

	if _, err := conn.Exec(connectCtx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen: %w", err)
	}

	sessionCtx, stop := context.WithCancel(context.Background())
	s := &listenSession{
		conn:     conn,
		cancel:   stop,
		watchers: make(map[string]map[*watcher]struct{}),
		lost:     make(chan struct{}),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.serve(sessionCtx, s)
	}()

	return s, nil
}

func (l *listener) serve(ctx context.Context, s *listenSession) {
	var err error
	for {
		var n *pgconn.Notification
		n, err = s.conn.WaitForNotification(ctx)
		if err != nil {
			break
		}
		l.dispatch(s, n.Payload)
	}

	if ctx.Err() != nil {
		err = errListenerStopped
	}

	l.mu.Lock()
	if l.session == s {
		l.session = nil
	}
	s.err = err
	close(s.lost)
	l.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = s.conn.Close(closeCtx)
	cancel()
}

func (l *listener) dispatch(s *listenSession, tag string) {
	l.mu.Lock()
	set := s.watchers[tag]
	callbacks := make([]func(), 0, len(set))
	for w := range set {
		callbacks = append(callbacks, w.changed)
	}
	l.mu.Unlock()

	for _, changed := range callbacks {
		changed()
	}
}

// close останавливает текущую сессию и ждёт её завершения.
func (l *listener) close() {
	l.mu.Lock()
	if l.session != nil {
		l.session.cancel()
		l.session = nil
	}
	l.mu.Unlock()

	l.wg.Wait()
}

// watch блокируется, пока ctx не отменён или соединение не потеряно.
func (l *listener) watch(ctx context.Context, tag string, changed func()) error {
	w, s, err := l.add(ctx, tag, changed)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer l.remove(s, w)

	changed()

	select {
	case <-ctx.Done():
		return nil
	case <-s.lost:
		return fmt.Errorf("listener connection lost: %w", s.err)
	}
}
