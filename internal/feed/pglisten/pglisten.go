// Package pglisten implements the change feed over Postgres LISTEN/NOTIFY for
// direct (self-hosted) mode. A trigger on messages and chats emits one
// notification per row change on the conecta_changes channel; this listener
// fans the decoded events out to local subscriptions.
package pglisten

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MetaFacil/AppConecta/internal/feed"
	"github.com/MetaFacil/AppConecta/internal/logger"
)

const notifyChannel = "conecta_changes"

// Listener holds one dedicated connection in LISTEN mode and dispatches
// notifications to subscriptions. Implements feed.Subscriber.
type Listener struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	subs map[string][]*feed.Subscription // keyed by table

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New starts listening on the pool. The listen loop runs until Close.
func New(pool *pgxpool.Pool) *Listener {
	l := &Listener{
		pool: pool,
		subs: make(map[string][]*feed.Subscription),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Subscribe registers a local subscription; filtering happens in-process, so
// no round trip to the database is needed.
func (l *Listener) Subscribe(table, filter string) (*feed.Subscription, error) {
	select {
	case <-l.done:
		return nil, fmt.Errorf("pglisten.Subscribe: listener closed")
	default:
	}
	var sub *feed.Subscription
	sub = feed.NewSubscription(table, filter, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		list := l.subs[table]
		for i, s := range list {
			if s == sub {
				l.subs[table] = append(list[:i], list[i+1:]...)
				return
			}
		}
	})
	l.mu.Lock()
	l.subs[table] = append(l.subs[table], sub)
	l.mu.Unlock()
	return sub, nil
}

func (l *Listener) Close() error {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}

// run acquires a connection, LISTENs and blocks on notifications. Any error
// drops the connection and re-acquires with backoff; NOTIFY delivers no
// history, so consumers self-heal through their coarse refresh.
func (l *Listener) run() {
	defer l.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-l.done
		cancel()
	}()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			next := bo.NextBackOff()
			logger.Errorf("pglisten: listen failed, retrying in %s: %v", next, err)
			select {
			case <-time.After(next):
			case <-l.done:
				return
			}
			continue
		}
		bo.Reset()
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Infof("pglisten: listening on %s", notifyChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		var ev feed.Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			logger.Errorf("pglisten: bad payload: %v", err)
			continue
		}
		l.dispatch(ev)
	}
}

func (l *Listener) dispatch(ev feed.Event) {
	l.mu.Lock()
	subs := append([]*feed.Subscription(nil), l.subs[ev.Table]...)
	l.mu.Unlock()

	for _, s := range subs {
		if !feed.MatchFilter(s.Filter, ev.Row) {
			continue
		}
		if !s.Deliver(ev) {
			logger.Errorf("pglisten: slow consumer on %s, event dropped", feed.Topic(s.Table, s.Filter))
		}
	}
}
