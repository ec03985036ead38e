// Package fs provides a durable messaging.Queue backed by a filesystem (or
// any afs-supported storage). Messages move between a pending, processing
// and dead letter directory; a consumer crash leaves the message file in
// place for inspection or manual requeue.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/warden/internal/clock"
	"github.com/viant/warden/internal/idgen"
	"github.com/viant/warden/service/messaging"
)

// Config for the filesystem queue.
type Config struct {
	BaseURL    string
	MaxRetries int
}

// DefaultConfig returns a standard configuration rooted at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{BaseURL: baseURL, MaxRetries: 3}
}

// Message implements messaging.Message for the filesystem queue.
type Message[T any] struct {
	ID        string    `json:"id"`
	Payload   T         `json:"payload"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`

	queue     *Queue[T]
	name      string
	mu        sync.Mutex
	processed bool
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.Payload
}

// Ack removes the message from the processing directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %v already processed", m.ID)
	}
	m.processed = true
	return m.queue.remove(context.Background(), m.queue.processingURL, m.name)
}

// Nack requeues the message for another attempt, or moves it to the dead
// letter directory once retries are exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %v already processed", m.ID)
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	return m.queue.requeue(context.Background(), m)
}

// Queue is a filesystem-backed messaging.Queue. One file per message,
// ordered by publish time through the filename prefix.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingURL    string
	processingURL string
	dlqURL        string
	mu            sync.Mutex
}

// NewQueue creates a filesystem queue rooted at config.BaseURL, creating
// the pending, processing and dead letter directories when absent.
func NewQueue[T any](fsService afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("queue base URL cannot be empty")
	}
	base := url.Normalize(config.BaseURL, file.Scheme)
	ret := &Queue[T]{
		fs:            fsService,
		config:        config,
		pendingURL:    url.Join(base, "pending"),
		processingURL: url.Join(base, "processing"),
		dlqURL:        url.Join(base, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{ret.pendingURL, ret.processingURL, ret.dlqURL} {
		if exists, _ := fsService.Exists(ctx, dir); exists {
			continue
		}
		if err := fsService.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("creating queue directory %v: %w", dir, err)
		}
	}
	return ret, nil
}

// Publish writes a new message file into the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	message := &Message[T]{
		ID:        idgen.New(),
		Payload:   *t,
		CreatedAt: clock.Now(),
	}
	message.name = fileName(message.CreatedAt, message.ID)
	return q.write(ctx, q.pendingURL, message)
}

// Consume claims the oldest pending message by moving it into the
// processing directory. It returns nil when the queue is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	objects, err := q.fs.List(ctx, q.pendingURL)
	if err != nil {
		return nil, fmt.Errorf("listing pending messages: %w", err)
	}
	var names []string
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			names = append(names, object.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	name := oldest(names)
	message, err := q.read(ctx, url.Join(q.pendingURL, name))
	if err != nil {
		// unreadable message file goes straight to the dead letter dir
		_ = q.fs.Move(ctx, url.Join(q.pendingURL, name), url.Join(q.dlqURL, name))
		return nil, err
	}
	message.queue = q
	message.name = name
	if err := q.write(ctx, q.processingURL, message); err != nil {
		return nil, err
	}
	if err := q.remove(ctx, q.pendingURL, name); err != nil {
		return nil, err
	}
	return message, nil
}

// Size returns the number of pending messages.
func (q *Queue[T]) Size(ctx context.Context) (int, error) {
	return q.count(ctx, q.pendingURL)
}

// DLQSize returns the number of dead-lettered messages.
func (q *Queue[T]) DLQSize(ctx context.Context) (int, error) {
	return q.count(ctx, q.dlqURL)
}

func (q *Queue[T]) requeue(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	target := q.pendingURL
	if m.Retries > q.config.MaxRetries {
		target = q.dlqURL
	}
	if err := q.write(ctx, target, m); err != nil {
		return err
	}
	return q.remove(ctx, q.processingURL, m.name)
}

func (q *Queue[T]) write(ctx context.Context, dirURL string, m *Message[T]) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling message %v: %w", m.ID, err)
	}
	return q.fs.Upload(ctx, url.Join(dirURL, m.name), file.DefaultFileOsMode, strings.NewReader(string(data)))
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("reading message %v: %w", URL, err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("decoding message %v: %w", URL, err)
	}
	return &message, nil
}

func (q *Queue[T]) remove(ctx context.Context, dirURL, name string) error {
	target := url.Join(dirURL, name)
	if exists, _ := q.fs.Exists(ctx, target); !exists {
		return nil
	}
	return q.fs.Delete(ctx, target)
}

func (q *Queue[T]) count(ctx context.Context, dirURL string) (int, error) {
	objects, err := q.fs.List(ctx, dirURL)
	if err != nil {
		return 0, err
	}
	ret := 0
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret++
		}
	}
	return ret, nil
}

// fileName orders messages by publish time; the id suffix keeps names
// unique within one nanosecond.
func fileName(createdAt time.Time, id string) string {
	return fmt.Sprintf("%020d-%v.json", createdAt.UnixNano(), id)
}

func oldest(names []string) string {
	ret := names[0]
	for _, name := range names[1:] {
		if name < ret {
			ret = name
		}
	}
	return ret
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
