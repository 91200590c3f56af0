package mqutils

import (
	"context"
	"errors"
	"sort"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alifcapital/mqconsumer"
)

// Pool keeps independent consumers keyed by queue name. Each consumer owns
// its own connection; nothing is shared between them.
type Pool struct {
	container map[string]*mqconsumer.Consumer
	rw        sync.RWMutex
	logger    zerolog.Logger
}

func NewPool(logger zerolog.Logger) *Pool {
	return &Pool{
		container: make(map[string]*mqconsumer.Consumer),
		rw:        sync.RWMutex{},
		logger:    logger,
	}
}

// Register connects a new consumer for cfg and stores it under its queue
// name, closing any consumer previously stored there.
func (p *Pool) Register(cfg mqconsumer.ConsumerConfig, opts ...mqconsumer.Option) error {
	consumer, err := mqconsumer.NewConsumer(cfg, opts...)
	if err != nil {
		return err
	}
	p.Set(cfg.QueueName, consumer)
	return nil
}

func (p *Pool) Get(queueName string) (*mqconsumer.Consumer, bool) {
	p.rw.RLock()
	defer p.rw.RUnlock()

	consumer, ok := p.container[queueName]
	return consumer, ok
}

func (p *Pool) Set(queueName string, consumer *mqconsumer.Consumer) {
	p.rw.Lock()
	defer p.rw.Unlock()

	if prev, ok := p.container[queueName]; ok && prev != consumer {
		if err := prev.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.logger.Warn().Err(err).Str("queue", queueName).Msg("error closing replaced consumer")
		}
	}
	p.container[queueName] = consumer
}

// Names returns the registered queue names in order.
func (p *Pool) Names() []string {
	p.rw.RLock()
	defer p.rw.RUnlock()

	names := make([]string, 0, len(p.container))
	for name := range p.container {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run consumes on every registered consumer, each in its own goroutine. It
// returns when ctx is done or the first consumer fails; a failure cancels
// the others.
func (p *Pool) Run(ctx context.Context) error {
	p.rw.RLock()
	consumers := make([]*mqconsumer.Consumer, 0, len(p.container))
	for _, consumer := range p.container {
		consumers = append(consumers, consumer)
	}
	p.rw.RUnlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, consumer := range consumers {
		consumer := consumer
		group.Go(func() error {
			return consumer.StartConsuming(groupCtx)
		})
	}
	return group.Wait()
}

func (p *Pool) Close() error {
	p.rw.Lock()
	defer p.rw.Unlock()

	var err error
	for queueName, consumer := range p.container {
		if closeErr := consumer.Close(); closeErr != nil && !errors.Is(closeErr, amqp.ErrClosed) {
			err = errors.Join(err, closeErr)
		}
		delete(p.container, queueName)
	}
	return err
}
