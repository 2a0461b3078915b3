package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jogardn/coffee-storefront/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Collection is a typed view over one named document in a Store.
//
// Reads degrade: a missing document lists as empty with a warning, and a
// corrupt one lists as empty with an error log and a metric. Writes are
// serialized per collection, so concurrent appends in one process never lose
// updates. A write never overwrites a corrupt document.
type Collection[T any] struct {
	name   string
	store  Store
	logger *logrus.Logger
	mu     sync.Mutex
}

func NewCollection[T any](store Store, name string, logger *logrus.Logger) *Collection[T] {
	return &Collection[T]{
		name:   name,
		store:  store,
		logger: logger,
	}
}

func (c *Collection[T]) Name() string {
	return c.name
}

// List returns every record in storage order. Only genuine I/O failures are
// returned as errors.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	items, err := c.load(ctx)
	switch {
	case errors.Is(err, ErrNotExist):
		c.logger.WithField("collection", c.name).Warn("Collection document does not exist, returning empty list")
		return []T{}, nil
	case errors.Is(err, ErrCorrupt):
		c.logger.WithError(err).WithField("collection", c.name).Error("Collection document is corrupt, returning empty list")
		metrics.CorruptDocuments.WithLabelValues(c.name).Inc()
		return []T{}, nil
	case err != nil:
		return nil, err
	}
	return items, nil
}

// Append loads the collection, lets build derive the new record from the
// current contents, and persists the grown collection. build may reject the
// write by returning an error, which Append passes through unchanged.
func (c *Collection[T]) Append(ctx context.Context, build func(existing []T) (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if errors.Is(err, ErrNotExist) {
		items, err = []T{}, nil
	}
	if errors.Is(err, ErrCorrupt) {
		metrics.CorruptDocuments.WithLabelValues(c.name).Inc()
	}
	if err != nil {
		return zero, err
	}

	record, err := build(items)
	if err != nil {
		return zero, err
	}

	if err := c.save(ctx, append(items, record)); err != nil {
		return zero, err
	}
	return record, nil
}

// Initialize writes seed (or an empty array) only when the document is
// absent. It reports whether a write happened.
func (c *Collection[T]) Initialize(ctx context.Context, seed []T) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.store.Load(ctx, c.name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotExist) {
		return false, err
	}

	if seed == nil {
		seed = []T{}
	}
	if err := c.save(ctx, seed); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection[T]) load(ctx context.Context) ([]T, error) {
	doc, err := c.store.Load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return decodeDocument[T](c.name, doc)
}

func (c *Collection[T]) save(ctx context.Context, items []T) error {
	doc, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.name, err)
	}
	if err := c.store.Save(ctx, c.name, doc); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"collection": c.name,
		"count":      len(items),
	}).Debug("Collection written")
	return nil
}

func decodeDocument[T any](name string, doc []byte) ([]T, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, fmt.Errorf("%s: empty document: %w", name, ErrCorrupt)
	}

	var items []T
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, ErrCorrupt)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
