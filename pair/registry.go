// Package pair holds the single process-wide "current trading pair" and is
// its only writer path.
package pair

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"tickergate/logger"
	"tickergate/models"
)

var (
	// ErrMissingPair is returned when the requested pair is empty.
	ErrMissingPair = errors.New("pair is required")
	// ErrInvalidPair is returned when the requested pair does not look like
	// two concatenated asset symbols.
	ErrInvalidPair = errors.New("invalid pair format")
)

// Two asset-symbol blocks of at least 3 uppercase letters each.
var pairRegexp = regexp.MustCompile(`^[A-Z]{3,}[A-Z]{3,}$`)

// Resubscriber swaps the upstream feeds to a new pair.
type Resubscriber interface {
	Resubscribe(pair string) error
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(event interface{})
}

// Registry is the single-writer, multi-reader owner of the current pair.
type Registry struct {
	streams Resubscriber
	hub     Publisher
	log     *logger.Log

	mu      sync.RWMutex
	current string
}

func NewRegistry(streams Resubscriber, hub Publisher) *Registry {
	return &Registry{
		streams: streams,
		hub:     hub,
		log:     logger.GetLogger(),
	}
}

// Current returns the tracked pair. Never blocks beyond the read lock.
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Normalize uppercases and trims a requested pair and validates its format.
func Normalize(requested string) (string, error) {
	pair := strings.ToUpper(strings.TrimSpace(requested))
	if pair == "" {
		return "", ErrMissingPair
	}
	if !pairRegexp.MatchString(pair) {
		return "", ErrInvalidPair
	}
	return pair, nil
}

// Set switches the tracked pair. The value swap, upstream resubscribe and
// config announcement run as one critical section. On resubscribe failure
// the previous value is restored so the registry never reports a pair
// without live feeds. A request for the pair already tracked succeeds with
// switched=false and causes no feed churn.
func (r *Registry) Set(requested string) (pair string, switched bool, err error) {
	pair, err = Normalize(requested)
	if err != nil {
		return "", false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pair == r.current {
		r.log.WithComponent("pair_registry").WithFields(logger.Fields{"pair": pair}).Debug("pair already tracked")
		return pair, false, nil
	}

	prev := r.current
	r.current = pair

	if err := r.streams.Resubscribe(pair); err != nil {
		r.current = prev
		return "", false, fmt.Errorf("switch to %s: %w", pair, err)
	}

	r.hub.Publish(models.NewConfigEvent(pair))
	r.log.WithComponent("pair_registry").WithFields(logger.Fields{"pair": pair, "previous": prev}).Info("tracking new pair")
	return pair, true, nil
}
