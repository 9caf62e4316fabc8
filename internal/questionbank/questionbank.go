// Package questionbank provides the static catalog of check-in topics and
// their candidate questions.
//
// A Bank is loaded once at start-up, either from the catalog embedded in the
// binary or from a JSON file with the same layout, and is read-only afterwards.
package questionbank

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

//go:embed questions.json
var defaultCatalog []byte

var (
	defaultOnce sync.Once
	defaultBank *Bank
)

// Topic is a named category of HR data with its descriptive text and
// ordered candidate questions.
type Topic struct {
	ID          string   `json:"id"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description"`
	Questions   []string `json:"questions"`
}

type catalog struct {
	Topics []Topic `json:"topics"`
}

// Bank is an immutable topic catalog.
type Bank struct {
	topics map[string]*Topic
	order  []string
}

// Default returns the catalog embedded in the binary.
func Default() *Bank {
	defaultOnce.Do(func() {
		b, err := Load(bytes.NewReader(defaultCatalog))
		if err != nil {
			panic(fmt.Sprintf("questionbank: embedded catalog is invalid: %v", err))
		}
		defaultBank = b
	})
	return defaultBank
}

// LoadFile reads a catalog from a JSON file.
func LoadFile(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a catalog. Topic ids and aliases must be unique; blank
// questions are dropped.
func Load(r io.Reader) (*Bank, error) {
	var c catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}
	if len(c.Topics) == 0 {
		return nil, errors.New("question bank has no topics")
	}

	b := &Bank{topics: make(map[string]*Topic, len(c.Topics))}
	for i := range c.Topics {
		t := c.Topics[i]
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("topic %d has an empty id", i)
		}
		questions := make([]string, 0, len(t.Questions))
		for _, q := range t.Questions {
			if q = strings.TrimSpace(q); q != "" {
				questions = append(questions, q)
			}
		}
		t.Questions = questions

		for _, key := range append([]string{t.ID}, t.Aliases...) {
			k := normalizeKey(key)
			if k == "" {
				continue
			}
			if _, dup := b.topics[k]; dup {
				return nil, fmt.Errorf("duplicate topic key %q", key)
			}
			b.topics[k] = &t
		}
		b.order = append(b.order, t.ID)
	}
	slog.Debug("questionbank.Load: catalog loaded", "topics", len(b.order))
	return b, nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Lookup returns the topic registered under id or one of its aliases.
func (b *Bank) Lookup(topic string) (Topic, bool) {
	t, ok := b.topics[normalizeKey(topic)]
	if !ok {
		return Topic{}, false
	}
	cp := *t
	cp.Aliases = append([]string(nil), t.Aliases...)
	cp.Questions = append([]string(nil), t.Questions...)
	return cp, true
}

// Questions returns the questions of a topic, or nil when it is unknown.
func (b *Bank) Questions(topic string) []string {
	t, ok := b.Lookup(topic)
	if !ok {
		return nil
	}
	return t.Questions
}

// Pool unions the questions of the given topics in topic order, skipping
// unknown topics and duplicate questions.
func (b *Bank) Pool(topics []string) []string {
	seen := make(map[string]struct{})
	var pool []string
	for _, topic := range topics {
		t, ok := b.topics[normalizeKey(topic)]
		if !ok {
			slog.Debug("questionbank.Pool: unknown topic skipped", "topic", topic)
			continue
		}
		for _, q := range t.Questions {
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			pool = append(pool, q)
		}
	}
	return pool
}

// Topics lists the canonical topic ids in catalog order.
func (b *Bank) Topics() []string {
	return append([]string(nil), b.order...)
}
