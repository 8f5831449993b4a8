// Package facts keeps long-term memory for the assistant: an append-only
// fact log on disk, mirrored into memory, with a composite system prompt
// rebuilt whenever the fact set changes.
package facts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"clawbot/pkg/logx"
)

// maxLines is the advisory size threshold reported by CheckSize.
const maxLines = 100

const memoryHeader = "## Personal Memory\nThese are important facts to remember about the user:"

// Store owns the fact blob and the composite prompt. Readers get snapshots;
// a mutation builds the new pair off to the side and publishes both under
// one lock so nobody observes new facts with the old prompt.
type Store struct {
	log        logx.Logger
	path       string
	basePrompt string

	mu     sync.RWMutex
	facts  string
	prompt string
}

// New loads the fact log at path (absence or an all-whitespace file counts
// as an empty fact set) and builds the initial prompt.
func New(path, basePrompt string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		log:        log,
		path:       path,
		basePrompt: basePrompt,
	}
	s.facts = s.loadFile()
	s.prompt = buildPrompt(basePrompt, s.facts)
	return s
}

func (s *Store) loadFile() string {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to load memory file", logx.String("path", s.path), logx.Err(err))
		}
		return ""
	}
	content := string(b)
	if strings.TrimSpace(content) == "" {
		return ""
	}
	s.log.Info("loaded memory file", logx.String("path", s.path), logx.Int("lines", countLines(content)))
	return content
}

func buildPrompt(base, facts string) string {
	if facts == "" {
		return base
	}
	return base + "\n\n" + memoryHeader + "\n" + facts
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}

// CheckSize reports whether the fact blob exceeds the line threshold, plus
// the current line count. Purely advisory; used for UI warnings.
func (s *Store) CheckSize() (bool, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := countLines(s.facts)
	return n > maxLines, n
}

// Save appends fact to the durable log unless its trimmed text already
// occurs anywhere in the current blob (containment dedup, not line dedup).
// Returns false without mutation on a duplicate.
func (s *Store) Save(fact string) (bool, error) {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false, nil
	}

	s.mu.RLock()
	dup := strings.Contains(s.facts, fact)
	s.mu.RUnlock()
	if dup {
		s.log.Debug("fact already in memory", logx.String("fact", fact))
		return false, nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open memory file: %w", err)
	}
	line := "- " + fact + "\n"
	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("append memory file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close memory file: %w", err)
	}

	// Reload from disk and swap blob + prompt as one snapshot.
	facts := s.loadFile()
	prompt := buildPrompt(s.basePrompt, facts)

	s.mu.Lock()
	s.facts = facts
	s.prompt = prompt
	s.mu.Unlock()

	s.log.Info("saved to memory", logx.String("fact", fact))
	return true, nil
}

// Clear deletes the fact log and resets the prompt to the base prompt.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove memory file: %w", err)
	}

	s.mu.Lock()
	s.facts = ""
	s.prompt = s.basePrompt
	s.mu.Unlock()

	s.log.Info("memory cleared")
	return nil
}

// Prompt returns the current composite system prompt.
func (s *Store) Prompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompt
}

// Facts returns the current fact blob.
func (s *Store) Facts() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts
}
