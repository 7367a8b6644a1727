package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/warp/crew-engine/generic"
)

// FileRuleSource serves a rule document kept on disk and reloads it when
// the file changes. A reload that fails to parse keeps the last good
// RuleSet.
type FileRuleSource struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current generic.RuleSet
}

var _ generic.RuleSource = (*FileRuleSource)(nil)

// NewFileRuleSource performs the first load. Unlike later reloads, a bad
// first document is an error.
func NewFileRuleSource(path string, logger *zap.Logger) (*FileRuleSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileRuleSource{path: filepath.Clean(path), logger: logger}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch reloads on every write to the file until ctx is done. It watches
// the parent directory so editors that replace the file are seen too.
func (s *FileRuleSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.reload(); err != nil {
					s.logger.Warn("rule file invalid, keeping previous rules",
						zap.String("path", s.path), zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rule watcher error", zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *FileRuleSource) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rule file: %w", err)
	}
	rs, diags, err := ParseRuleSet(data)
	if err != nil {
		return err
	}
	for _, d := range diags {
		s.logger.Warn("rule entry ignored", zap.String("path", s.path), zap.Error(d))
	}

	s.mu.Lock()
	s.current = rs
	s.mu.Unlock()
	s.logger.Info("rules loaded",
		zap.String("path", s.path),
		zap.Int("completion_rules", len(rs.CompletionRules)),
		zap.Bool("penalty_enabled", rs.Penalty.Enabled))
	return nil
}

// RuleSet returns the last good rules.
func (s *FileRuleSource) RuleSet() generic.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *FileRuleSource) CompletionRateRules(context.Context) ([]generic.CompletionRateRule, error) {
	return s.RuleSet().CompletionRules, nil
}

func (s *FileRuleSource) PenaltyConfig(context.Context) (generic.PenaltyConfig, error) {
	return s.RuleSet().Penalty, nil
}
