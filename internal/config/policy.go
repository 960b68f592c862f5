package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable constants of the synthesis and enrichment pipeline.
type Policy struct {
	CriticTries            int            `yaml:"critic_tries"`
	SimilarityThreshold    float64        `yaml:"similarity_threshold"`
	SnippetCap             int            `yaml:"snippet_cap"`
	DependencyReferenceCap int            `yaml:"dependency_reference_cap"`
	Uncategorized          string         `yaml:"uncategorized"`
	SynthesisConcurrency   int            `yaml:"synthesis_concurrency"`
	TitleMaxLen            int            `yaml:"title_max_len"`
	Assignee               AssigneePolicy `yaml:"assignee"`
	Effort                 EffortPolicy   `yaml:"effort"`
}

type AssigneePolicy struct {
	AcceptScore        int            `yaml:"accept_score"`
	CautiousScore      int            `yaml:"cautious_score"`
	OverloadWeight     int            `yaml:"overload_weight"`
	RecentTasksPerUser int            `yaml:"recent_tasks_per_user"`
	PriorityWeights    map[string]int `yaml:"priority_weights"`
}

type EffortPolicy struct {
	SimilarLimit int `yaml:"similar_limit"`
	HistoryLimit int `yaml:"history_limit"`
}

func DefaultPolicy() Policy {
	return Policy{
		CriticTries:            5,
		SimilarityThreshold:    0.84,
		SnippetCap:             50,
		DependencyReferenceCap: 5,
		Uncategorized:          "uncategorized",
		SynthesisConcurrency:   8,
		TitleMaxLen:            80,
		Assignee: AssigneePolicy{
			AcceptScore:        60,
			CautiousScore:      40,
			OverloadWeight:     10,
			RecentTasksPerUser: 5,
			PriorityWeights:    map[string]int{"high": 3, "medium": 2, "low": 1},
		},
		Effort: EffortPolicy{
			SimilarLimit: 5,
			HistoryLimit: 10,
		},
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.CriticTries < 1 {
		errs = append(errs, errors.New("critic_tries must be at least 1"))
	}
	if p.SimilarityThreshold < -1 || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold %v outside [-1, 1]", p.SimilarityThreshold))
	}
	if p.SnippetCap < 1 {
		errs = append(errs, errors.New("snippet_cap must be at least 1"))
	}
	if p.DependencyReferenceCap < 0 {
		errs = append(errs, errors.New("dependency_reference_cap must not be negative"))
	}
	if p.Uncategorized == "" {
		errs = append(errs, errors.New("uncategorized must not be empty"))
	}
	if p.SynthesisConcurrency < 1 {
		errs = append(errs, errors.New("synthesis_concurrency must be at least 1"))
	}
	if p.TitleMaxLen < 1 {
		errs = append(errs, errors.New("title_max_len must be at least 1"))
	}
	if p.Assignee.CautiousScore > p.Assignee.AcceptScore {
		errs = append(errs, errors.New("assignee.cautious_score must not exceed assignee.accept_score"))
	}
	if p.Assignee.OverloadWeight < 1 {
		errs = append(errs, errors.New("assignee.overload_weight must be at least 1"))
	}
	return errors.Join(errs...)
}

// ParsePolicy overlays YAML on top of DefaultPolicy, so a file only needs the
// keys it changes.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Policy{}, fmt.Errorf("failed to parse policy: %w", err)
		}
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// PolicySource yields the policy in effect. Callers read it once per run so
// that a reload never changes constants halfway through a pipeline.
type PolicySource interface {
	Current() Policy
}

type StaticPolicy Policy

func (s StaticPolicy) Current() Policy { return Policy(s) }

const policyDebounce = 100 * time.Millisecond

// PolicyWatcher reloads a policy file when it changes on disk. A file that
// fails to parse or validate is logged and the previous policy stays active.
type PolicyWatcher struct {
	path     string
	current  atomic.Pointer[Policy]
	lastHash [sha256.Size]byte
	onReload func(Policy)
}

func NewPolicyWatcher(path string) (*PolicyWatcher, error) {
	w := &PolicyWatcher{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, err
	}
	w.current.Store(&p)
	w.lastHash = sha256.Sum256(data)
	return w, nil
}

func (w *PolicyWatcher) Current() Policy {
	return *w.current.Load()
}

// Watch blocks until ctx is done. The parent directory is watched so that
// editors replacing the file through a rename are picked up.
func (w *PolicyWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(policyDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "policy watcher error", "error", err)
		}
	}
}

func (w *PolicyWatcher) reload(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.WarnContext(ctx, "failed to read policy file, keeping previous policy", "path", w.path, "error", err)
		return
	}
	hash := sha256.Sum256(data)
	if hash == w.lastHash {
		return
	}
	p, err := ParsePolicy(data)
	if err != nil {
		slog.WarnContext(ctx, "rejected policy file, keeping previous policy", "path", w.path, "error", err)
		return
	}
	w.lastHash = hash
	w.current.Store(&p)
	slog.InfoContext(ctx, "policy reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(p)
	}
}
