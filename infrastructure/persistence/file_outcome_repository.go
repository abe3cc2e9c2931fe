package persistence

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/logger"
)

const outcomeLogName = "outcomes.jsonl"

// FileOutcomeRepository is an append-only JSON Lines log under dir. Each
// Append writes one line and syncs it before returning.
type FileOutcomeRepository struct {
	dir string
	mu  sync.Mutex
}

func NewFileOutcomeRepository(dir string) (*FileOutcomeRepository, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create outcome dir: %w", err)
	}
	return &FileOutcomeRepository{dir: dir}, nil
}

func (r *FileOutcomeRepository) Path() string { return filepath.Join(r.dir, outcomeLogName) }

func (r *FileOutcomeRepository) Append(ctx context.Context, outcome *model.PublishOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, torn, err := r.readAll()
	if err != nil {
		return err
	}
	for _, o := range existing {
		if o.RequestID == outcome.RequestID && o.PlatformID == outcome.PlatformID {
			return repository.ErrDuplicateOutcome
		}
	}

	line, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(r.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *FileOutcomeRepository) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return r.filter(func(o *model.PublishOutcome) bool { return o.RequestID == requestID })
}

func (r *FileOutcomeRepository) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return r.filter(func(o *model.PublishOutcome) bool { return o.PlatformID == platform })
}

// filter returns matches ordered by completion time, ties in append order.
func (r *FileOutcomeRepository) filter(match func(*model.PublishOutcome) bool) ([]*model.PublishOutcome, error) {
	r.mu.Lock()
	all, _, err := r.readAll()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]*model.PublishOutcome, 0)
	for _, o := range all {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

// readAll decodes every line of the log. Lines that do not decode, such as
// one torn by a crash mid-write, are skipped. torn reports whether the file
// ends without a newline.
func (r *FileOutcomeRepository) readAll() (out []*model.PublishOutcome, torn bool, err error) {
	f, err := os.Open(r.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	rd := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, err := rd.ReadBytes('\n')
		if len(line) > 0 {
			torn = line[len(line)-1] != '\n'
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				var o model.PublishOutcome
				if derr := json.Unmarshal(trimmed, &o); derr != nil {
					logger.GetLogger().WithField("file", r.Path()).WithField("line", n).Warn("Skipping unreadable outcome line")
				} else {
					out = append(out, &o)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return out, torn, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}
