package fromdisk

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prairielearn/backend/internal/coursedb"
)

// SyncDirs loads and syncs every course directory, at most concurrency at a
// time. Directories naming the same path are synced once; results follow the
// order of the remaining directories and hold nil for a course that could not
// be synced at all. A failing course does not stop the others.
func (s *Syncer) SyncDirs(ctx context.Context, dirs []string, concurrency int) ([]*Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	unique := make([]string, 0, len(dirs))
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = filepath.Clean(dir)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		unique = append(unique, dir)
	}

	results := make([]*Result, len(unique))
	errs := make([]error, len(unique))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, dir := range unique {
		g.Go(func() error {
			course, err := coursedb.Load(dir)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = s.SyncCourse(ctx, course)
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for i, err := range errs {
		if err != nil {
			s.log.Warn("Course directory not fully synced", zap.String("dir", unique[i]), zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("%s: %w", unique[i], err))
		}
	}
	return results, result.ErrorOrNil()
}
