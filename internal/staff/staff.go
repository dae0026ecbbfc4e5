// Package staff picks task executors.
package staff

import (
	"context"
	"fmt"
	"sort"
	"time"

	"triage/internal/apperr"
	"triage/internal/models"

	"github.com/rs/zerolog"
)

// Order decides which of several matching staff members is picked
type Order int

const (
	// ByID picks the lowest id
	ByID Order = iota
	// LongestIdle picks the oldest last_task_assigned_at, never-assigned first
	LongestIdle
	// LeastLoaded picks the fewest open tasks, then longest idle
	LeastLoaded
)

func (o Order) String() string {
	switch o {
	case LongestIdle:
		return "longest_idle"
	case LeastLoaded:
		return "least_loaded"
	}
	return "by_id"
}

// Directory is the persistence the selector needs
type Directory interface {
	GetDepartmentByCode(ctx context.Context, code string) (*models.Department, error)
	ListActiveStaff(ctx context.Context, deptCode string, roles []models.Role) ([]models.User, error)
	CountOpenTasks(ctx context.Context, executorIDs []int64) (map[int64]int, error)
	TouchLastAssigned(ctx context.Context, userID int64, at time.Time) error
	LockDepartment(ctx context.Context, deptCode string) (func(), error)
}

// Selector implements least-loaded and role based executor selection
type Selector struct {
	dir    Directory
	now    func() time.Time
	logger zerolog.Logger
}

// NewSelector creates a selector over dir
func NewSelector(dir Directory, logger zerolog.Logger) *Selector {
	return &Selector{
		dir:    dir,
		now:    time.Now,
		logger: logger.With().Str("component", "staff").Logger(),
	}
}

// SelectLeastLoaded returns the active user of the department with the fewest
// open tasks, ties going to the longest idle, and stamps their
// last_task_assigned_at. nil means nobody is available and the task stays
// unassigned.
func (s *Selector) SelectLeastLoaded(ctx context.Context, deptCode string) (*int64, error) {
	release, err := s.dir.LockDepartment(ctx, deptCode)
	if err != nil {
		return nil, err
	}
	defer release()

	id, err := s.pick(ctx, deptCode, nil, LeastLoaded)
	if err != nil || id == nil {
		return id, err
	}

	if err := s.dir.TouchLastAssigned(ctx, *id, s.now()); err != nil {
		return nil, err
	}
	return id, nil
}

// SelectByRole returns an active user of the department holding one of roles.
// It never stamps last_task_assigned_at.
func (s *Selector) SelectByRole(ctx context.Context, deptCode string, roles []models.Role, order Order) (*int64, error) {
	return s.pick(ctx, deptCode, roles, order)
}

func (s *Selector) pick(ctx context.Context, deptCode string, roles []models.Role, order Order) (*int64, error) {
	dept, err := s.dir.GetDepartmentByCode(ctx, deptCode)
	if apperr.Is(err, apperr.CodeNotFound) {
		s.logger.Warn().Str("department", deptCode).Msg("Unknown department, task stays unassigned")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !dept.IsActive {
		s.logger.Warn().Str("department", deptCode).Msg("Department is inactive, task stays unassigned")
		return nil, nil
	}

	users, err := s.dir.ListActiveStaff(ctx, deptCode, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	if len(users) == 0 {
		s.logger.Debug().Str("department", deptCode).Msg("No active staff, task stays unassigned")
		return nil, nil
	}

	var load map[int64]int
	if order == LeastLoaded {
		ids := make([]int64, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		if load, err = s.dir.CountOpenTasks(ctx, ids); err != nil {
			return nil, fmt.Errorf("failed to count open tasks: %w", err)
		}
	}

	best := Rank(users, load, order)[0]
	s.logger.Debug().
		Str("department", deptCode).
		Str("order", order.String()).
		Int64("user_id", best.ID).
		Int("open_tasks", load[best.ID]).
		Msg("Executor selected")
	id := best.ID
	return &id, nil
}

// Rank sorts a copy of users best candidate first. load is consulted only for
// LeastLoaded; missing entries count as zero open tasks.
func Rank(users []models.User, load map[int64]int, order Order) []models.User {
	out := append([]models.User(nil), users...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == LeastLoaded && load[a.ID] != load[b.ID] {
			return load[a.ID] < load[b.ID]
		}
		if order == LeastLoaded || order == LongestIdle {
			if c := compareIdle(a.LastTaskAssignedAt, b.LastTaskAssignedAt); c != 0 {
				return c < 0
			}
		}
		return a.ID < b.ID
	})
	return out
}

// compareIdle orders never-assigned first, then oldest assignment first
func compareIdle(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
