package engine

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"sort"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

// IDSet holds user or validator ids that may not be drawn.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := IDSet{}
	s.Add(ids...)
	return s
}

func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Pool draws validators for tasks.
type Pool struct {
	Repo repo.Repo
	// Intn returns a value in [0,n). Nil uses math/rand/v2.
	Intn func(n int) int
}

func (p Pool) intn(n int) int {
	if p.Intn != nil {
		return p.Intn(n)
	}
	return rand.IntN(n)
}

// ResolveIneligible returns the project leader and member user ids for a task.
func (p Pool) ResolveIneligible(ctx context.Context, tx *sql.Tx, taskID string) (IDSet, error) {
	task, err := p.Repo.GetTask(ctx, tx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("task", taskID)
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	project, err := p.Repo.GetProject(ctx, tx, task.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("project", task.ProjectID)
	}
	if err != nil {
		return nil, storeErr("get project", err)
	}
	members, err := p.Repo.ListProjectMemberIDs(ctx, tx, project.ID)
	if err != nil {
		return nil, storeErr("list project members", err)
	}
	set := NewIDSet(project.LeaderID)
	set.Add(members...)
	return set, nil
}

// Eligible filters validators whose id or backing user id is in ineligible.
// The result is ordered by validator id.
func Eligible(all []domain.Validator, ineligible IDSet) []domain.Validator {
	out := make([]domain.Validator, 0, len(all))
	for _, v := range all {
		if ineligible.Has(v.ID) || ineligible.Has(v.UserID) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SelectValidator picks uniformly from the validators not excluded by ineligible.
func (p Pool) SelectValidator(ctx context.Context, tx *sql.Tx, ineligible IDSet) (domain.Validator, error) {
	all, err := p.Repo.ListValidators(ctx, tx)
	if err != nil {
		return domain.Validator{}, storeErr("list validators", err)
	}
	candidates := Eligible(all, ineligible)
	if len(candidates) == 0 {
		return domain.Validator{}, ErrNoEligibleValidator
	}
	return candidates[p.intn(len(candidates))], nil
}
