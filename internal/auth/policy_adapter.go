package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casbin/casbin/v2/model"

	"github.com/quicklinkpay/admin-iam/internal/repository"
)

// ErrReadOnlyAdapter is returned by every write method of RolePolicyAdapter.
var ErrReadOnlyAdapter = errors.New("role policy adapter is read-only; mutate roles through the IAM service")

// RolePolicyAdapter is a read-only Casbin persist.Adapter that derives policy
// lines from the stored role matrices:
//
//	p, role:<id>, <module>, <action>, allow
//
// Only granted cells become lines, so anything undeclared matches nothing.
type RolePolicyAdapter struct {
	roles   repository.RoleRepository
	timeout time.Duration

	mu       sync.RWMutex
	versions map[string]int
}

// NewRolePolicyAdapter creates an adapter reading from roles.
func NewRolePolicyAdapter(roles repository.RoleRepository, timeout time.Duration) *RolePolicyAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RolePolicyAdapter{roles: roles, timeout: timeout, versions: map[string]int{}}
}

// LoadPolicy loads every role, active or not, into the model.
func (a *RolePolicyAdapter) LoadPolicy(m model.Model) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	roles, err := a.roles.List(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load roles for policy: %w", err)
	}

	versions := make(map[string]int, len(roles))
	for _, role := range roles {
		versions[role.ID] = role.Version
		for _, line := range policyLines(role.ID, role.Permissions) {
			if err := m.AddPolicy("p", "p", line); err != nil {
				return fmt.Errorf("add policy for role %s: %w", role.ID, err)
			}
		}
	}

	a.mu.Lock()
	a.versions = versions
	a.mu.Unlock()
	return nil
}

// Version reports the version of roleID seen by the last load.
func (a *RolePolicyAdapter) Version(roleID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.versions[roleID]
	return v, ok
}

func policyLines(roleID string, matrix map[string]map[string]bool) [][]string {
	var lines [][]string
	for module, actions := range matrix {
		for action, granted := range actions {
			if granted {
				lines = append(lines, []string{RoleSubject(roleID), module, action, "allow"})
			}
		}
	}
	// Sorted so repeated loads build identical models.
	sort.Slice(lines, func(i, j int) bool {
		if lines[i][1] != lines[j][1] {
			return lines[i][1] < lines[j][1]
		}
		return lines[i][2] < lines[j][2]
	})
	return lines
}

// SavePolicy is not supported.
func (a *RolePolicyAdapter) SavePolicy(model.Model) error { return ErrReadOnlyAdapter }

// AddPolicy is not supported.
func (a *RolePolicyAdapter) AddPolicy(string, string, []string) error { return ErrReadOnlyAdapter }

// RemovePolicy is not supported.
func (a *RolePolicyAdapter) RemovePolicy(string, string, []string) error { return ErrReadOnlyAdapter }

// RemoveFilteredPolicy is not supported.
func (a *RolePolicyAdapter) RemoveFilteredPolicy(string, string, int, ...string) error {
	return ErrReadOnlyAdapter
}
