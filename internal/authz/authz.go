// Package authz answers role questions for visit operations. Role
// assignments live in the user_roles table and are mirrored into an
// in-memory casbin RBAC enforcer.
package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Resource is a protected object.
type Resource string

// Action is an operation on a Resource.
type Action string

const (
	ResourceVisit    Resource = "visit"
	ResourceSchedule Resource = "schedule"
	ResourceKPI      Resource = "kpi"

	ActionCancel  Action = "cancel"
	ActionApprove Action = "approve"
	ActionTeam    Action = "team"
)

var ErrInvalidArgs = errors.New("invalid authorization arguments")

// managerGrants are given to every configured manager role.
var managerGrants = []struct {
	obj Resource
	act Action
}{
	{ResourceVisit, ActionCancel},
	{ResourceSchedule, ActionApprove},
	{ResourceKPI, ActionTeam},
}

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Authorizer wraps a casbin enforcer backed by the user_roles table.
type Authorizer struct {
	db           *sql.DB
	enforcer     *casbin.SyncedEnforcer
	managerRoles []string
}

// New builds the enforcer, grants manager permissions to managerRoles and
// loads persisted role assignments.
func New(db *sql.DB, managerRoles []string) (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parsing rbac model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}

	for _, role := range managerRoles {
		for _, g := range managerGrants {
			if _, err := e.AddPolicy(role, string(g.obj), string(g.act)); err != nil {
				return nil, fmt.Errorf("granting %s:%s to %s: %w", g.obj, g.act, role, err)
			}
		}
	}

	a := &Authorizer{db: db, enforcer: e, managerRoles: managerRoles}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Authorizer) load() (err error) {
	rows, err := a.db.Query("SELECT email, role FROM user_roles")
	if err != nil {
		return fmt.Errorf("querying roles: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var email, role string
		if err := rows.Scan(&email, &role); err != nil {
			return fmt.Errorf("scanning role: %w", err)
		}
		if _, err := a.enforcer.AddGroupingPolicy(email, role); err != nil {
			return fmt.Errorf("loading role %s for %s: %w", role, email, err)
		}
	}
	return rows.Err()
}

// Can reports whether user may perform act on obj.
func (a *Authorizer) Can(user string, obj Resource, act Action) (bool, error) {
	if user == "" || obj == "" || act == "" {
		return false, fmt.Errorf("%w: empty subject, object or action", ErrInvalidArgs)
	}
	return a.enforcer.Enforce(user, string(obj), string(act))
}

// IsManager reports whether user holds any manager-class role.
func (a *Authorizer) IsManager(user string) bool {
	return a.HasAnyRole(user, a.managerRoles)
}

// HasAnyRole reports whether user holds at least one of roles.
func (a *Authorizer) HasAnyRole(user string, roles []string) bool {
	if user == "" || len(roles) == 0 {
		return false
	}
	held, err := a.enforcer.GetRolesForUser(user)
	if err != nil {
		return false
	}
	for _, h := range held {
		for _, r := range roles {
			if strings.EqualFold(h, r) {
				return true
			}
		}
	}
	return false
}

// Roles returns the roles held by user.
func (a *Authorizer) Roles(user string) ([]string, error) {
	return a.enforcer.GetRolesForUser(user)
}

// Assign grants role to user, persisting the assignment.
func (a *Authorizer) Assign(ctx context.Context, user, role string) error {
	user, role = strings.TrimSpace(user), strings.TrimSpace(role)
	if user == "" || role == "" {
		return fmt.Errorf("%w: empty user or role", ErrInvalidArgs)
	}
	if _, err := a.db.ExecContext(ctx,
		"INSERT INTO user_roles (email, role) VALUES (?, ?) ON CONFLICT(email, role) DO NOTHING",
		user, role,
	); err != nil {
		return fmt.Errorf("storing role: %w", err)
	}
	if _, err := a.enforcer.AddGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("adding role to enforcer: %w", err)
	}
	return nil
}

// Revoke removes role from user.
func (a *Authorizer) Revoke(ctx context.Context, user, role string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM user_roles WHERE email = ? AND role = ?", user, role); err != nil {
		return fmt.Errorf("deleting role: %w", err)
	}
	if _, err := a.enforcer.RemoveGroupingPolicy(user, role); err != nil {
		return fmt.Errorf("removing role from enforcer: %w", err)
	}
	return nil
}
