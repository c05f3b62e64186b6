// Package memory is an in-process resolver.Directory. It backs the demo CLI
// and tests, and can inject latency and failures per operation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/multiauth/identity"
	"github.com/MrEthical07/multiauth/resolver"
)

// Operation names accepted by Fail.
const (
	OpProfile        = "profile"
	OpFindMembership = "find_membership"
	OpTenant         = "tenant"
	OpUpdateProfile  = "update_profile"
	OpUpsertParent   = "upsert_parent"
	OpLinkStudents   = "link_students"
	OpAttributes     = "attributes"
)

// Student is a student row with an optional parent contact email.
type Student struct {
	ID          string
	TenantID    string
	Email       string
	FullName    string
	ParentEmail string
	ParentID    string
}

// Directory is safe for concurrent use.
type Directory struct {
	mu sync.Mutex

	profiles    map[string]resolver.Profile
	memberships map[resolver.Source][]resolver.Membership
	memberKeys  map[resolver.Source]map[string]int
	tenants     map[string]resolver.Tenant
	parents     map[string]resolver.ParentRecord
	students    map[string]*Student
	attributes  map[string]identity.Attributes

	failures map[string]error
	delay    time.Duration
	calls    map[string]int
}

// New returns an empty [Directory].
func New() *Directory {
	return &Directory{
		profiles:    make(map[string]resolver.Profile),
		memberships: make(map[resolver.Source][]resolver.Membership),
		memberKeys:  make(map[resolver.Source]map[string]int),
		tenants:     make(map[string]resolver.Tenant),
		parents:     make(map[string]resolver.ParentRecord),
		students:    make(map[string]*Student),
		attributes:  make(map[string]identity.Attributes),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// PutProfile stores a canonical profile.
func (d *Directory) PutProfile(p resolver.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

// PutMembership stores a role-table row reachable by id and by email.
func (d *Directory) PutMembership(src resolver.Source, m resolver.Membership, id, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m.Source = src
	keys := d.memberKeys[src]
	if keys == nil {
		keys = make(map[string]int)
		d.memberKeys[src] = keys
	}
	d.memberships[src] = append(d.memberships[src], m)
	idx := len(d.memberships[src]) - 1
	if id != "" {
		keys["id:"+id] = idx
	}
	if email != "" {
		keys["email:"+identity.NormalizeEmail(email)] = idx
	}
}

// PutTenant stores a tenant.
func (d *Directory) PutTenant(t resolver.Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = t
}

// PutStudent stores a student row used by parent auto-linking.
func (d *Directory) PutStudent(s Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := s
	d.students[s.ID] = &c
}

// PutAttributes stores display attributes for an identity id.
func (d *Directory) PutAttributes(id string, a identity.Attributes) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attributes[id] = a
}

// Fail makes every call of operation return err. A nil err clears it.
func (d *Directory) Fail(operation string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, operation)
		return
	}
	d.failures[operation] = err
}

// SetDelay adds latency to every read. The delay honours cancellation.
func (d *Directory) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Calls returns how many times operation was invoked.
func (d *Directory) Calls(operation string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[operation]
}

// Parent returns the canonical parent row for id.
func (d *Directory) Parent(id string) (resolver.ParentRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.parents[id]
	return p, ok
}

// Student returns a copy of the student row.
func (d *Directory) Student(id string) (Student, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.students[id]
	if !ok {
		return Student{}, false
	}
	return *s, true
}

// ProfileRecord returns the stored canonical profile.
func (d *Directory) ProfileRecord(id string) (resolver.Profile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	return p, ok
}

func (d *Directory) enter(ctx context.Context, operation string) error {
	d.mu.Lock()
	d.calls[operation]++
	err := d.failures[operation]
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *Directory) Profile(ctx context.Context, id string) (*resolver.Profile, error) {
	if err := d.enter(ctx, OpProfile); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *Directory) FindMembership(ctx context.Context, source resolver.Source, id, email string) (*resolver.Membership, error) {
	if err := d.enter(ctx, OpFindMembership); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := d.memberKeys[source]
	if keys == nil {
		return nil, nil
	}
	idx, ok := keys["id:"+id]
	if !ok && email != "" {
		idx, ok = keys["email:"+identity.NormalizeEmail(email)]
	}
	if !ok {
		return nil, nil
	}
	m := d.memberships[source][idx]
	return &m, nil
}

func (d *Directory) Tenant(ctx context.Context, tenantID string) (*resolver.Tenant, error) {
	if err := d.enter(ctx, OpTenant); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (d *Directory) UpdateProfileRole(ctx context.Context, id string, role identity.Role, tenantID string) error {
	if err := d.enter(ctx, OpUpdateProfile); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.profiles[id]
	p.ID = id
	if p.Status == "" {
		p.Status = resolver.ProfileActive
	}
	if p.Role == "" {
		p.Role = role
	}
	if p.TenantID == "" {
		p.TenantID = tenantID
	}
	d.profiles[id] = p
	return nil
}

func (d *Directory) UpsertParent(ctx context.Context, parent resolver.ParentRecord) error {
	if err := d.enter(ctx, OpUpsertParent); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[parent.ID] = parent
	return nil
}

func (d *Directory) LinkStudentsByParentEmail(ctx context.Context, parentID, tenantID, email string) (int, error) {
	if err := d.enter(ctx, OpLinkStudents); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	email = identity.NormalizeEmail(email)
	linked := 0
	for _, s := range d.students {
		if s.ParentID != "" || identity.NormalizeEmail(s.ParentEmail) != email {
			continue
		}
		if tenantID != "" && s.TenantID != tenantID {
			continue
		}
		s.ParentID = parentID
		linked++
	}
	return linked, nil
}

func (d *Directory) Attributes(ctx context.Context, role identity.Role, id, email string) (*identity.Attributes, error) {
	if err := d.enter(ctx, OpAttributes); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attributes[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

var _ resolver.Directory = (*Directory)(nil)
