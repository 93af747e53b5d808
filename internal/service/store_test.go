package service

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hireloop/hireloop/internal/billing"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for *repository.Repository. Stored
// values are never mutated in place, so a shallow map snapshot is enough to
// roll a failed transaction back.
type memStore struct {
	mu sync.Mutex

	plans         map[string]*model.Plan
	subs          map[string]*model.Subscription // by company
	subEvents     []*model.SubscriptionEvent
	billingEvents map[string]*model.BillingEvent

	companies map[string]*model.Company
	users     map[string]*model.User
	members   map[string]*model.Membership // company/user
	keys      map[string]*model.APIKey
	invites   map[string]*model.ConsumedInvite

	jobs       map[string]*model.Job
	candidates map[string]*model.CandidateProfile
	apps       map[string]*model.Application
	notes      []*model.ApplicationNote
	dailyViews []*model.DailyJobViews

	tickets  map[string]*model.SupportTicket
	messages []model.TicketMessage

	events map[string]*model.CalendarEvent
	tasks  map[string]*model.Task

	// recordDuplicate makes RecordBillingEvent report an existing row.
	recordDuplicate bool
	// recordErr fails RecordBillingEvent, rolling the transaction back.
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{
		plans:         map[string]*model.Plan{},
		subs:          map[string]*model.Subscription{},
		billingEvents: map[string]*model.BillingEvent{},
		companies:     map[string]*model.Company{},
		users:         map[string]*model.User{},
		members:       map[string]*model.Membership{},
		keys:          map[string]*model.APIKey{},
		invites:       map[string]*model.ConsumedInvite{},
		jobs:          map[string]*model.Job{},
		candidates:    map[string]*model.CandidateProfile{},
		apps:          map[string]*model.Application{},
		tickets:       map[string]*model.SupportTicket{},
		events:        map[string]*model.CalendarEvent{},
		tasks:         map[string]*model.Task{},
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	subs := maps.Clone(m.subs)
	subEvents := slices.Clone(m.subEvents)
	billingEvents := maps.Clone(m.billingEvents)
	companies := maps.Clone(m.companies)
	users := maps.Clone(m.users)
	members := maps.Clone(m.members)
	keys := maps.Clone(m.keys)
	invites := maps.Clone(m.invites)
	candidates := maps.Clone(m.candidates)
	apps := maps.Clone(m.apps)
	tickets := maps.Clone(m.tickets)
	messages := slices.Clone(m.messages)
	m.mu.Unlock()

	err := fn(ctx)
	if err != nil {
		m.mu.Lock()
		m.subs, m.subEvents, m.billingEvents = subs, subEvents, billingEvents
		m.companies, m.users, m.members, m.keys = companies, users, members, keys
		m.invites = invites
		m.candidates, m.apps = candidates, apps
		m.tickets, m.messages = tickets, messages
		m.mu.Unlock()
	}
	return err
}

// ---- plans and subscriptions ----

func (m *memStore) addPlan(p *model.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.plans[p.ID] = &c
}

func (m *memStore) addSubscription(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.CompanyID] = s.Clone()
}

func (m *memStore) subscription(companyID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[companyID]; ok {
		return s.Clone()
	}
	return nil
}

func (m *memStore) history() []*model.SubscriptionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.subEvents)
}

func (m *memStore) CreatePlan(_ context.Context, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.plans {
		if existing.Code == p.Code {
			return repository.ErrPlanCodeExists
		}
	}
	c := *p
	m.plans[p.ID] = &c
	return nil
}

func (m *memStore) GetPlanByID(_ context.Context, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, repository.ErrPlanNotFound
	}
	c := *p
	return &c, nil
}

func (m *memStore) GetPlanByCode(_ context.Context, code string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.Code == code {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrPlanNotFound
}

func (m *memStore) ListPlansForCompany(_ context.Context, companyID string) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.Active && (p.CompanyID == nil || *p.CompanyID == companyID) {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) ListAllPlans(_ context.Context) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) DeactivatePlan(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return repository.ErrPlanNotFound
	}
	c := *p
	c.Active = false
	m.plans[id] = &c
	return nil
}

func (m *memStore) CreateSubscription(_ context.Context, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.CompanyID]; ok {
		return repository.ErrSubscriptionExists
	}
	m.subs[s.CompanyID] = s.Clone()
	return nil
}

func (m *memStore) GetSubscriptionByCompany(_ context.Context, companyID string) (*model.Subscription, error) {
	if s := m.subscription(companyID); s != nil {
		return s, nil
	}
	return nil, repository.ErrSubscriptionNotFound
}

func (m *memStore) GetSubscriptionForUpdate(ctx context.Context, companyID string) (*model.Subscription, error) {
	return m.GetSubscriptionByCompany(ctx, companyID)
}

func (m *memStore) GetSubscriptionByExternalIDForUpdate(_ context.Context, externalID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ExternalSubscriptionID == externalID {
			return s.Clone(), nil
		}
	}
	return nil, repository.ErrSubscriptionNotFound
}

func (m *memStore) UpdateSubscription(_ context.Context, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.CompanyID]; !ok {
		return repository.ErrSubscriptionNotFound
	}
	m.subs[s.CompanyID] = s.Clone()
	return nil
}

func (m *memStore) ListSubscriptionsByStatus(_ context.Context, status model.SubscriptionStatus, _ string, _ int) ([]*model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if status == "" || s.Status == status {
			out = append(out, s.Clone())
		}
	}
	return out, "", nil
}

func (m *memStore) ListDueSubscriptions(_ context.Context, now time.Time, retention time.Duration, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reached := func(t *time.Time) bool { return t != nil && !t.After(now) }
	var ids []string
	for companyID, s := range m.subs {
		var due bool
		switch s.Status {
		case model.SubTrialing:
			due = reached(s.TrialEndsAt)
		case model.SubGracePeriod:
			due = reached(s.GraceEndsAt)
		case model.SubPastDue:
			due = s.PastDueSince != nil && !s.PastDueSince.Add(retention).After(now)
		case model.SubActive:
			due = s.CancelAtPeriodEnd && reached(s.CurrentPeriodEnd)
		case model.SubCanceled:
			due = s.CurrentPeriodEnd == nil || reached(s.CurrentPeriodEnd)
		}
		if due && len(ids) < limit {
			ids = append(ids, companyID)
		}
	}
	return ids, nil
}

func (m *memStore) ConsumeAIScore(_ context.Context, companyID string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[companyID]
	if !ok {
		return false, repository.ErrSubscriptionNotFound
	}
	if limit > 0 && s.AIScoresUsed >= limit {
		return false, nil
	}
	c := s.Clone()
	c.AIScoresUsed++
	m.subs[companyID] = c
	return true, nil
}

func (m *memStore) RefundAIScore(_ context.Context, companyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[companyID]
	if !ok {
		return repository.ErrSubscriptionNotFound
	}
	c := s.Clone()
	if c.AIScoresUsed > 0 {
		c.AIScoresUsed--
	}
	m.subs[companyID] = c
	return nil
}

func (m *memStore) InsertSubscriptionEvent(_ context.Context, e *model.SubscriptionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	m.subEvents = append(m.subEvents, &c)
	return nil
}

func (m *memStore) ListSubscriptionEvents(_ context.Context, subscriptionID string, limit int) ([]*model.SubscriptionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SubscriptionEvent
	for i := len(m.subEvents) - 1; i >= 0 && len(out) < limit; i-- {
		if m.subEvents[i].SubscriptionID == subscriptionID {
			out = append(out, m.subEvents[i])
		}
	}
	return out, nil
}

func (m *memStore) RecordBillingEvent(_ context.Context, e *model.BillingEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return false, m.recordErr
	}
	if _, ok := m.billingEvents[e.ID]; ok || m.recordDuplicate {
		return false, nil
	}
	c := *e
	m.billingEvents[e.ID] = &c
	return true, nil
}

func (m *memStore) BillingEventExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.billingEvents[id]
	return ok, nil
}

// ---- tenancy ----

func (m *memStore) CreateCompany(_ context.Context, c *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.companies {
		if existing.Slug == c.Slug {
			return repository.ErrSlugExists
		}
	}
	cp := *c
	m.companies[c.ID] = &cp
	return nil
}

func (m *memStore) GetCompanyByID(_ context.Context, id string) (*model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, repository.ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetCompanyBySlug(_ context.Context, slug string) (*model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCompanyNotFound
}

func (m *memStore) UpdateCompany(_ context.Context, c *model.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[c.ID]; !ok {
		return repository.ErrCompanyNotFound
	}
	cp := *c
	m.companies[c.ID] = &cp
	return nil
}

func (m *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if u, err := m.GetUserByEmail(ctx, user.Email); err == nil {
		return u, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) UpdateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func memberKey(companyID, userID string) string { return companyID + "/" + userID }

func (m *memStore) CreateMembership(_ context.Context, mb *model.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(mb.CompanyID, mb.UserID)
	if _, ok := m.members[k]; ok {
		return repository.ErrAlreadyMember
	}
	cp := *mb
	m.members[k] = &cp
	return nil
}

func (m *memStore) GetMembership(_ context.Context, companyID, userID string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.members[memberKey(companyID, userID)]
	if !ok {
		return nil, repository.ErrMembershipNotFound
	}
	cp := *mb
	return &cp, nil
}

func (m *memStore) ListMembers(_ context.Context, companyID string) ([]*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Membership
	for _, mb := range m.members {
		if mb.CompanyID == companyID {
			cp := *mb
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, companyID, userID string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(companyID, userID)
	mb, ok := m.members[k]
	if !ok {
		return repository.ErrMembershipNotFound
	}
	cp := *mb
	cp.Role = role
	m.members[k] = &cp
	return nil
}

func (m *memStore) DeleteMembership(_ context.Context, companyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(companyID, userID)
	if _, ok := m.members[k]; !ok {
		return repository.ErrMembershipNotFound
	}
	delete(m.members, k)
	return nil
}

func (m *memStore) ConsumeInvite(_ context.Context, inv *model.ConsumedInvite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[inv.ID]; ok {
		return false, nil
	}
	c := *inv
	m.invites[inv.ID] = &c
	return true, nil
}

func (m *memStore) countMembers(companyID string, role model.Role) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mb := range m.members {
		if mb.CompanyID == companyID && (role == "" || mb.Role == role) {
			n++
		}
	}
	return n
}

func (m *memStore) CountMembers(_ context.Context, companyID string) (int, error) {
	return m.countMembers(companyID, ""), nil
}

func (m *memStore) CountOwners(_ context.Context, companyID string) (int, error) {
	return m.countMembers(companyID, model.RoleOwner), nil
}

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *memStore) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *memStore) listKeys(match func(*model.APIKey) bool) []*model.APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if match(k) {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memStore) ListAPIKeysByCompany(_ context.Context, companyID string) ([]*model.APIKey, error) {
	return m.listKeys(func(k *model.APIKey) bool { return k.CompanyID == companyID }), nil
}

func (m *memStore) ListAPIKeysByMember(_ context.Context, companyID, userID string) ([]*model.APIKey, error) {
	return m.listKeys(func(k *model.APIKey) bool { return k.CompanyID == companyID && k.UserID == userID }), nil
}

func (m *memStore) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.RevokedAt != nil {
		return repository.ErrAPIKeyNotFound
	}
	cp := *k
	now := time.Now()
	cp.RevokedAt = &now
	m.keys[id] = &cp
	return nil
}

func (m *memStore) RevokeMemberAPIKeys(_ context.Context, companyID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, k := range m.keys {
		if k.CompanyID == companyID && k.UserID == userID && k.RevokedAt == nil {
			cp := *k
			now := time.Now()
			cp.RevokedAt = &now
			m.keys[id] = &cp
			n++
		}
	}
	return n, nil
}

// ---- jobs ----

func (m *memStore) CreateJob(_ context.Context, j *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, companyID, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.CompanyID != companyID {
		return nil, repository.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) UpdateJob(_ context.Context, j *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return repository.ErrJobNotFound
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memStore) ListJobs(_ context.Context, filter repository.JobFilter, _ string, _ int) ([]*model.Job, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Status == "" && j.Status == model.JobStatusArchived && !filter.IncludeArchived {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, "", nil
}

func (m *memStore) ListOpenJobs(_ context.Context, companyID string) ([]*model.Job, error) {
	jobs, _, err := m.ListJobs(context.Background(), repository.JobFilter{CompanyID: companyID, Status: model.JobStatusOpen}, "", 0)
	return jobs, err
}

func (m *memStore) CountActiveJobs(ctx context.Context, companyID string) (int, error) {
	jobs, err := m.ListOpenJobs(ctx, companyID)
	return len(jobs), err
}

func (m *memStore) ListDailyJobViews(_ context.Context, jobID string, from, to time.Time) ([]*model.DailyJobViews, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DailyJobViews
	for _, d := range m.dailyViews {
		if d.JobID == jobID && !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) CountJobApplications(_ context.Context, companyID, jobID string, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := to.Add(24 * time.Hour)
	var n int64
	for _, a := range m.apps {
		if a.CompanyID == companyID && a.JobID == jobID && !a.CreatedAt.Before(from) && a.CreatedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

// ---- candidates and applications ----

func (m *memStore) UpsertCandidate(_ context.Context, c *model.CandidateProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.candidates {
		if existing.CompanyID == c.CompanyID && existing.Email == c.Email {
			cp := *existing
			cp.FullName = c.FullName
			cp.UpdatedAt = c.UpdatedAt
			if len(c.Skills) > 0 {
				cp.Skills = c.Skills
			}
			m.candidates[cp.ID] = &cp
			*c = cp
			return nil
		}
	}
	cp := *c
	m.candidates[c.ID] = &cp
	return nil
}

func (m *memStore) GetCandidate(_ context.Context, companyID, id string) (*model.CandidateProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok || c.CompanyID != companyID {
		return nil, repository.ErrCandidateNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) UpdateCandidate(_ context.Context, c *model.CandidateProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.candidates[c.ID]; !ok || existing.CompanyID != c.CompanyID {
		return repository.ErrCandidateNotFound
	}
	cp := *c
	m.candidates[c.ID] = &cp
	return nil
}

func (m *memStore) DeleteCandidate(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok || c.CompanyID != companyID {
		return repository.ErrCandidateNotFound
	}
	delete(m.candidates, id)
	for appID, a := range m.apps {
		if a.CandidateID == id {
			delete(m.apps, appID)
		}
	}
	return nil
}

func (m *memStore) ListCandidates(ctx context.Context, companyID, cursor string, limit int) ([]*model.CandidateProfile, string, error) {
	return m.SearchTalent(ctx, companyID, model.TalentQuery{}, cursor, limit)
}

func (m *memStore) SearchTalent(_ context.Context, companyID string, q model.TalentQuery, _ string, _ int) ([]*model.CandidateProfile, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CandidateProfile
	for _, c := range m.candidates {
		if c.CompanyID != companyID || c.YearsExperience < q.MinYears {
			continue
		}
		if q.Text != "" && !strings.Contains(strings.ToLower(c.FullName+" "+c.Headline+" "+c.Summary), strings.ToLower(q.Text)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, "", nil
}

func (m *memStore) CreateApplication(_ context.Context, a *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.apps {
		if existing.JobID == a.JobID && existing.CandidateID == a.CandidateID {
			return repository.ErrAlreadyApplied
		}
	}
	cp := *a
	cp.Candidate = nil
	m.apps[a.ID] = &cp
	return nil
}

func (m *memStore) GetApplication(_ context.Context, companyID, id string) (*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.CompanyID != companyID {
		return nil, repository.ErrApplicationNotFound
	}
	cp := *a
	if c, ok := m.candidates[a.CandidateID]; ok {
		cc := *c
		cp.Candidate = &cc
	}
	return &cp, nil
}

func (m *memStore) ListApplicationsByJob(_ context.Context, companyID, jobID string, _ repository.ApplicationSort, _ string, _ int) ([]*model.Application, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Application
	for _, a := range m.apps {
		if a.CompanyID == companyID && a.JobID == jobID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, "", nil
}

func (m *memStore) ListApplicationsByCandidate(_ context.Context, companyID, candidateID string) ([]*model.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Application
	for _, a := range m.apps {
		if a.CompanyID == companyID && a.CandidateID == candidateID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateApplicationStatus(_ context.Context, a *model.Application, from model.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.apps[a.ID]
	if !ok || existing.CompanyID != a.CompanyID {
		return repository.ErrApplicationNotFound
	}
	if existing.Status != from {
		return repository.ErrStatusConflict
	}
	cp := *existing
	cp.Status = a.Status
	cp.RejectionReason = a.RejectionReason
	cp.UpdatedAt = a.UpdatedAt
	m.apps[a.ID] = &cp
	return nil
}

func (m *memStore) QueueScoring(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.CompanyID != companyID {
		return repository.ErrApplicationNotFound
	}
	cp := *a
	cp.ScoreStatus = model.ScorePending
	m.apps[id] = &cp
	return nil
}

func (m *memStore) CreateApplicationNote(_ context.Context, n *model.ApplicationNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[n.ApplicationID]; !ok {
		return repository.ErrApplicationNotFound
	}
	cp := *n
	m.notes = append(m.notes, &cp)
	return nil
}

func (m *memStore) ListApplicationNotes(_ context.Context, applicationID string) ([]*model.ApplicationNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ApplicationNote
	for _, n := range m.notes {
		if n.ApplicationID == applicationID {
			out = append(out, n)
		}
	}
	return out, nil
}

// ---- support ----

func (m *memStore) CreateTicket(_ context.Context, t *model.SupportTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tickets[t.ID] = &cp
	return nil
}

func (m *memStore) GetTicket(_ context.Context, companyID, id string) (*model.SupportTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok || (companyID != "" && t.CompanyID != companyID) {
		return nil, repository.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateTicket(_ context.Context, t *model.SupportTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; !ok {
		return repository.ErrTicketNotFound
	}
	cp := *t
	cp.Messages = nil
	m.tickets[t.ID] = &cp
	return nil
}

func (m *memStore) ListTickets(_ context.Context, filter repository.TicketFilter, _ string, _ int) ([]*model.SupportTicket, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SupportTicket
	for _, t := range m.tickets {
		if (filter.CompanyID == "" || t.CompanyID == filter.CompanyID) && (filter.Status == "" || t.Status == filter.Status) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, "", nil
}

func (m *memStore) CreateTicketMessage(_ context.Context, msg *model.TicketMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[msg.TicketID]; !ok {
		return repository.ErrTicketNotFound
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memStore) ListTicketMessages(_ context.Context, ticketID string) ([]model.TicketMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TicketMessage
	for _, msg := range m.messages {
		if msg.TicketID == ticketID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// ---- calendar ----

func (m *memStore) CreateEvent(_ context.Context, e *model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memStore) GetEvent(_ context.Context, companyID, id string) (*model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.CompanyID != companyID {
		return nil, repository.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) UpdateEvent(_ context.Context, e *model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return repository.ErrEventNotFound
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memStore) DeleteEvent(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.CompanyID != companyID {
		return repository.ErrEventNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) ListEvents(_ context.Context, companyID string, from, to time.Time) ([]*model.CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CalendarEvent
	for _, e := range m.events {
		if e.CompanyID == companyID && e.StartsAt.Before(to) && e.EndsAt.After(from) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) GetTask(_ context.Context, companyID, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.CompanyID != companyID {
		return nil, repository.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return repository.ErrTaskNotFound
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.CompanyID != companyID {
		return repository.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) ListTasks(_ context.Context, companyID string, filter model.TaskFilter) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.tasks {
		if t.CompanyID != companyID || (t.Completed && !filter.IncludeDone) {
			continue
		}
		if filter.AssigneeID != "" && (t.AssigneeID == nil || *t.AssigneeID != filter.AssigneeID) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// memCache implements the billing and auth cache surfaces.
type memCache struct {
	mu           sync.Mutex
	ents         map[string]*billing.Entitlements
	claims       map[string]bool
	claimErr     error
	releaseErr   error
	invalidated  []string
	authDropped  []string
	entCacheHits int
}

func newMemCache() *memCache {
	return &memCache{ents: map[string]*billing.Entitlements{}, claims: map[string]bool{}}
}

func (c *memCache) GetEntitlements(_ context.Context, companyID string) (*billing.Entitlements, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.ents[companyID]; ok {
		c.entCacheHits++
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (c *memCache) SetEntitlements(_ context.Context, ent *billing.Entitlements) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *ent
	c.ents[ent.CompanyID] = &cp
	return nil
}

func (c *memCache) InvalidateEntitlements(_ context.Context, companyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ents, companyID)
	c.invalidated = append(c.invalidated, companyID)
	return nil
}

func (c *memCache) ClaimEvent(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimErr != nil {
		return false, c.claimErr
	}
	if c.claims[eventID] {
		return false, nil
	}
	c.claims[eventID] = true
	return true, nil
}

func (c *memCache) ReleaseEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.releaseErr != nil {
		return c.releaseErr
	}
	delete(c.claims, eventID)
	return nil
}

func (c *memCache) InvalidateCompanyAuthContexts(_ context.Context, companyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authDropped = append(c.authDropped, companyID)
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	CompanyID string
	Type      model.EventType
	Data      any
}

func (p *recordingPublisher) Publish(_ context.Context, companyID string, et model.EventType, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{CompanyID: companyID, Type: et, Data: data})
	return nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// staticEntitlements serves fixed entitlements to services under test.
type staticEntitlements struct {
	ent billing.Entitlements
}

func (s *staticEntitlements) Entitlements(_ context.Context, companyID string) (*billing.Entitlements, error) {
	e := s.ent
	e.CompanyID = companyID
	return &e, nil
}

func fullAccess(features ...string) *staticEntitlements {
	return &staticEntitlements{ent: billing.Entitlements{
		Status:   model.SubActive,
		Access:   billing.AccessFull,
		Features: features,
	}}
}
