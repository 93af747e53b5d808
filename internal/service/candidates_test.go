package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/model"
)

func seedCandidate(store *memStore, id, companyID, name string, years int) {
	store.candidates[id] = &model.CandidateProfile{
		ID: id, CompanyID: companyID, Email: id + "@example.com",
		FullName: name, Headline: "Engineer", YearsExperience: years,
		Skills: []string{"Go"},
	}
}

func TestCandidateService_UpdateAndDelete(t *testing.T) {
	store := newMemStore()
	seedCandidate(store, "cand_1", "co_1", "Ada Lovelace", 5)
	store.apps["app_1"] = &model.Application{ID: "app_1", CompanyID: "co_1", CandidateID: "cand_1"}
	svc := NewCandidateService(store, fullAccess(), discardLogger())
	ctx := context.Background()

	updated, err := svc.UpdateCandidate(ctx, "co_1", "cand_1", CandidateUpdate{
		Headline:        strPtr("  Principal Engineer "),
		Skills:          []string{"Go", "GO", "Rust"},
		YearsExperience: intPtr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, "Principal Engineer", updated.Headline)
	assert.Equal(t, []string{"Go", "Rust"}, updated.Skills)
	assert.Equal(t, 9, updated.YearsExperience)
	assert.Equal(t, "cand_1@example.com", updated.Email)

	_, err = svc.UpdateCandidate(ctx, "co_1", "cand_1", CandidateUpdate{FullName: strPtr(" ")})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateCandidate(ctx, "co_1", "cand_1", CandidateUpdate{YearsExperience: intPtr(-2)})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpdateCandidate(ctx, "co_2", "cand_1", CandidateUpdate{})
	require.ErrorIs(t, err, ErrCandidateNotFound)

	require.NoError(t, svc.DeleteCandidate(ctx, "co_1", "cand_1"))
	assert.Empty(t, store.apps, "erasing a candidate removes their applications")
	require.ErrorIs(t, svc.DeleteCandidate(ctx, "co_1", "cand_1"), ErrCandidateNotFound)
}

func TestCandidateService_SearchTalent(t *testing.T) {
	store := newMemStore()
	seedCandidate(store, "cand_1", "co_1", "Ada Lovelace", 8)
	seedCandidate(store, "cand_2", "co_1", "Grace Hopper", 2)
	seedCandidate(store, "cand_3", "co_2", "Ada Other", 8)
	ent := fullAccess()
	svc := NewCandidateService(store, ent, discardLogger())
	ctx := context.Background()

	_, _, err := svc.SearchTalent(ctx, "co_1", model.TalentQuery{Text: "ada"}, "", 0)
	require.ErrorIs(t, err, ErrFeatureNotAvailable)

	ent.ent.Features = []string{model.FeatureTalentSearch}

	found, _, err := svc.SearchTalent(ctx, "co_1", model.TalentQuery{Text: "  ADA "}, "", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "cand_1", found[0].ID)

	seniors, _, err := svc.SearchTalent(ctx, "co_1", model.TalentQuery{MinYears: 5}, "", 0)
	require.NoError(t, err)
	assert.Len(t, seniors, 1)

	_, _, err = svc.SearchTalent(ctx, "co_1", model.TalentQuery{MinYears: -1}, "", 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	pool, _, err := svc.ListCandidates(ctx, "co_1", "", 0)
	require.NoError(t, err)
	assert.Len(t, pool, 2)
}
