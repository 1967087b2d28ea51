package cissync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveBranch_AutoProvisionWithRegion(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.regions["1"] = &Region{ID: 1, Code: "1", Name: "Region 1"}
	r := NewRefResolver(store, testLogger())

	branch, err := r.ResolveBranch(ctx, nil, "1062", nil)
	require.NoError(t, err)
	require.NotNil(t, branch)
	require.Equal(t, "1062", branch.BACode)
	require.Equal(t, "Branch 1062", branch.Name)
	require.NotNil(t, branch.RegionCode)
	require.Equal(t, "1", *branch.RegionCode)

	// Second resolve hits the existing row; no second audit entry.
	again, err := r.ResolveBranch(ctx, nil, "1062", nil)
	require.NoError(t, err)
	require.Equal(t, branch.BACode, again.BACode)
	require.Len(t, store.provisions, 1)
	require.Equal(t, RefKindBranch, store.provisions[0].EntityKind)
	require.Equal(t, "1062", store.provisions[0].NaturalKey)
}

func TestResolveBranch_NoRegionMatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := NewRefResolver(store, testLogger())

	branch, err := r.ResolveBranch(ctx, nil, "9099", nil)
	require.NoError(t, err)
	require.NotNil(t, branch)
	require.Nil(t, branch.RegionCode)
}

func TestResolveBranch_EmptyCode(t *testing.T) {
	store := newFakeStore()
	r := NewRefResolver(store, testLogger())

	branch, err := r.ResolveBranch(context.Background(), nil, "  ", nil)
	require.NoError(t, err)
	require.Nil(t, branch)
	require.Empty(t, store.provisions)
}

func TestResolveBranch_DuplicateRace(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.branchRace = true
	r := NewRefResolver(store, testLogger())

	branch, err := r.ResolveBranch(ctx, nil, "1062", nil)
	require.NoError(t, err)
	require.NotNil(t, branch)
	require.Equal(t, "1062", branch.BACode)
	// The loser of the race must not audit a provision it did not make.
	require.Empty(t, store.provisions)
}

func TestResolveStatus_AutoProvision(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := NewRefResolver(store, testLogger())

	status, err := r.ResolveStatus(ctx, nil, "11")
	require.NoError(t, err)
	require.Equal(t, "Status 11", status.Name)
	require.Equal(t, "Auto-provisioned during sync", status.Description)
}

func TestResolveInstallationType_NameOverride(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := NewRefResolver(store, testLogger())

	typ, err := r.ResolveInstallationType(ctx, nil, TemporaryInstallationTypeCode, "Temporary Installation")
	require.NoError(t, err)
	require.Equal(t, "Temporary Installation", typ.Name)

	// The name only applies to the provisioned placeholder; a later resolve
	// with a different name returns the stored row unchanged.
	typ, err = r.ResolveInstallationType(ctx, nil, TemporaryInstallationTypeCode, "Something Else")
	require.NoError(t, err)
	require.Equal(t, "Temporary Installation", typ.Name)
}

func TestResolveMeterSize_AutoProvision(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	r := NewRefResolver(store, testLogger())

	size, err := r.ResolveMeterSize(ctx, nil, "1/2")
	require.NoError(t, err)
	require.Equal(t, "Meter Size 1/2", size.Name)
	require.Len(t, store.provisions, 1)
}
