package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupDedupesMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.Create(ctx, alice, CreateGroupInput{
		Name:    "  Project  ",
		Members: []string{bob, alice, bob, "", carol},
	})
	require.NoError(t, err)
	assert.Equal(t, "Project", g.GroupName)
	assert.Equal(t, []string{alice, bob, carol}, g.Members)
	assert.Equal(t, alice, g.CreatedBy)
	assert.True(t, g.IsGroup)
	assert.False(t, g.IsUniversity)
	assert.Contains(t, g.GroupID, "group_")
	require.Len(t, g.MemberDetails, 3)
	assert.Equal(t, "Bob", g.MemberDetails[1].Name)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.groups.Create(ctx, alice, CreateGroupInput{Name: "", Members: []string{bob}})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.groups.Create(ctx, alice, CreateGroupInput{Name: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.groups.Create(ctx, alice, CreateGroupInput{Name: "CSE 2025", Members: []string{bob}, University: true})
	require.ErrorIs(t, err, ErrForbidden)

	g, err := f.groups.Create(ctx, admin, CreateGroupInput{Name: "CSE 2025", Members: []string{alice, bob}, University: true})
	require.NoError(t, err)
	assert.True(t, g.IsUniversity)
	assert.Contains(t, g.GroupID, "unigroup_")
}

func TestListGroupsSeparatesUniversityGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.groups.Create(ctx, alice, CreateGroupInput{Name: "Mine", Members: []string{bob}})
	require.NoError(t, err)
	_, err = f.groups.Create(ctx, admin, CreateGroupInput{Name: "Batch", Members: []string{alice}, University: true})
	require.NoError(t, err)

	personal, err := f.groups.List(ctx, alice, false)
	require.NoError(t, err)
	require.Len(t, personal, 1)
	assert.Equal(t, "Mine", personal[0].GroupName)

	uni, err := f.groups.List(ctx, alice, true)
	require.NoError(t, err)
	require.Len(t, uni, 1)
	assert.Equal(t, "Batch", uni[0].GroupName)

	none, err := f.groups.List(ctx, carol, false)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddMembersCreatorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.groups.Create(ctx, alice, CreateGroupInput{Name: "Lab", Members: []string{bob}})
	require.NoError(t, err)

	_, err = f.groups.AddMembers(ctx, g.GroupID, bob, []string{carol})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.groups.AddMembers(ctx, g.GroupID, alice, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.groups.AddMembers(ctx, "group_missing", alice, []string{carol})
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := f.groups.AddMembers(ctx, g.GroupID, alice, []string{carol, bob})
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob, carol}, updated.Members)

	view, err := f.groups.Get(ctx, g.GroupID, carol)
	require.NoError(t, err)
	assert.Equal(t, updated.Members, view.Members)

	_, err = f.groups.Get(ctx, g.GroupID, admin)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.groups.Messages(ctx, g.GroupID, admin)
	require.ErrorIs(t, err, ErrForbidden)
}
