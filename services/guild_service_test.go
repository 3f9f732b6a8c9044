package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/ws"
)

type fakeGuildRepo struct {
	guild *models.Guild
}

func (f *fakeGuildRepo) GetByID(ctx context.Context, id string) (*models.Guild, error) {
	if f.guild == nil || f.guild.ID != id {
		return nil, pkg.ErrNotFound
	}
	copied := *f.guild
	return &copied, nil
}

func (f *fakeGuildRepo) UpdateName(ctx context.Context, id, name string) error {
	if f.guild == nil || f.guild.ID != id {
		return pkg.ErrNotFound
	}
	f.guild.Name = name
	return nil
}

type guildFixture struct {
	roles    *fakeRoleRepo
	members  *fakeMemberRepo
	channels *fakeChannelRepo
	meta     *fakeMetaRepo
	auditLog *fakeAuditRepo
	spy      *spyPublisher
	svc      GuildService
}

func newGuildFixture(t *testing.T) *guildFixture {
	t.Helper()
	roles, members, channels, perms := newPermFixture(t)

	roles.roles["owner"] = &models.Role{
		ID: "owner", GuildID: testGuildID,
		Permissions: models.PermManageServer, Position: 5,
	}
	roles.memberRoles["owner-user"] = []string{"owner"}
	members.members["owner-user"] = &models.Member{GuildID: testGuildID, UserID: "owner-user", RoleIDs: []string{"owner"}}

	meta := newFakeMetaRepo(testGuildID)
	auditLog := &fakeAuditRepo{}
	spy := &spyPublisher{}
	svc := NewGuildService(testGuildID, nil,
		&fakeGuildRepo{guild: &models.Guild{ID: testGuildID, Name: "Test Node"}},
		meta, members, roles, channels, perms,
		NewAuditService(testGuildID, auditLog, meta), spy)
	return &guildFixture{
		roles: roles, members: members, channels: channels,
		meta: meta, auditLog: auditLog, spy: spy, svc: svc,
	}
}

func TestGetViewFiltersChannels(t *testing.T) {
	f := newGuildFixture(t)

	f.channels.channels["open"] = &models.Channel{ID: "open", GuildID: testGuildID, Name: "open", Type: models.ChannelText}
	catID := "cat"
	f.channels.channels[catID] = &models.Channel{ID: catID, GuildID: testGuildID, Name: "Staff", Type: models.ChannelCategory}
	f.channels.channels["hidden"] = &models.Channel{
		ID: "hidden", GuildID: testGuildID, Name: "hidden", Type: models.ChannelText, CategoryID: &catID,
		Overrides: &models.PermissionOverrides{
			Roles: map[string]models.Override{testGuildID: {Deny: models.PermViewChannels}},
		},
	}

	view, err := f.svc.GetView(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Test Node", view.Name)
	assert.True(t, view.Permissions.Has(models.PermSendMessages))

	var names []string
	for _, ch := range view.Channels {
		names = append(names, ch.Name)
	}
	// The denied channel disappears and so does its emptied category.
	assert.ElementsMatch(t, []string{"open"}, names)

	// Administrators bypass overrides and see everything.
	f.roles.roles["admin"] = &models.Role{ID: "admin", GuildID: testGuildID, Permissions: models.PermAdministrator, Position: 9}
	f.roles.memberRoles["admin-user"] = []string{"admin"}
	f.members.members["admin-user"] = &models.Member{GuildID: testGuildID, UserID: "admin-user", RoleIDs: []string{"admin"}}

	view, err = f.svc.GetView(context.Background(), "admin-user")
	require.NoError(t, err)
	assert.Len(t, view.Channels, 3, "hidden channel and its category reappear")
}

func TestGetViewNeverReturnsNilSlices(t *testing.T) {
	f := newGuildFixture(t)

	view, err := f.svc.GetView(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, view.Members)
	assert.NotNil(t, view.Roles)
	assert.NotNil(t, view.Channels)
}

func TestUpdateGuildName(t *testing.T) {
	f := newGuildFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateName(ctx, "u1", "Renamed")
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = f.svc.UpdateName(ctx, "owner-user", "   ")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	guild, err := f.svc.UpdateName(ctx, "owner-user", "  Renamed  ")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", guild.Name)
	assert.True(t, f.spy.hasOp(ws.OpGuildUpdate))
	assert.Contains(t, f.auditLog.actions(), models.AuditGuildUpdate)
}

func TestUpdateSettings(t *testing.T) {
	f := newGuildFixture(t)
	ctx := context.Background()

	maxAudit := 200
	_, err := f.svc.UpdateSettings(ctx, "u1", &models.UpdateSettingsRequest{AuditMaxEntries: &maxAudit})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	bad := 0
	_, err = f.svc.UpdateSettings(ctx, "owner-user", &models.UpdateSettingsRequest{AuditMaxEntries: &bad})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	settings, err := f.svc.UpdateSettings(ctx, "owner-user", &models.UpdateSettingsRequest{AuditMaxEntries: &maxAudit})
	require.NoError(t, err)
	assert.Equal(t, 200, settings.AuditMaxEntries)
	assert.Equal(t, models.DefaultSettings().TimeoutMaxMinutes, settings.TimeoutMaxMinutes, "untouched field keeps its value")
	assert.True(t, f.spy.hasOp(ws.OpSettingsUpdate))

	got, err := f.svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, got.AuditMaxEntries)
}
