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

type roleFixture struct {
	roles    *fakeRoleRepo
	members  *fakeMemberRepo
	auditLog *fakeAuditRepo
	spy      *spyPublisher
	svc      RoleService
}

// newRoleFixture wires a role manager at position 5 holding
// MANAGE_ROLES plus a couple of grantable bits.
func newRoleFixture(t *testing.T) *roleFixture {
	t.Helper()
	roles, members, _, perms := newPermFixture(t)

	roles.roles["lead"] = &models.Role{
		ID: "lead", GuildID: testGuildID,
		Permissions: models.PermManageRoles | models.PermKickMembers | models.PermManageMessages,
		Position:    5,
	}
	roles.memberRoles["lead-user"] = []string{"lead"}
	members.members["lead-user"] = &models.Member{GuildID: testGuildID, UserID: "lead-user", RoleIDs: []string{"lead"}}

	auditLog := &fakeAuditRepo{}
	spy := &spyPublisher{}
	svc := NewRoleService(testGuildID, roles, perms,
		NewAuditService(testGuildID, auditLog, newFakeMetaRepo(testGuildID)), spy)
	return &roleFixture{roles: roles, members: members, auditLog: auditLog, spy: spy, svc: svc}
}

func TestCreateRoleSlotsBelowActor(t *testing.T) {
	f := newRoleFixture(t)

	role, err := f.svc.Create(context.Background(), "lead-user", &models.CreateRoleRequest{
		Name: "helper", Color: "#00ff00", Permissions: models.PermKickMembers,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, role.Position, "new role sits directly below the actor")
	assert.True(t, f.spy.hasOp(ws.OpRoleCreate))
	assert.Contains(t, f.auditLog.actions(), models.AuditRoleCreate)
}

func TestCreateRoleCannotGrantUnheldBits(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.svc.Create(context.Background(), "lead-user", &models.CreateRoleRequest{
		Name: "super", Permissions: models.PermBanMembers,
	})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = f.svc.Create(context.Background(), "lead-user", &models.CreateRoleRequest{
		Name: "admin2", Permissions: models.PermAdministrator,
	})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestCreateRoleRequiresManageRoles(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.svc.Create(context.Background(), "u1", &models.CreateRoleRequest{Name: "x"})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestUpdateRoleHierarchy(t *testing.T) {
	f := newRoleFixture(t)
	ctx := context.Background()

	f.roles.roles["above"] = &models.Role{ID: "above", GuildID: testGuildID, Position: 9}
	f.roles.roles["below"] = &models.Role{ID: "below", GuildID: testGuildID, Position: 2}

	name := "renamed"
	_, err := f.svc.Update(ctx, "lead-user", "above", &models.UpdateRoleRequest{Name: &name})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	role, err := f.svc.Update(ctx, "lead-user", "below", &models.UpdateRoleRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", role.Name)

	// Moving a role to or above the actor's top is refused.
	pos := 5
	_, err = f.svc.Update(ctx, "lead-user", "below", &models.UpdateRoleRequest{Position: &pos})
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestUpdateEveryoneRole(t *testing.T) {
	f := newRoleFixture(t)
	ctx := context.Background()

	// Rewriting the baseline touches every member at once, so
	// MANAGE_ROLES alone is not enough.
	perms := models.PermViewChannels | models.PermSendMessages
	_, err := f.svc.Update(ctx, "lead-user", testGuildID, &models.UpdateRoleRequest{Permissions: &perms})
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	f.roles.roles["director"] = &models.Role{
		ID: "director", GuildID: testGuildID,
		Permissions: models.PermManageRoles | models.PermManageServer,
		Position:    7,
	}
	f.roles.memberRoles["director-user"] = []string{"director"}
	f.members.members["director-user"] = &models.Member{GuildID: testGuildID, UserID: "director-user", RoleIDs: []string{"director"}}

	role, err := f.svc.Update(ctx, "director-user", testGuildID, &models.UpdateRoleRequest{Permissions: &perms})
	require.NoError(t, err)
	assert.Equal(t, perms, role.Permissions)

	name := "not-everyone"
	_, err = f.svc.Update(ctx, "director-user", testGuildID, &models.UpdateRoleRequest{Name: &name})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestDeleteRole(t *testing.T) {
	f := newRoleFixture(t)
	ctx := context.Background()

	f.roles.roles["below"] = &models.Role{ID: "below", GuildID: testGuildID, Position: 2}

	require.NoError(t, f.svc.Delete(ctx, "lead-user", "below"))
	assert.NotContains(t, f.roles.roles, "below")
	assert.True(t, f.spy.hasOp(ws.OpRoleDelete))
}

func TestDeleteEveryoneRefused(t *testing.T) {
	f := newRoleFixture(t)

	err := f.svc.Delete(context.Background(), "lead-user", testGuildID)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
	assert.Contains(t, f.roles.roles, testGuildID)
}

func TestSetIconURL(t *testing.T) {
	f := newRoleFixture(t)
	ctx := context.Background()

	f.roles.roles["below"] = &models.Role{ID: "below", GuildID: testGuildID, Position: 2}

	url := "/role-icons/below-abc.png"
	role, err := f.svc.SetIconURL(ctx, "lead-user", "below", &url)
	require.NoError(t, err)
	require.NotNil(t, role.IconURL)
	assert.Equal(t, url, *role.IconURL)

	role, err = f.svc.SetIconURL(ctx, "lead-user", "below", nil)
	require.NoError(t, err)
	assert.Nil(t, role.IconURL)
}
