package services

import (
	"context"
	"sync"
	"time"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/ws"
)

// In-memory repository fakes shared by the service tests. They cover
// only what the tests exercise; unimplemented paths return ErrNotFound.

type fakeRoleRepo struct {
	roles       map[string]*models.Role
	memberRoles map[string][]string // userID → assigned role ids
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: map[string]*models.Role{}, memberRoles: map[string][]string{}}
}

func (f *fakeRoleRepo) Create(ctx context.Context, role *models.Role) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) GetByID(ctx context.Context, id string) (*models.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return role, nil
}

func (f *fakeRoleRepo) GetAll(ctx context.Context, guildID string) ([]models.Role, error) {
	var out []models.Role
	for _, r := range f.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRoleRepo) GetForMember(ctx context.Context, guildID, userID string) ([]models.Role, error) {
	var out []models.Role
	if everyone, ok := f.roles[guildID]; ok {
		out = append(out, *everyone)
	}
	for _, id := range f.memberRoles[userID] {
		if r, ok := f.roles[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) Update(ctx context.Context, role *models.Role) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) UpdateIconURL(ctx context.Context, id string, iconURL *string) error {
	role, ok := f.roles[id]
	if !ok {
		return pkg.ErrNotFound
	}
	role.IconURL = iconURL
	return nil
}

func (f *fakeRoleRepo) Delete(ctx context.Context, id string) error {
	delete(f.roles, id)
	return nil
}

func (f *fakeRoleRepo) MaxPosition(ctx context.Context, guildID string) (int, error) {
	max := 0
	for _, r := range f.roles {
		if r.Position > max {
			max = r.Position
		}
	}
	return max, nil
}

type fakeMemberRepo struct {
	members map[string]*models.Member
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: map[string]*models.Member{}}
}

func (f *fakeMemberRepo) Create(ctx context.Context, member *models.Member) error {
	if _, ok := f.members[member.UserID]; ok {
		return pkg.ErrAlreadyExists
	}
	member.JoinedAt = time.Now()
	f.members[member.UserID] = member
	return nil
}

func (f *fakeMemberRepo) GetByID(ctx context.Context, guildID, userID string) (*models.Member, error) {
	m, ok := f.members[userID]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return m, nil
}

func (f *fakeMemberRepo) GetAll(ctx context.Context, guildID string) ([]models.Member, error) {
	var out []models.Member
	for _, m := range f.members {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMemberRepo) Exists(ctx context.Context, guildID, userID string) (bool, error) {
	_, ok := f.members[userID]
	return ok, nil
}

func (f *fakeMemberRepo) Count(ctx context.Context, guildID string) (int, error) {
	return len(f.members), nil
}

func (f *fakeMemberRepo) UpdateNickname(ctx context.Context, guildID, userID, nickname string) error {
	m, ok := f.members[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	m.Nickname = nickname
	return nil
}

func (f *fakeMemberRepo) SetRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	m, ok := f.members[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	m.RoleIDs = roleIDs
	return nil
}

func (f *fakeMemberRepo) SetTimeout(ctx context.Context, guildID, userID string, until *time.Time) error {
	m, ok := f.members[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	m.TimeoutUntil = until
	return nil
}

func (f *fakeMemberRepo) SetVoiceState(ctx context.Context, guildID, userID string, muted, deafened *bool) error {
	m, ok := f.members[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	if muted != nil {
		m.VoiceMuted = *muted
	}
	if deafened != nil {
		m.VoiceDeafened = *deafened
	}
	return nil
}

func (f *fakeMemberRepo) Delete(ctx context.Context, guildID, userID string) error {
	delete(f.members, userID)
	return nil
}

type fakeChannelRepo struct {
	channels map[string]*models.Channel
}

func newFakeChannelRepo() *fakeChannelRepo {
	return &fakeChannelRepo{channels: map[string]*models.Channel{}}
}

func (f *fakeChannelRepo) Create(ctx context.Context, channel *models.Channel) error {
	f.channels[channel.ID] = channel
	return nil
}

func (f *fakeChannelRepo) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return ch, nil
}

func (f *fakeChannelRepo) GetAll(ctx context.Context, guildID string) ([]models.Channel, error) {
	var out []models.Channel
	for _, ch := range f.channels {
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeChannelRepo) Update(ctx context.Context, channel *models.Channel) error {
	f.channels[channel.ID] = channel
	return nil
}

func (f *fakeChannelRepo) UpdatePositions(ctx context.Context, guildID string, positions []models.ChannelPosition) error {
	for _, cp := range positions {
		ch, ok := f.channels[cp.ID]
		if !ok {
			return pkg.ErrNotFound
		}
		ch.Position = cp.Position
		if cp.CategoryID != nil {
			if *cp.CategoryID == "" {
				ch.CategoryID = nil
			} else {
				id := *cp.CategoryID
				ch.CategoryID = &id
			}
		}
	}
	return nil
}

func (f *fakeChannelRepo) Delete(ctx context.Context, id string) ([]models.Upload, error) {
	delete(f.channels, id)
	return nil, nil
}

func (f *fakeChannelRepo) NextPosition(ctx context.Context, guildID string, categoryID *string) (int, error) {
	return len(f.channels), nil
}

func (f *fakeChannelRepo) RemoveMemberOverrides(ctx context.Context, userID string) error {
	return nil
}

type fakeUploadRepo struct {
	uploads map[string]*models.Upload
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{uploads: map[string]*models.Upload{}}
}

func (f *fakeUploadRepo) Create(ctx context.Context, upload *models.Upload) error {
	f.uploads[upload.ID] = upload
	return nil
}

func (f *fakeUploadRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	u, ok := f.uploads[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return u, nil
}

func (f *fakeUploadRepo) GetOwnedByIDs(ctx context.Context, uploaderID, channelID string, ids []string) ([]models.Upload, error) {
	var out []models.Upload
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := f.uploads[id]; ok && u.UploaderID == uploaderID && u.ChannelID == channelID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUploadRepo) GetByUploader(ctx context.Context, uploaderID string) ([]models.Upload, error) {
	var out []models.Upload
	for _, u := range f.uploads {
		if u.UploaderID == uploaderID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUploadRepo) Delete(ctx context.Context, id string) error {
	delete(f.uploads, id)
	return nil
}

type fakeBanRepo struct {
	bans map[string]*models.Ban
}

func newFakeBanRepo() *fakeBanRepo {
	return &fakeBanRepo{bans: map[string]*models.Ban{}}
}

func (f *fakeBanRepo) Create(ctx context.Context, ban *models.Ban) error {
	if _, ok := f.bans[ban.UserID]; ok {
		return pkg.ErrAlreadyExists
	}
	ban.CreatedAt = time.Now()
	f.bans[ban.UserID] = ban
	return nil
}

func (f *fakeBanRepo) GetByUserID(ctx context.Context, userID string) (*models.Ban, error) {
	b, ok := f.bans[userID]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return b, nil
}

func (f *fakeBanRepo) GetAll(ctx context.Context) ([]models.Ban, error) {
	var out []models.Ban
	for _, b := range f.bans {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBanRepo) Exists(ctx context.Context, userID string) (bool, error) {
	_, ok := f.bans[userID]
	return ok, nil
}

func (f *fakeBanRepo) Delete(ctx context.Context, userID string) error {
	if _, ok := f.bans[userID]; !ok {
		return pkg.ErrNotFound
	}
	delete(f.bans, userID)
	return nil
}

type fakeMetaRepo struct {
	guildID  string
	settings models.Settings
}

func newFakeMetaRepo(guildID string) *fakeMetaRepo {
	return &fakeMetaRepo{guildID: guildID, settings: models.DefaultSettings()}
}

func (f *fakeMetaRepo) GetGuildID(ctx context.Context) (string, error) { return f.guildID, nil }

func (f *fakeMetaRepo) GetSettings(ctx context.Context) (models.Settings, error) {
	return f.settings, nil
}

func (f *fakeMetaRepo) SetSettings(ctx context.Context, settings models.Settings) error {
	f.settings = settings
	return nil
}

type fakeProfileRepo struct {
	profiles map[string]*models.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: map[string]*models.Profile{}}
}

func (f *fakeProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileRepo) TouchLastSeen(ctx context.Context, id string) error {
	p, ok := f.profiles[id]
	if !ok {
		return pkg.ErrNotFound
	}
	now := time.Now()
	p.LastSeenAt = &now
	return nil
}

type fakePurgeRepo struct {
	purged  []string
	uploads map[string][]models.Upload // userID → rows returned by the purge
}

func newFakePurgeRepo() *fakePurgeRepo {
	return &fakePurgeRepo{uploads: map[string][]models.Upload{}}
}

func (f *fakePurgeRepo) PurgeUser(ctx context.Context, userID string) ([]models.Upload, error) {
	f.purged = append(f.purged, userID)
	return f.uploads[userID], nil
}

type fakeAuditRepo struct {
	entries []models.AuditEntry
	lastMax int
}

func (f *fakeAuditRepo) Add(ctx context.Context, entry *models.AuditEntry, maxEntries int) error {
	f.entries = append(f.entries, *entry)
	f.lastMax = maxEntries
	return nil
}

func (f *fakeAuditRepo) List(ctx context.Context, guildID string, limit, offset int) ([]models.AuditEntry, error) {
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func (f *fakeAuditRepo) Count(ctx context.Context, guildID string) (int, error) {
	return len(f.entries), nil
}

func (f *fakeAuditRepo) actions() []string {
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

// stubVoiceModerator records moderation calls from the member service.
type stubVoiceModerator struct {
	muted        map[string][2]bool
	moved        map[string]string
	disconnected []string
}

func newStubVoiceModerator() *stubVoiceModerator {
	return &stubVoiceModerator{muted: map[string][2]bool{}, moved: map[string]string{}}
}

func (s *stubVoiceModerator) ForceMuteUser(userID string, muted, deafened bool) {
	s.muted[userID] = [2]bool{muted, deafened}
}

func (s *stubVoiceModerator) MoveUser(ctx context.Context, userID, channelID string) error {
	s.moved[userID] = channelID
	return nil
}

func (s *stubVoiceModerator) DisconnectUser(userID string) {
	s.disconnected = append(s.disconnected, userID)
}

// spyPublisher records every event so tests can assert on fanout.
type spyPublisher struct {
	mu     sync.Mutex
	events []spyEvent
}

type spyEvent struct {
	Room   string // "" for all, "user:<id>" etc.
	Except string
	Event  ws.Event
}

func (s *spyPublisher) BroadcastToAll(event ws.Event) {
	s.record(spyEvent{Event: event})
}

func (s *spyPublisher) BroadcastToRoom(room string, event ws.Event) {
	s.record(spyEvent{Room: room, Event: event})
}

func (s *spyPublisher) BroadcastToRoomExcept(room, excludeUserID string, event ws.Event) {
	s.record(spyEvent{Room: room, Except: excludeUserID, Event: event})
}

func (s *spyPublisher) BroadcastToRoomExceptSession(room, excludeSessionID string, event ws.Event) {
	s.record(spyEvent{Room: room, Except: excludeSessionID, Event: event})
}

func (s *spyPublisher) BroadcastToUser(userID string, event ws.Event) {
	s.record(spyEvent{Room: ws.UserRoom(userID), Event: event})
}

func (s *spyPublisher) BroadcastToSession(sessionID string, event ws.Event) {
	s.record(spyEvent{Room: "session:" + sessionID, Event: event})
}

func (s *spyPublisher) DisconnectUser(userID, reason string) {
	s.record(spyEvent{Room: ws.UserRoom(userID), Event: ws.Event{Op: ws.OpGuildKicked, Data: ws.GuildKickedData{Reason: reason}}})
}

func (s *spyPublisher) OnlineUserIDs() []string { return nil }

func (s *spyPublisher) record(e spyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *spyPublisher) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Event.Op
	}
	return out
}

func (s *spyPublisher) hasOp(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Event.Op == op {
			return true
		}
	}
	return false
}

// fakeRoomManager records voice room joins and leaves per session.
type fakeRoomManager struct {
	mu     sync.Mutex
	joined map[string][]string // sessionID → rooms
}

func newFakeRoomManager() *fakeRoomManager {
	return &fakeRoomManager{joined: map[string][]string{}}
}

func (f *fakeRoomManager) JoinSessionRoom(sessionID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[sessionID] = append(f.joined[sessionID], room)
}

func (f *fakeRoomManager) LeaveSessionRoom(sessionID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := f.joined[sessionID]
	for i, r := range rooms {
		if r == room {
			f.joined[sessionID] = append(rooms[:i], rooms[i+1:]...)
			return
		}
	}
}
