package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remus-chat/remus-node/media"
	"github.com/remus-chat/remus-node/media/mediatest"
	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/ws"
)

type voiceFixture struct {
	engine   *mediatest.FakeEngine
	spy      *spyPublisher
	rooms    *fakeRoomManager
	members  *fakeMemberRepo
	channels *fakeChannelRepo
	svc      VoiceService
}

func newVoiceFixture(t *testing.T) *voiceFixture {
	t.Helper()
	roles, members, channels, perms := newPermFixture(t)
	_ = roles

	members.members["u2"] = &models.Member{GuildID: testGuildID, UserID: "u2", Username: "two"}
	members.members["u1"].Username = "one"

	channels.channels["vc"] = &models.Channel{ID: "vc", GuildID: testGuildID, Type: models.ChannelVoice}
	channels.channels["vc2"] = &models.Channel{ID: "vc2", GuildID: testGuildID, Type: models.ChannelVoice}
	channels.channels["txt"] = &models.Channel{ID: "txt", GuildID: testGuildID, Type: models.ChannelText}

	engine := mediatest.NewFakeEngine()
	require.NoError(t, engine.Start(context.Background()))

	spy := &spyPublisher{}
	rooms := newFakeRoomManager()
	ice := []models.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}}
	svc := NewVoiceService(testGuildID, engine, ice, perms, members, channels, spy, rooms)
	return &voiceFixture{engine: engine, spy: spy, rooms: rooms, members: members, channels: channels, svc: svc}
}

// join and produce one audio track on the session, returning the
// producer id.
func (f *voiceFixture) produceAudio(t *testing.T, sessionID, userID string) string {
	t.Helper()
	return f.produce(t, sessionID, userID, "audio", nil)
}

func (f *voiceFixture) produce(t *testing.T, sessionID, userID, kind string, appData json.RawMessage) string {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RouterCapabilities(ctx, sessionID); err != nil {
		_, err := f.svc.Join(ctx, sessionID, userID, "vc")
		require.NoError(t, err)
	}
	params, err := f.svc.CreateTransport(ctx, sessionID, "send")
	require.NoError(t, err)
	tp := params.(media.TransportParameters)
	require.NoError(t, f.svc.ConnectTransport(ctx, sessionID, tp.ID, json.RawMessage(`{}`)))
	res, err := f.svc.Produce(ctx, sessionID, tp.ID, kind, json.RawMessage(`{}`), appData)
	require.NoError(t, err)
	return res.(map[string]string)["id"]
}

func TestVoiceJoin(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	res, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	join := res.(*joinResult)
	assert.Equal(t, "vc", join.ChannelID)
	assert.NotEmpty(t, join.RTPCapabilities)
	require.Len(t, join.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, join.ICEServers[0].URLs)
	assert.Empty(t, join.Peers)

	assert.Contains(t, f.rooms.joined["s1"], ws.VoiceRoom("vc"))
	assert.Len(t, f.engine.Routers, 1, "router created lazily on first join")
	assert.True(t, f.spy.hasOp(ws.OpVoicePeerJoined))
	assert.True(t, f.spy.hasOp(ws.OpVoiceExistingProducers))
	assert.True(t, f.spy.hasOp(ws.OpVoicePresenceUpdate))
}

func TestVoiceJoinRejectsTextChannel(t *testing.T) {
	f := newVoiceFixture(t)

	_, err := f.svc.Join(context.Background(), "s1", "u1", "txt")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestVoiceRejoinResetsSession(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.produceAudio(t, "s1", "u1")
	require.Len(t, f.engine.Producers, 1)

	// The same session joining again starts from a clean peer; the old
	// producers are gone.
	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	assert.Empty(t, f.engine.Producers)
	assert.Len(t, f.engine.Routers, 1)
}

func TestVoiceJoinMovesBetweenChannels(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "s1", "u1", "vc2")
	require.NoError(t, err)

	// The old room emptied out, so its router is gone.
	assert.Len(t, f.engine.Routers, 1)
	assert.Contains(t, f.engine.Routers, "vc2")
	assert.True(t, f.spy.hasOp(ws.OpVoicePeerLeft))
}

func TestVoiceTwoSessionsSameUser(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	res, err := f.svc.Join(ctx, "s1b", "u1", "vc")
	require.NoError(t, err)

	// The first tab shows up as a distinct peer of the same user.
	join := res.(*joinResult)
	require.Len(t, join.Peers, 1)
	assert.Equal(t, "s1", join.Peers[0].PeerID)
	assert.Equal(t, "u1", join.Peers[0].UserID)

	pres, err := f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	view := pres.(*models.VoicePresence)
	assert.ElementsMatch(t, []string{"s1", "s1b"}, view.UserIDs)
}

func TestVoiceJoinListsExistingPeers(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.produceAudio(t, "s1", "u1")

	res, err := f.svc.Join(ctx, "s2", "u2", "vc")
	require.NoError(t, err)
	join := res.(*joinResult)
	require.Len(t, join.Peers, 1)
	assert.Equal(t, "u1", join.Peers[0].UserID)
	require.Len(t, join.Peers[0].Producers, 1)
	assert.Equal(t, "audio", join.Peers[0].Producers[0].Kind)
}

func TestVoiceProduceBroadcasts(t *testing.T) {
	f := newVoiceFixture(t)

	f.produceAudio(t, "s1", "u1")
	assert.True(t, f.spy.hasOp(ws.OpVoiceNewProducer))
	require.Len(t, f.engine.Producers, 1)

	// The stream's appData is stamped with its owner so consumers can
	// attribute it.
	for _, p := range f.engine.Producers {
		var meta map[string]any
		require.NoError(t, json.Unmarshal(p.AppData, &meta))
		assert.Equal(t, "s1", meta["peerId"])
		assert.Equal(t, "u1", meta["userId"])
	}
}

func TestVoiceProduceKeepsScreenType(t *testing.T) {
	f := newVoiceFixture(t)

	f.produce(t, "s1", "u1", "video", json.RawMessage(`{"type":"screen"}`))

	for _, p := range f.engine.Producers {
		var meta map[string]any
		require.NoError(t, json.Unmarshal(p.AppData, &meta))
		assert.Equal(t, "screen", meta["type"])
		assert.Equal(t, "s1", meta["peerId"])
	}
}

func TestVoiceProduceRequiresJoin(t *testing.T) {
	f := newVoiceFixture(t)

	_, err := f.svc.Produce(context.Background(), "s1", "nope", "audio", json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestVoiceProduceBlockedWhenServerMuted(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.members.members["u1"].VoiceMuted = true

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	params, err := f.svc.CreateTransport(ctx, "s1", "send")
	require.NoError(t, err)
	tp := params.(media.TransportParameters)

	_, err = f.svc.Produce(ctx, "s1", tp.ID, "audio", json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestVoiceScreensharePermission(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.channels.channels["vc"].Overrides = &models.PermissionOverrides{
		Roles: map[string]models.Override{
			testGuildID: {Deny: models.PermScreenshare},
		},
	}

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	params, err := f.svc.CreateTransport(ctx, "s1", "send")
	require.NoError(t, err)
	tp := params.(media.TransportParameters)

	// Video and screen audio both ride on the screenshare bit; the
	// microphone only needs speak.
	_, err = f.svc.Produce(ctx, "s1", tp.ID, "video", json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	_, err = f.svc.Produce(ctx, "s1", tp.ID, "audio", json.RawMessage(`{}`), json.RawMessage(`{"type":"screen-audio"}`))
	assert.ErrorIs(t, err, pkg.ErrForbidden)
	_, err = f.svc.Produce(ctx, "s1", tp.ID, "audio", json.RawMessage(`{}`), nil)
	assert.NoError(t, err)
}

func TestVoiceCloseProducer(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	producerID := f.produceAudio(t, "s1", "u1")

	require.NoError(t, f.svc.CloseProducer(ctx, "s1", producerID))
	assert.Empty(t, f.engine.Producers)
	assert.True(t, f.spy.hasOp(ws.OpVoiceProducerClosed))

	assert.ErrorIs(t, f.svc.CloseProducer(ctx, "s1", producerID), pkg.ErrNotFound)
}

func TestVoiceSpeaking(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	// Producing alone does not mark the peer as speaking; the client
	// reports voice activity explicitly.
	f.produceAudio(t, "s1", "u1")
	res, err := f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	assert.Empty(t, res.(*models.VoicePresence).SpeakingUserIDs)

	require.NoError(t, f.svc.SetSpeaking(ctx, "s1", true))
	assert.True(t, f.spy.hasOp(ws.OpVoiceSpeaking))
	assert.True(t, f.spy.hasOp(ws.OpVoiceSpeakingAll))

	res, err = f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, res.(*models.VoicePresence).SpeakingUserIDs)

	require.NoError(t, f.svc.SetSpeaking(ctx, "s1", false))
	res, err = f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	assert.Empty(t, res.(*models.VoicePresence).SpeakingUserIDs)
}

func TestVoiceSpeakingRequiresJoin(t *testing.T) {
	f := newVoiceFixture(t)

	err := f.svc.SetSpeaking(context.Background(), "s1", true)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestVoiceConsume(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	producerID := f.produceAudio(t, "s1", "u1")

	_, err := f.svc.Join(ctx, "s2", "u2", "vc")
	require.NoError(t, err)
	params, err := f.svc.CreateTransport(ctx, "s2", "recv")
	require.NoError(t, err)
	tp := params.(media.TransportParameters)
	require.NoError(t, f.svc.ConnectTransport(ctx, "s2", tp.ID, json.RawMessage(`{}`)))

	res, err := f.svc.Consume(ctx, "s2", producerID, json.RawMessage(`{}`))
	require.NoError(t, err)
	consume := res.(*consumeResult)
	assert.Equal(t, producerID, consume.ProducerID)
	assert.Equal(t, "s1", consume.PeerID, "consumer learns which session owns the stream")
	assert.Equal(t, "audio", consume.Kind)
	assert.NotEmpty(t, consume.AppData)

	// Consumers start paused until the client resumes them.
	fc := f.engine.Consumers[consume.ID]
	require.NotNil(t, fc)
	assert.True(t, fc.Paused)

	require.NoError(t, f.svc.ResumeConsumer(ctx, "s2", consume.ID))
	assert.False(t, fc.Paused)
}

func TestVoiceConsumeOwnProducer(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	producerID := f.produceAudio(t, "s1", "u1")
	_, err := f.svc.CreateTransport(ctx, "s1", "recv")
	require.NoError(t, err)

	_, err = f.svc.Consume(ctx, "s1", producerID, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestVoiceConsumeWithoutRecvTransport(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	producerID := f.produceAudio(t, "s1", "u1")
	_, err := f.svc.Join(ctx, "s2", "u2", "vc")
	require.NoError(t, err)

	_, err = f.svc.Consume(ctx, "s2", producerID, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestVoiceLeaveTearsDown(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.produceAudio(t, "s1", "u1")
	require.NoError(t, f.svc.Leave(ctx, "s1"))

	assert.Empty(t, f.engine.Producers, "producers closed on leave")
	assert.Empty(t, f.engine.Routers, "empty room drops its router")
	assert.Empty(t, f.rooms.joined["s1"])
	assert.True(t, f.spy.hasOp(ws.OpVoiceProducerClosed))
	assert.True(t, f.spy.hasOp(ws.OpVoicePeerLeft))

	// Leaving twice is a no-op.
	assert.NoError(t, f.svc.Leave(ctx, "s1"))
}

func TestVoiceHandleDisconnect(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "s1b", "u1", "vc")
	require.NoError(t, err)

	// Only the dropped tab's peer goes; the other tab stays in voice.
	f.svc.HandleDisconnect("s1", "u1", false)
	assert.Len(t, f.engine.Routers, 1)
	res, err := f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1b"}, res.(*models.VoicePresence).UserIDs)

	f.svc.HandleDisconnect("s1b", "u1", true)
	assert.Empty(t, f.engine.Routers)
}

func TestVoiceForceMuteClosesAudio(t *testing.T) {
	f := newVoiceFixture(t)

	f.produceAudio(t, "s1", "u1")
	f.produce(t, "s1", "u1", "audio", json.RawMessage(`{"type":"screen-audio"}`))
	f.produce(t, "s1", "u1", "video", json.RawMessage(`{"type":"screen"}`))

	f.svc.ForceMuteUser("u1", true, false)

	// Microphone and screen audio drop, the screen video keeps running.
	require.Len(t, f.engine.Producers, 1)
	for _, p := range f.engine.Producers {
		assert.Equal(t, "video", p.Kind())
	}
	assert.True(t, f.spy.hasOp(ws.OpVoiceProducerClosed))
	assert.True(t, f.spy.hasOp(ws.OpVoiceForceMute))
}

func TestVoiceMoveUser(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.MoveUser(ctx, "u1", "vc2"), pkg.ErrBadRequest)

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	require.NoError(t, f.svc.MoveUser(ctx, "u1", "vc2"))

	// The peer is dropped; the client rejoins the target on its own.
	assert.Empty(t, f.engine.Routers)
	assert.True(t, f.spy.hasOp(ws.OpVoiceForceMove))
}

func TestVoiceDisconnectUser(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "s1", "u1", "vc")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, "s1b", "u1", "vc")
	require.NoError(t, err)

	// Every session of the user goes down at once.
	f.svc.DisconnectUser("u1")
	assert.Empty(t, f.engine.Routers)
	assert.True(t, f.spy.hasOp(ws.OpVoiceDisconnected))
}

func TestVoicePresence(t *testing.T) {
	f := newVoiceFixture(t)
	ctx := context.Background()

	f.produceAudio(t, "s1", "u1")
	_, err := f.svc.Join(ctx, "s2", "u2", "vc")
	require.NoError(t, err)

	res, err := f.svc.Presence(ctx, "vc")
	require.NoError(t, err)
	view := res.(*models.VoicePresence)
	assert.ElementsMatch(t, []string{"s1", "s2"}, view.UserIDs)
	require.Len(t, view.Users, 2)
	for _, u := range view.Users {
		assert.NotEmpty(t, u.PeerID)
		assert.Contains(t, []string{"u1", "u2"}, u.UserID)
	}

	empty, err := f.svc.Presence(ctx, "vc2")
	require.NoError(t, err)
	assert.Empty(t, empty.(*models.VoicePresence).UserIDs)
}
