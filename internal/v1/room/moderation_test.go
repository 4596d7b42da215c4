package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

const testOwnerKey = "owner-secret"

func newOwnedRoom(t *testing.T) *Room {
	return newTestRoom(t, Options{Owner: auth.NewOwnerKeyChecker(testOwnerKey)})
}

func TestClaimHost(t *testing.T) {
	r := newOwnedRoom(t)
	host, claimer := newMockConn("host"), newMockConn("claimer")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, claimer, "claimer")

	assert.ErrorIs(t, r.ClaimHost(claimer, "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, r.ClaimHost(claimer, ""), ErrUnauthorized)
	assert.ErrorIs(t, r.ClaimHost(newMockConn("ghost"), testOwnerKey), ErrPlayerNotFound)

	require.NoError(t, r.ClaimHost(claimer, testOwnerKey))
	u := r.Update()
	assert.Equal(t, types.ClientIdType("claimer"), u.HostID)
	assert.False(t, playerByID(t, u, "host").Host)
	assert.True(t, playerByID(t, u, "claimer").Admitted)
}

func TestClaimHost_NoOwnerConfigured(t *testing.T) {
	r := newTestRoom(t, Options{})
	conn := newMockConn("a")
	mustJoin(t, r, conn, "a")
	assert.ErrorIs(t, r.ClaimHost(conn, testOwnerKey), ErrUnauthorized)
}

func TestKickPlayer(t *testing.T) {
	r := newOwnedRoom(t)
	host, target, other := newMockConn("host"), newMockConn("target"), newMockConn("other")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, target, "target")
	mustJoin(t, r, other, "other")

	assert.ErrorIs(t, r.KickPlayer(other, "target"), ErrHostOnly)
	assert.ErrorIs(t, r.KickPlayer(host, ""), ErrTargetRequired)
	assert.ErrorIs(t, r.KickPlayer(host, "host"), ErrCannotTargetSelf)
	assert.ErrorIs(t, r.KickPlayer(host, "nobody"), ErrPlayerNotFound)

	require.NoError(t, r.KickPlayer(host, "target"))
	assert.Equal(t, 2, r.PlayerCount())
	assert.Equal(t, 1, target.count(types.EventHostKicked))
	assert.Equal(t, "kicked by host", target.kicked())
}

func TestSetChatMuted(t *testing.T) {
	r := newOwnedRoom(t)
	host, target := newMockConn("host"), newMockConn("target")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, target, "target")

	assert.ErrorIs(t, r.SetChatMuted(target, "host", true), ErrHostOnly)
	assert.ErrorIs(t, r.SetChatMuted(host, "host", true), ErrCannotTargetSelf)

	require.NoError(t, r.SetChatMuted(host, "target", true))
	notice := target.last(t, types.EventHostChatMuted).(types.MutedNotice)
	assert.True(t, notice.Muted)
	assert.True(t, playerByID(t, r.Update(), "target").Muted)

	require.NoError(t, r.SetChatMuted(host, "target", false))
	assert.False(t, playerByID(t, r.Update(), "target").Muted)
}

func TestSetPortalTarget(t *testing.T) {
	r := newOwnedRoom(t)
	host, p1 := newMockConn("host"), newMockConn("p1")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, p1, "p1")

	assert.ErrorIs(t, r.SetPortalTarget(p1, "https://example.com"), ErrHostOnly)
	assert.ErrorIs(t, r.SetPortalTarget(host, "ftp://example.com"), ErrInvalidPortalTarget)
	assert.ErrorIs(t, r.SetPortalTarget(host, "not a url"), ErrInvalidPortalTarget)
	assert.ErrorIs(t, r.SetPortalTarget(host, ""), ErrInvalidPortalTarget)
	long := "https://example.com/" + strings.Repeat("p", types.MaxPortalURL)
	assert.ErrorIs(t, r.SetPortalTarget(host, long), ErrInvalidPortalTarget)

	require.NoError(t, r.SetPortalTarget(host, "https://example.com/next-map"))
	upd := p1.last(t, types.EventPortalTargetUpdate).(types.PortalTargetUpdate)
	assert.Equal(t, "https://example.com/next-map", upd.TargetURL)
	assert.Equal(t, "https://example.com/next-map", r.Update().PortalTarget)
}

func TestSetBillboard(t *testing.T) {
	r := newOwnedRoom(t)
	host, p1 := newMockConn("host"), newMockConn("p1")
	mustJoin(t, r, host, "host")
	mustJoin(t, r, p1, "p1")

	video := types.MediaChannel{VisualType: "video", VisualURL: "https://cdn.example.com/a.mp4"}

	assert.ErrorIs(t, r.SetBillboard(p1, testOwnerKey, types.BillboardSetRequest{Target: BoardOne, Media: video}), ErrHostOnly)
	assert.ErrorIs(t, r.SetBillboard(host, "wrong", types.BillboardSetRequest{Target: BoardOne, Media: video}), ErrUnauthorized)
	assert.ErrorIs(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{Target: "board9", Media: video}), ErrInvalidBillboardTarget)
	assert.ErrorIs(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{
		Target: BoardOne,
		Media:  types.MediaChannel{VisualType: "hologram"},
	}), ErrInvalidBillboardMedia)
	assert.ErrorIs(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{
		Target: BoardOne,
		Media:  types.MediaChannel{VisualType: "video", VisualURL: "javascript:alert(1)"},
	}), ErrInvalidBillboardMedia)
	assert.ErrorIs(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{
		Target: BoardOne,
		Media:  types.MediaChannel{VisualType: "image", VisualURL: "https://x.example.com/a.png", AudioURL: "file:///etc/passwd"},
	}), ErrInvalidBillboardMedia)

	require.NoError(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{Target: BoardTwo, Media: video}))
	upd := p1.last(t, types.EventBillboardMediaUpdate).(types.BillboardMediaUpdate)
	assert.Equal(t, BoardTwo, upd.Target)
	assert.Equal(t, video, upd.Media)
	assert.Equal(t, video, r.Billboards()[BoardTwo])

	// "none" clears the visual URL.
	require.NoError(t, r.SetBillboard(host, testOwnerKey, types.BillboardSetRequest{
		Target: BoardTwo,
		Media:  types.MediaChannel{VisualType: "none", VisualURL: "https://leftover.example.com"},
	}))
	assert.Empty(t, r.Billboards()[BoardTwo].VisualURL)
}

func TestCodes_GenerateFormat(t *testing.T) {
	code := GenerateRoomCode(func(types.RoomCodeType) bool { return false })
	s := string(code)
	require.True(t, strings.HasPrefix(s, codePrefix))
	body := strings.TrimPrefix(s, codePrefix)
	require.Len(t, body, codeLength)
	for _, c := range body {
		assert.Contains(t, codeAlphabet, string(c))
	}
}

func TestCodes_RetriesOnCollision(t *testing.T) {
	calls := 0
	code := GenerateRoomCode(func(types.RoomCodeType) bool {
		calls++
		return calls <= 3
	})
	assert.Equal(t, 4, calls)
	assert.True(t, strings.HasPrefix(string(code), codePrefix))
}

func TestCodes_FallbackAfterRetryBudget(t *testing.T) {
	code := GenerateRoomCode(func(types.RoomCodeType) bool { return true })
	assert.True(t, strings.HasPrefix(string(code), codePrefix))
	assert.Greater(t, len(code), len(codePrefix)+codeLength)
}

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, types.RoomCodeType("OX-AB2CD"), NormalizeRoomCode("  ox-ab2cd "))
	assert.Equal(t, types.RoomCodeType(""), NormalizeRoomCode("   "))
}

func TestValidRoomCode(t *testing.T) {
	assert.True(t, ValidRoomCode("OX-AB2CD"))
	assert.True(t, ValidRoomCode("LOBBY_1"))
	assert.True(t, ValidRoomCode(types.RoomCodeType(strings.Repeat("A", maxCodeLength))))

	assert.False(t, ValidRoomCode(""))
	assert.False(t, ValidRoomCode("OX-!!!"))
	assert.False(t, ValidRoomCode("ox-ab2cd")) // normalization uppercases first
	assert.False(t, ValidRoomCode("OX AB2CD"))
	assert.False(t, ValidRoomCode(types.RoomCodeType(strings.Repeat("A", maxCodeLength+1))))
}
