package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/apps/hub/internal/svc"
	"PairServer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairRow(otherUid string, ownPause, peerPause bool) *repository.PairInfoRow {
	return &repository.PairInfoRow{
		OtherUid:     otherUid,
		OtherAlias:   "alias-" + otherUid,
		OwnPairPerm:  &repository.PermView{PauseVisual: ownPause, AllowSounds: true, AllowAnimations: true, AllowVfx: true},
		PeerPairPerm: &repository.PermView{PauseVisual: peerPause, AllowSounds: true, AllowAnimations: true, AllowVfx: true},
	}
}

func TestLifecycleServiceOnConnected(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()
	sess := &svc.Session{Uid: "AAAAAAAAAA", CharIdent: "CharA@W1", ConnID: "conn-1"}

	t.Run("presence_write_failure_aborts", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{}, &fakePermissionRepo{}, &fakePresenceRepo{
			setOnlineFn: func(_ context.Context, _, _ string) error {
				return errors.New("redis down")
			},
		}, dispatcher)

		data, err := lifecycle.OnConnected(ctx, sess)
		require.Error(t, err)
		require.Nil(t, data)
	})

	t.Run("first_frame_contents", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()

		var presenceCalls []string
		presenceRepo := &fakePresenceRepo{
			setOnlineFn: func(_ context.Context, uid, charIdent string) error {
				presenceCalls = append(presenceCalls, "set:"+uid+":"+charIdent)
				return nil
			},
			batchGetOnlineFn: func(_ context.Context, uids []string) (map[string]string, error) {
				presenceCalls = append(presenceCalls, "batch")
				return map[string]string{
					"BBBBBBBBBB": "CharB@W1",
					"CCCCCCCCCC": "CharC@W1",
				}, nil
			},
		}
		pairRepo := &fakePairRepo{
			getAllPairInfoFn: func(_ context.Context, _ string) ([]*repository.PairInfoRow, error) {
				return []*repository.PairInfoRow{
					pairRow("BBBBBBBBBB", false, false),
					pairRow("CCCCCCCCCC", true, false), // 我暂停了 C，首帧里 C 算离线
					pairRow("DDDDDDDDDD", false, false),
				}, nil
			},
		}
		permRepo := &fakePermissionRepo{
			getGlobalFn: func(_ context.Context, uid string) (*model.GlobalPermission, error) {
				return &model.GlobalPermission{UserUid: uid, AllowSounds: true, AllowAnimations: false, AllowVfx: true}, nil
			},
		}
		userRepo := &fakeUserRepo{
			getTierFn: func(_ context.Context, _ string) (int8, error) {
				return model.TierNormal, nil
			},
		}

		lifecycle := NewLifecycleService("hub-1", 3, userRepo, pairRepo, permRepo, presenceRepo, dispatcher)

		data, err := lifecycle.OnConnected(ctx, sess)
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, "hub-1", data.ServerName)
		assert.Equal(t, 3, data.ShardID)
		assert.Equal(t, "conn-1", data.ConnID)
		assert.Equal(t, []string{"BBBBBBBBBB"}, data.OnlinePairUids)
		require.NotNil(t, data.GlobalPerms)
		assert.False(t, data.GlobalPerms.AllowAnimations)
		assert.Equal(t, model.TierNormal, data.Tier)

		// 在线状态先落地，之后才查询对端在线
		require.GreaterOrEqual(t, len(presenceCalls), 2)
		assert.Equal(t, "set:AAAAAAAAAA:CharA@W1", presenceCalls[0])
		assert.Equal(t, "batch", presenceCalls[1])
	})

	t.Run("online_broadcast_skips_peers_who_paused_me", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, visibleConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")
		_, pausedConn := newOnlineClient(t, cm, "CCCCCCCCCC", "CharC@W1")

		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{
			getAllPairInfoFn: func(_ context.Context, _ string) ([]*repository.PairInfoRow, error) {
				return []*repository.PairInfoRow{
					pairRow("BBBBBBBBBB", false, false),
					pairRow("CCCCCCCCCC", false, true), // C 把我暂停了，对它而言我一直离线
				}, nil
			},
		}, &fakePermissionRepo{}, &fakePresenceRepo{
			batchGetOnlineFn: func(_ context.Context, _ []string) (map[string]string, error) {
				return map[string]string{"BBBBBBBBBB": "CharB@W1", "CCCCCCCCCC": "CharC@W1"}, nil
			},
		}, dispatcher)

		_, err := lifecycle.OnConnected(ctx, sess)
		require.NoError(t, err)

		frame := readPush(t, visibleConn)
		require.Equal(t, "user_online", frame.Type)
		var push dto.UserOnlineData
		require.NoError(t, json.Unmarshal(frame.Data, &push))
		assert.Equal(t, "AAAAAAAAAA", push.Uid)
		assert.Equal(t, "CharA@W1", push.CharIdent)

		requireNoPush(t, pausedConn, 300*time.Millisecond)
	})
}

func TestLifecycleServiceHeartbeat(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()
	sess := &svc.Session{Uid: "AAAAAAAAAA", CharIdent: "CharA@W1", ConnID: "conn-1"}

	t.Run("renewal_success", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		var gotUid, gotIdent string
		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{}, &fakePermissionRepo{}, &fakePresenceRepo{
			heartbeatFn: func(_ context.Context, uid, charIdent string) error {
				gotUid, gotIdent = uid, charIdent
				return nil
			},
		}, dispatcher)

		ackData := lifecycle.Heartbeat(ctx, sess)
		require.NotNil(t, ackData)
		assert.True(t, ackData.Alive)
		assert.Equal(t, "AAAAAAAAAA", gotUid)
		assert.Equal(t, "CharA@W1", gotIdent)
	})

	t.Run("renewal_failure_reported_not_fatal", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{}, &fakePermissionRepo{}, &fakePresenceRepo{
			heartbeatFn: func(_ context.Context, _, _ string) error {
				return errors.New("redis down")
			},
		}, dispatcher)

		ackData := lifecycle.Heartbeat(ctx, sess)
		require.NotNil(t, ackData)
		assert.False(t, ackData.Alive)
	})
}

func TestLifecycleServiceOnDisconnected(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()
	sess := &svc.Session{Uid: "AAAAAAAAAA", CharIdent: "CharA@W1", ConnID: "conn-1"}

	t.Run("presence_cleared_before_broadcast", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, peerConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")

		var calls []string
		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{
			getAllPairInfoFn: func(_ context.Context, _ string) ([]*repository.PairInfoRow, error) {
				calls = append(calls, "pairs")
				return []*repository.PairInfoRow{pairRow("BBBBBBBBBB", false, false)}, nil
			},
		}, &fakePermissionRepo{}, &fakePresenceRepo{
			removeOnlineFn: func(_ context.Context, uid, charIdent string) error {
				calls = append(calls, "remove:"+uid+":"+charIdent)
				return nil
			},
			batchGetOnlineFn: func(_ context.Context, _ []string) (map[string]string, error) {
				return map[string]string{"BBBBBBBBBB": "CharB@W1"}, nil
			},
		}, dispatcher)

		lifecycle.OnDisconnected(ctx, sess)

		require.Equal(t, []string{"remove:AAAAAAAAAA:CharA@W1", "pairs"}, calls)

		frame := readPush(t, peerConn)
		require.Equal(t, "user_offline", frame.Type)
		var push dto.UserOfflineData
		require.NoError(t, json.Unmarshal(frame.Data, &push))
		assert.Equal(t, "AAAAAAAAAA", push.Uid)
	})

	t.Run("remove_failure_still_broadcasts", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, peerConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")

		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{
			getAllPairInfoFn: func(_ context.Context, _ string) ([]*repository.PairInfoRow, error) {
				return []*repository.PairInfoRow{pairRow("BBBBBBBBBB", false, false)}, nil
			},
		}, &fakePermissionRepo{}, &fakePresenceRepo{
			removeOnlineFn: func(_ context.Context, _, _ string) error {
				return errors.New("redis down")
			},
			batchGetOnlineFn: func(_ context.Context, _ []string) (map[string]string, error) {
				return map[string]string{"BBBBBBBBBB": "CharB@W1"}, nil
			},
		}, dispatcher)

		lifecycle.OnDisconnected(ctx, sess)
		require.Equal(t, "user_offline", readPush(t, peerConn).Type)
	})

	t.Run("offline_broadcast_skips_peers_who_paused_me", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, pausedConn := newOnlineClient(t, cm, "CCCCCCCCCC", "CharC@W1")

		lifecycle := NewLifecycleService("hub-1", 1, &fakeUserRepo{}, &fakePairRepo{
			getAllPairInfoFn: func(_ context.Context, _ string) ([]*repository.PairInfoRow, error) {
				return []*repository.PairInfoRow{pairRow("CCCCCCCCCC", false, true)}, nil
			},
		}, &fakePermissionRepo{}, &fakePresenceRepo{
			batchGetOnlineFn: func(_ context.Context, _ []string) (map[string]string, error) {
				return map[string]string{"CCCCCCCCCC": "CharC@W1"}, nil
			},
		}, dispatcher)

		lifecycle.OnDisconnected(ctx, sess)
		requireNoPush(t, pausedConn, 300*time.Millisecond)
	})
}
