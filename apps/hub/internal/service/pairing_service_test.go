package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/consts"
	"PairServer/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairingServiceSendRequest(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	t.Run("self_target", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		result, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Nil(t, result)
		require.Equal(t, consts.CodeCannotInteractWithSelf, code)
	})

	t.Run("unknown_target", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{
			existsByUidFn: func(_ context.Context, uid string) (bool, error) {
				assert.Equal(t, "BBBBBBBBBB", uid)
				return false, nil
			},
		}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		_, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeInvalidRecipient, code)
	})

	t.Run("blocked_either_direction", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{
			isBlockedFn: func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		}, &fakePresenceRepo{}, dispatcher)

		_, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeRecipientBlocked, code)
	})

	t.Run("pending_request_exists", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			existsPendingFn: func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		_, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeRequestExists, code)
	})

	t.Run("already_paired", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			existsPairFn: func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		_, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeAlreadyPaired, code)
	})

	t.Run("concurrent_duplicate_folds_to_request_exists", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			createFn: func(_ context.Context, _ *model.PairRequest) (*model.PairRequest, error) {
				return nil, repository.ErrDuplicateKey
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		_, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeRequestExists, code)
	})

	t.Run("success_notifies_online_target", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, targetConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")

		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		result, code, err := svc.SendRequest(ctx, "AAAAAAAAAA", &dto.SendRequestData{
			TargetUid:   "BBBBBBBBBB",
			IsTemporary: true,
			Message:     "hi",
		})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)
		require.NotNil(t, result)
		assert.Equal(t, "BBBBBBBBBB", result.TargetUid)
		assert.True(t, result.IsTemporary)

		frame := readPush(t, targetConn)
		require.Equal(t, "request_added", frame.Type)
		var push dto.RequestAddedData
		require.NoError(t, json.Unmarshal(frame.Data, &push))
		assert.Equal(t, "AAAAAAAAAA", push.SenderUid)
		assert.True(t, push.IsTemporary)
	})
}

func TestPairingServiceCancelAndReject(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	t.Run("cancel_request_not_found", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.CancelRequest(ctx, "AAAAAAAAAA", &dto.CancelRequestData{TargetUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeRequestNotFound, code)
	})

	t.Run("reject_deletes_sender_direction", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, senderConn := newOnlineClient(t, cm, "AAAAAAAAAA", "CharA@W1")

		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			deleteFn: func(_ context.Context, senderUid, targetUid string) (int64, error) {
				assert.Equal(t, "AAAAAAAAAA", senderUid)
				assert.Equal(t, "BBBBBBBBBB", targetUid)
				return 1, nil
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.RejectRequest(ctx, "BBBBBBBBBB", &dto.RejectRequestData{SenderUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)

		frame := readPush(t, senderConn)
		require.Equal(t, "request_removed", frame.Type)
	})
}

func TestPairingServiceAcceptRequest(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	pairRow := func(otherUid string, ownPause bool) *repository.PairInfoRow {
		return &repository.PairInfoRow{
			OtherUid:     otherUid,
			OtherAlias:   "alias-" + otherUid,
			AcceptedBy:   "BBBBBBBBBB",
			PairedAt:     time.Now(),
			OwnPairPerm:  &repository.PermView{PauseVisual: ownPause, AllowSounds: true},
			OwnGlobal:    &repository.PermView{AllowSounds: true},
			PeerPairPerm: &repository.PermView{AllowSounds: true},
			PeerGlobal:   &repository.PermView{AllowSounds: true},
		}
	}

	t.Run("request_not_found", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			acceptFn: func(_ context.Context, _, _ string) (bool, bool, error) {
				return false, false, repository.ErrRecordNotFound
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		view, code, err := svc.AcceptRequest(ctx, "BBBBBBBBBB", &dto.AcceptRequestData{SenderUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Nil(t, view)
		require.Equal(t, consts.CodeRequestNotFound, code)
	})

	t.Run("race_already_paired", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			acceptFn: func(_ context.Context, _, _ string) (bool, bool, error) {
				return true, false, nil
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		view, code, err := svc.AcceptRequest(ctx, "BBBBBBBBBB", &dto.AcceptRequestData{SenderUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Nil(t, view)
		require.Equal(t, consts.CodeAlreadyPaired, code)
	})

	t.Run("success_notification_order", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, requesterConn := newOnlineClient(t, cm, "AAAAAAAAAA", "CharA@W1")

		idents := map[string]string{
			"AAAAAAAAAA": "CharA@W1",
			"BBBBBBBBBB": "CharB@W1",
		}
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			getPairInfoFn: func(_ context.Context, userUid, otherUid string) (*repository.PairInfoRow, error) {
				return pairRow(otherUid, false), nil
			},
		}, &fakeRequestRepo{
			acceptFn: func(_ context.Context, accepterUid, requesterUid string) (bool, bool, error) {
				assert.Equal(t, "BBBBBBBBBB", accepterUid)
				assert.Equal(t, "AAAAAAAAAA", requesterUid)
				return false, true, nil
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{
			getOnlineIdentFn: func(_ context.Context, uid string) (string, error) {
				return idents[uid], nil
			},
		}, dispatcher)

		view, code, err := svc.AcceptRequest(ctx, "BBBBBBBBBB", &dto.AcceptRequestData{SenderUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)
		require.NotNil(t, view)
		assert.Equal(t, "AAAAAAAAAA", view.OtherUid)
		assert.True(t, view.IsTemporary)
		assert.True(t, view.Online)

		// 因果链顺序：移除申请 → 新配对 → 对端上线
		first := readPush(t, requesterConn)
		require.Equal(t, "request_removed", first.Type)

		second := readPush(t, requesterConn)
		require.Equal(t, "pair_added", second.Type)
		var pairPush dto.PairAddedData
		require.NoError(t, json.Unmarshal(second.Data, &pairPush))
		require.NotNil(t, pairPush.Pair)
		assert.Equal(t, "BBBBBBBBBB", pairPush.Pair.OtherUid)

		third := readPush(t, requesterConn)
		require.Equal(t, "user_online", third.Type)
		var onlinePush dto.UserOnlineData
		require.NoError(t, json.Unmarshal(third.Data, &onlinePush))
		assert.Equal(t, "BBBBBBBBBB", onlinePush.Uid)
		assert.Equal(t, "CharB@W1", onlinePush.CharIdent)
	})

	t.Run("seeded_pause_suppresses_online_event", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, requesterConn := newOnlineClient(t, cm, "AAAAAAAAAA", "CharA@W1")

		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			getPairInfoFn: func(_ context.Context, userUid, otherUid string) (*repository.PairInfoRow, error) {
				// 发起方视角的行带着播种出的暂停标记
				return pairRow(otherUid, userUid == "AAAAAAAAAA"), nil
			},
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{
			getOnlineIdentFn: func(_ context.Context, _ string) (string, error) {
				return "some-ident", nil
			},
		}, dispatcher)

		_, code, err := svc.AcceptRequest(ctx, "BBBBBBBBBB", &dto.AcceptRequestData{SenderUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)

		require.Equal(t, "request_removed", readPush(t, requesterConn).Type)
		require.Equal(t, "pair_added", readPush(t, requesterConn).Type)
		requireNoPush(t, requesterConn, 300*time.Millisecond)
	})
}

func TestPairingServiceMakePermanent(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	newSvc := func(row *repository.PairInfoRow) PairingService {
		dispatcher, _ := newTestDispatcher()
		return NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			getPairInfoFn: func(_ context.Context, _, _ string) (*repository.PairInfoRow, error) {
				return row, nil
			},
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)
	}

	t.Run("not_paired", func(t *testing.T) {
		svc := newSvc(nil)
		code, err := svc.MakePermanent(ctx, "AAAAAAAAAA", &dto.MakePermanentData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeNotPaired, code)
	})

	t.Run("already_permanent", func(t *testing.T) {
		svc := newSvc(&repository.PairInfoRow{OtherUid: "BBBBBBBBBB"})
		code, err := svc.MakePermanent(ctx, "AAAAAAAAAA", &dto.MakePermanentData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeAlreadyPermanent, code)
	})

	t.Run("wrong_caller", func(t *testing.T) {
		svc := newSvc(&repository.PairInfoRow{OtherUid: "BBBBBBBBBB", AcceptedBy: "BBBBBBBBBB"})
		code, err := svc.MakePermanent(ctx, "AAAAAAAAAA", &dto.MakePermanentData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeNotTemporaryAccepter, code)
	})

	t.Run("success_notifies_peer", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, peerConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")

		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			makePermanentFn: func(_ context.Context, callerUid, otherUid string) (int64, error) {
				assert.Equal(t, "AAAAAAAAAA", callerUid)
				assert.Equal(t, "BBBBBBBBBB", otherUid)
				return 2, nil
			},
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.MakePermanent(ctx, "AAAAAAAAAA", &dto.MakePermanentData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)

		frame := readPush(t, peerConn)
		require.Equal(t, "pair_permanent", frame.Type)
	})
}

func TestPairingServiceRemovePair(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	t.Run("not_paired", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			removePairFn: func(_ context.Context, _, _ string) error {
				return repository.ErrRecordNotFound
			},
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.RemovePair(ctx, "AAAAAAAAAA", &dto.RemovePairData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeNotPaired, code)
	})

	t.Run("success_notifies_peer", func(t *testing.T) {
		dispatcher, cm := newTestDispatcher()
		_, peerConn := newOnlineClient(t, cm, "BBBBBBBBBB", "CharB@W1")

		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{
			removePairFn: func(_ context.Context, _, _ string) error { return nil },
		}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.RemovePair(ctx, "AAAAAAAAAA", &dto.RemovePairData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)

		frame := readPush(t, peerConn)
		require.Equal(t, "pair_removed", frame.Type)
		var push dto.PairRemovedData
		require.NoError(t, json.Unmarshal(frame.Data, &push))
		assert.Equal(t, "AAAAAAAAAA", push.OtherUid)
	})
}

func TestPairingServiceBlockUnblock(t *testing.T) {
	initServiceTest(t)
	ctx := context.Background()

	t.Run("block_self", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.Block(ctx, "AAAAAAAAAA", &dto.BlockData{OtherUid: "AAAAAAAAAA"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeCannotInteractWithSelf, code)
	})

	t.Run("block_already_blocked", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{
			blockFn: func(_ context.Context, _, _ string) error { return repository.ErrDuplicateKey },
		}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.Block(ctx, "AAAAAAAAAA", &dto.BlockData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeAlreadyBlocked, code)
	})

	t.Run("block_sweeps_pending_requests_both_directions", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		var deleted [][2]string
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{
			deleteFn: func(_ context.Context, senderUid, targetUid string) (int64, error) {
				deleted = append(deleted, [2]string{senderUid, targetUid})
				return 1, nil
			},
		}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.Block(ctx, "AAAAAAAAAA", &dto.BlockData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)
		require.Equal(t, [][2]string{
			{"AAAAAAAAAA", "BBBBBBBBBB"},
			{"BBBBBBBBBB", "AAAAAAAAAA"},
		}, deleted)
	})

	t.Run("unblock_not_blocked", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.Unblock(ctx, "AAAAAAAAAA", &dto.UnblockData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeNotBlocked, code)
	})

	t.Run("unblock_success", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		svc := NewPairingService(&fakeUserRepo{}, &fakePairRepo{}, &fakeRequestRepo{}, &fakeBlockRepo{
			unblockFn: func(_ context.Context, _, _ string) (int64, error) { return 1, nil },
		}, &fakePresenceRepo{}, dispatcher)

		code, err := svc.Unblock(ctx, "AAAAAAAAAA", &dto.UnblockData{OtherUid: "BBBBBBBBBB"})
		require.NoError(t, err)
		require.Equal(t, consts.CodeSuccess, code)
	})
}
