package svc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PairServer/consts"
	"PairServer/model"
	"PairServer/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	existsByUidFn func(context.Context, string) (bool, error)
}

func (f *fakeUserRepo) GetByUid(_ context.Context, uid string) (*model.UserInfo, error) {
	return &model.UserInfo{Uid: uid}, nil
}

func (f *fakeUserRepo) ExistsByUid(ctx context.Context, uid string) (bool, error) {
	if f.existsByUidFn == nil {
		return true, nil
	}
	return f.existsByUidFn(ctx, uid)
}

func (f *fakeUserRepo) BatchGetByUids(_ context.Context, uids []string) ([]*model.UserInfo, error) {
	users := make([]*model.UserInfo, 0, len(uids))
	for _, uid := range uids {
		users = append(users, &model.UserInfo{Uid: uid})
	}
	return users, nil
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.UserInfo) (*model.UserInfo, error) {
	return user, nil
}

func (f *fakeUserRepo) UpdateAlias(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeUserRepo) GetTier(_ context.Context, _ string) (int8, error) {
	return model.TierNormal, nil
}

func signToken(t *testing.T, uid, charIdent string) string {
	t.Helper()
	token, err := util.SignClaims(uid, charIdent, time.Minute)
	require.NoError(t, err)
	return token
}

func TestSessionServiceAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("missing_token", func(t *testing.T) {
		s := NewSessionService(&fakeUserRepo{})
		sess, err := s.Authenticate(ctx, "   ", "1.2.3.4")
		require.ErrorIs(t, err, ErrTokenRequired)
		assert.Nil(t, sess)
	})

	t.Run("garbage_token", func(t *testing.T) {
		s := NewSessionService(&fakeUserRepo{})
		sess, err := s.Authenticate(ctx, "not-a-jwt", "1.2.3.4")
		require.ErrorIs(t, err, ErrTokenInvalid)
		assert.Nil(t, sess)
	})

	t.Run("expired_token", func(t *testing.T) {
		token, err := util.SignClaims("AAAAAAAAAA", "CharA@W1", -time.Minute)
		require.NoError(t, err)

		s := NewSessionService(&fakeUserRepo{})
		_, err = s.Authenticate(ctx, token, "1.2.3.4")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("unknown_identity", func(t *testing.T) {
		s := NewSessionService(&fakeUserRepo{
			existsByUidFn: func(_ context.Context, _ string) (bool, error) {
				return false, nil
			},
		})
		_, err := s.Authenticate(ctx, signToken(t, "AAAAAAAAAA", "CharA@W1"), "1.2.3.4")
		require.ErrorIs(t, err, ErrIdentityNotFound)
	})

	t.Run("repo_failure_bubbles_up", func(t *testing.T) {
		repoErr := errors.New("mysql down")
		s := NewSessionService(&fakeUserRepo{
			existsByUidFn: func(_ context.Context, _ string) (bool, error) {
				return false, repoErr
			},
		})
		_, err := s.Authenticate(ctx, signToken(t, "AAAAAAAAAA", "CharA@W1"), "1.2.3.4")
		require.ErrorIs(t, err, repoErr)
	})

	t.Run("success_fills_session", func(t *testing.T) {
		s := NewSessionService(&fakeUserRepo{})
		sess, err := s.Authenticate(ctx, signToken(t, "AAAAAAAAAA", "CharA@W1"), " 1.2.3.4 ")
		require.NoError(t, err)
		assert.Equal(t, "AAAAAAAAAA", sess.Uid)
		assert.Equal(t, "CharA@W1", sess.CharIdent)
		assert.Equal(t, "1.2.3.4", sess.ClientIP)
		assert.NotEmpty(t, sess.ConnID)

		// 每次握手的 ConnID 必须不同（陈旧断开靠它区分新旧连接）
		again, err := s.Authenticate(ctx, signToken(t, "AAAAAAAAAA", "CharA@W1"), "1.2.3.4")
		require.NoError(t, err)
		assert.NotEqual(t, sess.ConnID, again.ConnID)
	})
}

func TestParseEnvelope(t *testing.T) {
	t.Run("valid_frame", func(t *testing.T) {
		envelope, err := ParseEnvelope([]byte(`{"type":"heartbeat","seq":7,"data":{"x":1}}`))
		require.NoError(t, err)
		assert.Equal(t, "heartbeat", envelope.Type)
		assert.Equal(t, uint64(7), envelope.Seq)
		assert.JSONEq(t, `{"x":1}`, string(envelope.Data))
	})

	t.Run("type_trimmed", func(t *testing.T) {
		envelope, err := ParseEnvelope([]byte(`{"type":"  heartbeat "}`))
		require.NoError(t, err)
		assert.Equal(t, "heartbeat", envelope.Type)
	})

	t.Run("missing_type", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"seq":1}`))
		require.Error(t, err)
	})

	t.Run("malformed_json", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"type":`))
		require.Error(t, err)
	})
}

func TestMarshalFrame(t *testing.T) {
	t.Run("push_frame_omits_seq", func(t *testing.T) {
		raw, err := MarshalFrame("user_online", 0, map[string]string{"uid": "AAAAAAAAAA"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"user_online","data":{"uid":"AAAAAAAAAA"}}`, string(raw))
	})

	t.Run("nil_data_omitted", func(t *testing.T) {
		raw, err := MarshalFrame("server_message", 3, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"server_message","seq":3}`, string(raw))
	})
}

func TestMarshalAck(t *testing.T) {
	t.Run("success_ack", func(t *testing.T) {
		raw, err := MarshalAck("heartbeat", 42, consts.CodeSuccess, map[string]bool{"alive": true})
		require.NoError(t, err)

		var frame struct {
			Type string  `json:"type"`
			Seq  uint64  `json:"seq"`
			Data AckData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "heartbeat_ack", frame.Type)
		assert.Equal(t, uint64(42), frame.Seq)
		assert.Equal(t, consts.CodeSuccess, frame.Data.Code)
		assert.Equal(t, consts.GetMessage(consts.CodeSuccess), frame.Data.Message)
		require.NotNil(t, frame.Data.Payload)
	})

	t.Run("error_ack_without_payload", func(t *testing.T) {
		raw, err := MarshalAck("pair_send_request", 1, consts.CodeRequestExists, nil)
		require.NoError(t, err)

		var frame struct {
			Type string  `json:"type"`
			Data AckData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		assert.Equal(t, "pair_send_request_ack", frame.Type)
		assert.Equal(t, consts.CodeRequestExists, frame.Data.Code)
		assert.Equal(t, consts.GetMessage(consts.CodeRequestExists), frame.Data.Message)
		assert.Nil(t, frame.Data.Payload)
	})
}
