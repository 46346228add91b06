// Package reputation 封装外部信誉服务的裁定查询。
// hub 只消费"能否使用雷达 / 雷达聊天"的布尔裁定，不参与计算。
// 外部服务抖动时按本地档案 tier 降级，熔断器防止雪崩。
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PairServer/apps/hub/internal/repository"
	rediskey "PairServer/consts/redisKey"
	"PairServer/model"
	"PairServer/pkg/logger"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"
)

// Verdict 一次信誉裁定。
type Verdict struct {
	Tier       int8 `json:"tier"`
	AllowRadar bool `json:"allowRadar"`
	AllowChat  bool `json:"allowChat"`

	fromFallback bool
}

// FromFallback 该裁定是否来自本地降级（外部服务不可达时）。
func (v Verdict) FromFallback() bool { return v.fromFallback }

// Client 信誉裁定客户端。
// 查询链路：进程内 LRU（短 TTL）→ 外部 HTTP（熔断保护）→ 档案 tier 降级。
type Client struct {
	endpoint string
	httpCli  *http.Client
	breaker  *gobreaker.CircuitBreaker
	cache    *lru.LRU[string, Verdict]
	userRepo repository.IUserRepository
}

// NewClient 创建信誉客户端。
// endpoint 为空表示未接入外部服务，所有裁定直接走档案 tier。
func NewClient(endpoint string, timeout time.Duration, userRepo repository.IUserRepository) *Client {
	return &Client{
		endpoint: endpoint,
		httpCli:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "reputation",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		cache:    lru.NewLRU[string, Verdict](4096, nil, rediskey.ReputationTTL),
		userRepo: userRepo,
	}
}

// Check 查询某用户的信誉裁定。
func (c *Client) Check(ctx context.Context, uid string) (Verdict, error) {
	if v, ok := c.cache.Get(uid); ok {
		return v, nil
	}

	if c.endpoint != "" {
		v, err := c.fetch(ctx, uid)
		if err == nil {
			c.cache.Add(uid, v)
			return v, nil
		}
		logger.Warn(ctx, "信誉服务查询失败，降级为档案 tier",
			logger.String("uid", uid),
			logger.ErrorField("error", err),
		)
	}

	// 降级：以档案 tier 推导裁定。降级结果同样进缓存，
	// 避免外部服务持续故障时每个雷达操作都打一次 DB
	v, err := c.fallback(ctx, uid)
	if err != nil {
		return Verdict{}, err
	}
	c.cache.Add(uid, v)
	return v, nil
}

// Invalidate 清除某用户的裁定缓存（收到举报后调用，让下次查询拿到新裁定）。
func (c *Client) Invalidate(uid string) {
	c.cache.Remove(uid)
}

// fetch 经熔断器调用外部信誉服务。
func (c *Client) fetch(ctx context.Context, uid string) (Verdict, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/v1/verdict/%s", c.endpoint, uid), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpCli.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("reputation service returned %d", resp.StatusCode)
		}

		var v Verdict
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return Verdict{}, err
	}
	return result.(Verdict), nil
}

// fallback 以档案 tier 推导裁定。
func (c *Client) fallback(ctx context.Context, uid string) (Verdict, error) {
	tier, err := c.userRepo.GetTier(ctx, uid)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Tier:         tier,
		AllowRadar:   tier < model.TierRestricted,
		AllowChat:    tier < model.TierRestricted,
		fromFallback: true,
	}, nil
}
