package service

import (
	"time"

	"relgraph_backend/internal/config"
)

const day = 24 * time.Hour

// Policy 关系申请的业务参数，Now 可替换以便测试
type Policy struct {
	PendingQuota  int
	Cooldown      time.Duration
	RequestTTL    time.Duration
	RejectExpired bool
	Now           func() time.Time
}

func DefaultPolicy() Policy {
	return Policy{
		PendingQuota: 100,
		Cooldown:     30 * day,
		RequestTTL:   90 * day,
	}
}

func PolicyFromConfig(cfg config.RelationshipConfig) Policy {
	return Policy{
		PendingQuota:  cfg.PendingQuota,
		Cooldown:      time.Duration(cfg.CooldownDays) * day,
		RequestTTL:    time.Duration(cfg.ExpiryDays) * day,
		RejectExpired: cfg.RejectExpiredRequests,
	}
}

// clock 统一取 UTC 毫秒精度，和数据库 datetime(3) 对齐，保证游标往返一致
func (p Policy) clock() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Truncate(time.Millisecond)
}
