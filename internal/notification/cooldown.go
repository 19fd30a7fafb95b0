package notification

import (
	"sync"
	"time"

	"github.com/nao1215/notifyhub/pkg/api"
)

// DefaultCooldown は同じセッション、同じ種類の通知を抑制する期間。
const DefaultCooldown = 30 * time.Second

type cooldownKey struct {
	sessionID string
	category  string
}

// Cooldown はセッションと通知種類ごとに直近の通知時刻を記録し、
// 短時間に連続する通知を抑制する。permission_prompt は抑制しない。
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[cooldownKey]time.Time
	now    func() time.Time
}

// NewCooldown は指定期間で抑制するCooldownを生成する。
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[cooldownKey]time.Time),
		now:    time.Now,
	}
}

// Allow は通知を生成してよいかを返す。true を返した場合は時刻を記録する。
func (c *Cooldown) Allow(sessionID, category string) bool {
	_, ok := c.Reserve(sessionID, category)
	return ok
}

// Reserve は通知を生成してよいかを判定し、よければ時刻を記録する。
// 通知の保存が確定しなかった場合は、返されたreleaseで記録を取り消す。
// 抑制対象外の種類ではreleaseは何もしない。
func (c *Cooldown) Reserve(sessionID, category string) (release func(), ok bool) {
	if category == api.CategoryPermissionPrompt || c.window <= 0 {
		return func() {}, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, t := range c.last {
		if now.Sub(t) >= c.window {
			delete(c.last, k)
		}
	}

	key := cooldownKey{sessionID: sessionID, category: category}
	if _, ok := c.last[key]; ok {
		return nil, false
	}
	c.last[key] = now
	return func() { c.release(key, now) }, true
}

// release は記録がatのままであれば取り消す。後から記録された時刻は残す。
func (c *Cooldown) release(key cooldownKey, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.last[key]; ok && t.Equal(at) {
		delete(c.last, key)
	}
}
