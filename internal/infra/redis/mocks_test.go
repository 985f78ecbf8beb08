package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// fakeRedis is an in-memory RedisClient good enough for the cache, limiter
// and notifier. Expirations are tracked but only checked on Get/Incr.
type fakeRedis struct {
	mu      sync.Mutex
	store   map[string]string
	expiry  map[string]time.Time
	pubs    []fakePub
	nowFunc func() time.Time
}

type fakePub struct {
	Channel string
	Message string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		store:   make(map[string]string),
		expiry:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

func (f *fakeRedis) expired(key string) bool {
	exp, ok := f.expiry[key]
	return ok && f.nowFunc().After(exp)
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = asString(value)
	if expiration > 0 {
		f.expiry[key] = f.nowFunc().Add(expiration)
	} else {
		delete(f.expiry, key)
	}
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[key]; ok && !f.expired(key) {
		return false, nil
	}
	f.store[key] = asString(value)
	if expiration > 0 {
		f.expiry[key] = f.nowFunc().Add(expiration)
	}
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[key]
	if !ok || f.expired(key) {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired(key) {
		delete(f.store, key)
		delete(f.expiry, key)
	}
	n := int64(0)
	if v, ok := f.store[key]; ok {
		for _, c := range v {
			n = n*10 + int64(c-'0')
		}
	}
	n++
	f.store[key] = itoa(n)
	return n, nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiry[key] = f.nowFunc().Add(expiration)
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.store, k)
		delete(f.expiry, k)
	}
	return nil
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, fakePub{Channel: channel, Message: asString(message)})
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return ""
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
