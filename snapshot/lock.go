/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	uuid "github.com/satori/go.uuid"

	"github.com/CovenantSQL/trustindex/conf"
	"github.com/CovenantSQL/trustindex/utils/log"
)

// Locker guarantees at most one snapshot run at a time.
//
// TryLock never blocks on a held lock: ok is false and the caller skips its run.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu sync.Mutex
}

// NewLocalLocker returns a process local locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	if !l.mu.TryLock() {
		return
	}
	return l.mu.Unlock, true, nil
}

// release deletes the lock key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes runs across a deployment with a redis key.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker connects to redis and returns a locker on key.
func NewRedisLocker(ctx context.Context, cfg *conf.RedisConfig, key string, ttl time.Duration) (l *RedisLocker, err error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  1,
		DialTimeout: 5 * time.Second,
	})
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		err = errors.Wrapf(err, "connect redis %s", cfg.Addr)
		return
	}
	l = &RedisLocker{
		client: client,
		key:    key,
		ttl:    ttl,
	}
	return
}

// TryLock implements Locker with SET NX PX, the key expires after the lock ttl.
func (l *RedisLocker) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.Must(uuid.NewV4()).String()
	if ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result(); err != nil || !ok {
		if err != nil {
			err = errors.Wrapf(err, "acquire lock %s", l.key)
		}
		return
	}
	release = func() {
		// the run context may already be done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			log.WithField("key", l.key).WithError(err).Warning("release snapshot lock failed")
		}
	}
	return
}

// Close closes the redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
