package device

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	velocityUsersPrefix   = "gk:dvu"
	velocityDevicesPrefix = "gk:ipd"
)

// Velocity maintains trailing-window distinct-membership sets in redis:
// the users seen on a device and the devices seen behind an IP. A nil
// *Velocity is valid and reports zero for both signals.
type Velocity struct {
	redis  redis.UniversalClient
	window time.Duration
}

// NewVelocity creates a Velocity over the given redis client.
func NewVelocity(client redis.UniversalClient, window time.Duration) *Velocity {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Velocity{
		redis:  client,
		window: window,
	}
}

// Touch records the sighting and returns the distinct-user count for the
// fingerprint and the distinct-device count behind the IP within the
// trailing window. TTL is refreshed on every touch, so the window trails
// the latest activity.
func (v *Velocity) Touch(ctx context.Context, fingerprint, userID, ip string) (usersOnDevice, devicesBehindIP int, err error) {
	if v == nil {
		return 0, 0, nil
	}

	if userID != "" && fingerprint != "" {
		key := velocityUsersPrefix + ":" + fingerprint
		pipe := v.redis.TxPipeline()
		pipe.SAdd(ctx, key, userID)
		pipe.Expire(ctx, key, v.window)
		card := pipe.SCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, 0, err
		}
		usersOnDevice = int(card.Val())
	}

	if ip != "" && fingerprint != "" {
		key := velocityDevicesPrefix + ":" + ip
		pipe := v.redis.TxPipeline()
		pipe.SAdd(ctx, key, fingerprint)
		pipe.Expire(ctx, key, v.window)
		card := pipe.SCard(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return usersOnDevice, 0, err
		}
		devicesBehindIP = int(card.Val())
	}

	return usersOnDevice, devicesBehindIP, nil
}
