package lock

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/valkeylock"
)

// Valkey is a Locker backed by valkeylock. Locks are held with a
// self-extending lease and released when unlock is called or the process
// dies.
type Valkey struct {
	locker valkeylock.Locker
}

// NewValkey connects to the Valkey server named by url, e.g.
// redis://:password@localhost:6379/0. prefix namespaces the lock keys.
func NewValkey(url, prefix string) (*Valkey, error) {
	opt, err := valkey.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid valkey url: %w", err)
	}

	locker, err := valkeylock.NewLocker(valkeylock.LockerOption{
		ClientOption:   opt,
		KeyPrefix:      prefix,
		KeyMajority:    1,
		NoLoopTracking: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey locker: %w", err)
	}
	return &Valkey{locker: locker}, nil
}

// Lock implements Locker.
func (v *Valkey) Lock(ctx context.Context, key string) (func(), error) {
	_, cancel, err := v.locker.WithContext(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	return cancel, nil
}

// Close releases every held lock and closes the client.
func (v *Valkey) Close() {
	v.locker.Close()
}
