package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// approveScript flips status pending->approved atomically.
// Returns 1 when transitioned, 0 when already approved, -1 when absent.
var approveScript = redis.NewScript(`local s = redis.call("HGET", KEYS[1], "status")
if not s then
  return -1
end
if s == ARGV[1] then
  redis.call("HSET", KEYS[1], "status", ARGV[2])
  return 1
end
return 0`)

// Redis stores orders as hashes so several API instances share one ledger.
type Redis struct {
	Client *redis.Client
	Prefix string
	// TTL bounds how long records are kept. Zero keeps them forever.
	TTL time.Duration
	Now func() time.Time
}

func (r Redis) key(paymentID string) string {
	prefix := r.Prefix
	if prefix == "" {
		prefix = "ebook:"
	}
	return prefix + "order:" + strings.TrimSpace(paymentID)
}

func (r Redis) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Redis) Put(ctx context.Context, paymentID, email, idempotencyKey string) error {
	if r.Client == nil {
		return errors.New("ledger: redis client not configured")
	}
	if strings.TrimSpace(paymentID) == "" {
		return errEmptyID
	}
	key := r.key(paymentID)
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"payment_id", strings.TrimSpace(paymentID),
		"email", email,
		"status", string(StatusPending),
		"created_at", r.now().UTC().Format(time.RFC3339Nano),
		"idempotency_key", idempotencyKey,
	)
	if r.TTL > 0 {
		pipe.Expire(ctx, key, r.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger: put %s: %w", paymentID, err)
	}
	return nil
}

func (r Redis) Get(ctx context.Context, paymentID string) (Order, error) {
	if r.Client == nil {
		return Order{}, errors.New("ledger: redis client not configured")
	}
	fields, err := r.Client.HGetAll(ctx, r.key(paymentID)).Result()
	if err != nil {
		return Order{}, fmt.Errorf("ledger: get %s: %w", paymentID, err)
	}
	if len(fields) == 0 {
		return Order{}, ErrNotFound
	}
	order := Order{
		PaymentID:      fields["payment_id"],
		Email:          fields["email"],
		Status:         Status(fields["status"]),
		IdempotencyKey: fields["idempotency_key"],
	}
	if ts := fields["created_at"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			order.CreatedAt = parsed
		}
	}
	return order, nil
}

func (r Redis) MarkApproved(ctx context.Context, paymentID string) (bool, error) {
	if r.Client == nil {
		return false, errors.New("ledger: redis client not configured")
	}
	res, err := approveScript.Run(ctx, r.Client, []string{r.key(paymentID)}, string(StatusPending), string(StatusApproved)).Int64()
	if err != nil {
		return false, fmt.Errorf("ledger: mark approved %s: %w", paymentID, err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, ErrNotFound
	default:
		return false, nil
	}
}
