package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSessionTTL is the inactivity window after which a session is gone.
const DefaultSessionTTL = 30 * time.Minute

// RedisSessionStore keeps sessions as JSON values whose TTL is refreshed on
// every Put, so an idle session simply disappears.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisSessionStore creates a store; a non-positive ttl uses DefaultSessionTTL.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("booking.internal.conversation.sessions"),
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, tenantID, contactID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	data, err := s.redis.Get(ctx, sessionKey(tenantID, contactID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", session.TenantID),
		attribute.String("booking.state", string(session.State)),
	)

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.TenantID, session.ContactID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Expire(ctx context.Context, tenantID, contactID string) error {
	if err := s.redis.Del(ctx, sessionKey(tenantID, contactID)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to expire session: %w", err)
	}
	return nil
}
