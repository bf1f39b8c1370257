package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/booking-assistant/internal/config"
	"github.com/wolfman30/booking-assistant/internal/conversation"
	"github.com/wolfman30/booking-assistant/internal/scheduling"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const seedJSON = `{
  "tenants": [{
    "id": "t1",
    "name": "Glow Clinic",
    "buffer_minutes": 15,
    "max_session_minutes": 120,
    "business_hours": {"2": {"start": "09:00", "end": "12:00"}},
    "services": [{"id": "s1", "name": "Facial", "duration_minutes": 60, "active": true}],
    "exceptions": [{"date": "2026-02-17", "kind": "BLOCKED"}]
  }]
}`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logger, true))
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logger, true))
}

func TestBuildPostgresPoolEmptyURL(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), " ", nil)
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildSessionStore(t *testing.T) {
	assert.IsType(t, &conversation.MemorySessionStore{}, BuildSessionStore(nil, time.Minute, logging.New("error")))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()
	assert.IsType(t, &conversation.RedisSessionStore{}, BuildSessionStore(client, time.Minute, nil))
}

func TestLoadSeedAndApply(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)

	catalog := scheduling.NewMemoryCatalog(nil)
	seed.Apply(catalog)

	tenant, err := catalog.Tenant(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, 15, tenant.BufferMinutes)

	services, err := catalog.ActiveServices(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "t1", services[0].TenantID)

	rule, err := catalog.RuleFor(context.Background(), "t1", scheduling.Tuesday)
	require.NoError(t, err)
	require.NotNil(t, rule, "business hours become rules")
	assert.Equal(t, scheduling.NewClock(9, 0), rule.Window.Start)

	exc, err := catalog.ExceptionFor(context.Background(), "t1", scheduling.Date{Year: 2026, Month: time.February, Day: 17})
	require.NoError(t, err)
	require.NotNil(t, exc)
	assert.Equal(t, scheduling.ExceptionBlocked, exc.Kind)
}

func TestLoadSeedRejectsBadFixtures(t *testing.T) {
	tests := map[string]string{
		"no tenant id":   `{"tenants":[{"name":"x"}]}`,
		"zero duration":  `{"tenants":[{"id":"t1","services":[{"id":"s1","duration_minutes":0}]}]}`,
		"bad weekday":    `{"tenants":[{"id":"t1","rules":[{"weekday":7,"start":"09:00","end":"10:00"}]}]}`,
		"inverted rule":  `{"tenants":[{"id":"t1","rules":[{"weekday":1,"start":"10:00","end":"09:00"}]}]}`,
		"unknown kind":   `{"tenants":[{"id":"t1","exceptions":[{"date":"2026-02-10","kind":"CLOSED"}]}]}`,
		"malformed json": `{"tenants":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSeed(writeSeed(t, body))
			assert.Error(t, err)
		})
	}
}

func TestBuildDomainInMemory(t *testing.T) {
	seed, err := LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)

	cfg := &appconfig.Config{SessionTTL: 30 * time.Minute, ReminderLead: 24 * time.Hour, BookingHorizonDays: 7}
	domain, err := BuildDomain(cfg, DomainDeps{Registerer: prometheus.NewRegistry(), Seed: seed}, logging.New("error"))
	require.NoError(t, err)

	out, err := domain.Machine.HandleTurn(context.Background(), conversation.IncomingMessage{TenantID: "t1", ContactID: "c1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, conversation.StateWelcome, out.State)
	assert.Contains(t, out.Content, "Glow Clinic")

	slots, err := domain.Engine.AvailableSlots(context.Background(), "t1", scheduling.Date{Year: 2026, Month: time.February, Day: 10}, 60)
	require.NoError(t, err)
	// 60 minutes plus a 15 minute buffer steps 09:00, 10:15.
	require.Len(t, slots, 2)
	assert.Equal(t, scheduling.NewClock(10, 15), slots[1].Start)
}

func TestBuildDomainRequiresConfig(t *testing.T) {
	_, err := BuildDomain(nil, DomainDeps{}, nil)
	assert.Error(t, err)
}

func TestFlowConfigDefaults(t *testing.T) {
	def := conversation.DefaultFlowConfig()
	assert.Equal(t, def, FlowConfig(nil))
	assert.Equal(t, def, FlowConfig(&appconfig.Config{BookingHorizonDays: -1}))

	got := FlowConfig(&appconfig.Config{BookingHorizonDays: 21, MaxDateChoices: 5, MaxTimeChoices: 4})
	assert.Equal(t, conversation.FlowConfig{HorizonDays: 21, MaxDateChoices: 5, MaxTimeChoices: 4}, got)
}

func TestBuildConversationQueueMemory(t *testing.T) {
	queue, inProcess, err := BuildConversationQueue(context.Background(), &appconfig.Config{UseMemoryQueue: true}, nil)
	require.NoError(t, err)
	assert.True(t, inProcess)
	assert.IsType(t, &conversation.MemoryQueue{}, queue)
}

func TestBuildConversationQueueSQS(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		ConversationQueueURL: "http://localhost:4566/000000000000/turns",
	}
	queue, inProcess, err := BuildConversationQueue(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.False(t, inProcess)
	assert.IsType(t, &conversation.SQSQueue{}, queue)
}

func TestStartInMemory(t *testing.T) {
	cfg := &appconfig.Config{
		LogLevel:    "error",
		SessionTTL:  30 * time.Minute,
		DevSeedFile: writeSeed(t, seedJSON),
	}
	rt, err := Start(context.Background(), cfg, "booking-test", prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Nil(t, rt.Pool)
	assert.Nil(t, rt.Redis)
	assert.Equal(t, "log", rt.Transport)
	assert.Empty(t, rt.ReadinessChecks())

	tenant, err := rt.Domain.Catalog.Tenant(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tenant)
}

func TestStartWithRedisAddsReadinessCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{LogLevel: "error", RedisAddr: mr.Addr(), SessionTTL: time.Minute}
	rt, err := Start(context.Background(), cfg, "booking-test", prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	checks := rt.ReadinessChecks()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}

func TestStartRejectsBadSeed(t *testing.T) {
	cfg := &appconfig.Config{LogLevel: "error", DevSeedFile: writeSeed(t, `{"tenants":[{}]}`)}
	_, err := Start(context.Background(), cfg, "booking-test", prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestDevSeedFixtureLoads(t *testing.T) {
	seed, err := LoadSeed(filepath.Join("..", "..", "..", "testdata", "dev-seed.json"))
	require.NoError(t, err)
	assert.Len(t, seed.Tenants, 2)
}
