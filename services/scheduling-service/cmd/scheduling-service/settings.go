package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/booking"
)

type settings struct {
	Service        string
	Port           string
	GrpcPort       string
	DatabaseURL    string
	DBMaxConns     int
	KafkaBrokers   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RateLimit      int
	RateLimitKey   string
	CORSOrigins    []string
	BodyLimit      int64
	RequestTimeout time.Duration

	ReminderOffsets []time.Duration
	SlotStep        time.Duration
	ResponseWindow  time.Duration
	SweepInterval   time.Duration
	OutboxPoll      time.Duration
	OutboxRetain    time.Duration

	StripeSecret    string
	StripeTolerance time.Duration
}

// loadSettings reads the environment. Rejected reminder offsets are logged, not fatal.
func loadSettings(logger *slog.Logger) (settings, error) {
	var (
		s   settings
		err error
	)
	s.Service = config.String("SERVICE_NAME", "scheduling-service")
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	if s.GrpcPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return s, err
	}
	s.DatabaseURL = strings.TrimSpace(config.String("DATABASE_URL", ""))
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.RedisAddr = strings.TrimSpace(config.String("REDIS_ADDR", ""))
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	if s.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return s, err
	}
	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	s.RateLimitKey = config.String("RATE_LIMIT_PREFIX", "rl:scheduling")
	s.CORSOrigins = httpx.SplitList(config.String("CORS_ALLOWED_ORIGINS", ""))
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return s, err
	}
	s.BodyLimit = int64(bodyLimit)
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return s, err
	}

	offsets, rejected := config.Offsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), booking.DefaultReminderOffsets)
	for _, r := range rejected {
		logger.Warn("invalid reminder offset", "value", r)
	}
	s.ReminderOffsets = offsets
	step, err := config.Int("SLOT_STEP_MINUTES", 15)
	if err != nil {
		return s, err
	}
	if step <= 0 {
		return s, fmt.Errorf("SLOT_STEP_MINUTES must be positive (got %d)", step)
	}
	s.SlotStep = time.Duration(step) * time.Minute
	if s.ResponseWindow, err = config.Duration("WAITLIST_RESPONSE_WINDOW", 24*time.Hour); err != nil {
		return s, err
	}
	if s.SweepInterval, err = config.Duration("WAITLIST_SWEEP_INTERVAL", 0); err != nil {
		return s, err
	}
	if s.OutboxPoll, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return s, err
	}
	if s.OutboxRetain, err = config.Duration("OUTBOX_RETAIN", 7*24*time.Hour); err != nil {
		return s, err
	}

	s.StripeSecret = config.String("STRIPE_WEBHOOK_SECRET", "")
	if s.StripeTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return s, err
	}
	return s, nil
}
