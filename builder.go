package gatekit

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/afyadigital/gatekit/device"
	"github.com/afyadigital/gatekit/events"
	"github.com/afyadigital/gatekit/jwt"
	"github.com/afyadigital/gatekit/otp"
	"github.com/afyadigital/gatekit/ratelimit"
	"github.com/afyadigital/gatekit/session"
	"github.com/afyadigital/gatekit/store/postgres"
)

// Stores bundles the five persistence contracts the engine needs. Use
// WithDB to have them backed by one bun database, or WithStores to supply
// custom implementations.
type Stores struct {
	RateLimit ratelimit.Store
	OTP       otp.Store
	Device    device.Store
	Session   session.Store
	Events    events.Store
}

func (s Stores) complete() bool {
	return s.RateLimit != nil && s.OTP != nil && s.Device != nil &&
		s.Session != nil && s.Events != nil
}

// Builder assembles an Engine. One builder builds one engine.
type Builder struct {
	config Config
	db     *bun.DB
	redis  redis.UniversalClient
	stores Stores
	sink   AuditSink

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDB backs all stores with the given bun database.
func (b *Builder) WithDB(db *bun.DB) *Builder {
	b.db = db
	return b
}

// WithRedis supplies the client used for device velocity signals. Optional;
// without it velocity factors score zero.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores supplies explicit store implementations, overriding WithDB.
// All five must be set.
func (b *Builder) WithStores(s Stores) *Builder {
	b.stores = s
	return b
}

// WithAuditSink sets the destination for audit events. Audit must also be
// enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the admission latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns
// the engine. The builder cannot be reused.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stores := b.stores
	if !stores.complete() {
		if b.db == nil {
			return nil, errors.New("database or complete store set required")
		}
		pg := postgres.New(b.db)
		stores = Stores{
			RateLimit: pg.RateLimit(),
			OTP:       pg.OTP(),
			Device:    pg.Device(),
			Session:   pg.Session(),
			Events:    pg.Events(),
		}
	}

	recorder := events.NewRecorder(stores.Events)

	engine := &Engine{
		config:     cfg,
		ledger:     ratelimit.NewLedger(stores.RateLimit, cfg.RateLimit.Endpoints, cfg.RateLimit.Default),
		otpManager: otp.NewManager(stores.OTP, cfg.OTP.Purposes, cfg.OTP.Default),
		recorder:   recorder,
		sessions:   stores.Session,
		audit:      newAuditDispatcher(cfg.Audit, b.sink),
		metrics:    NewMetrics(cfg.Metrics),
	}

	if cfg.Device.Enabled {
		velocity := device.NewVelocity(b.redis, cfg.Device.VelocityWindow)
		engine.tracker = device.NewTracker(stores.Device, velocity, recorder, device.ScoringConfig{
			BlockThreshold:     cfg.Device.BlockThreshold,
			VelocityWindow:     cfg.Device.VelocityWindow,
			MaxUsersPerDevice:  cfg.Device.MaxUsersPerDevice,
			MaxDevicesPerIP:    cfg.Device.MaxDevicesPerIP,
			UserVelocityWeight: cfg.Device.UserVelocityWeight,
			IPVelocityWeight:   cfg.Device.IPVelocityWeight,
			UADriftWeight:      cfg.Device.UADriftWeight,
			SevereEventWeight:  cfg.Device.SevereEventWeight,
			SevereEventCap:     cfg.Device.SevereEventCap,
			EventLookback:      cfg.Device.EventLookback,
		})
	}

	engine.failClosed = make(map[string]struct{}, len(cfg.Admission.FailClosed))
	for _, endpoint := range cfg.Admission.FailClosed {
		engine.failClosed[endpoint] = struct{}{}
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
