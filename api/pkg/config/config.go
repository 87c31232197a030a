package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type ServerConfig struct {
	Store        Store
	LocalStore   LocalStore
	PubSub       PubSub
	Coordination Coordination
	Facility     Facility
	WebServer    WebServer
}

func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

type Store struct {
	Host     string `envconfig:"POSTGRES_HOST" description:"The host to connect to the postgres server."`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432" description:"The port to connect to the postgres server."`
	Database string `envconfig:"POSTGRES_DATABASE" default:"floorline" description:"The database to connect to the postgres server."`
	Username string `envconfig:"POSTGRES_USER" description:"The username to connect to the postgres server."`
	Password string `envconfig:"POSTGRES_PASSWORD" description:"The password to connect to the postgres server."`
	SSL      bool   `envconfig:"POSTGRES_SSL" default:"false"`
	Schema   string `envconfig:"POSTGRES_SCHEMA"` // Defaults to public

	AutoMigrate     bool          `envconfig:"DATABASE_AUTO_MIGRATE" default:"true" description:"Should we automatically run the migrations?"`
	MaxConns        int           `envconfig:"DATABASE_MAX_CONNS" default:"50"`
	IdleConns       int           `envconfig:"DATABASE_IDLE_CONNS" default:"25"`
	MaxConnLifetime time.Duration `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DATABASE_MAX_CONN_IDLE_TIME" default:"1m"`
}

type LocalStore struct {
	Path      string        `envconfig:"LOCALSTORE_PATH" default:"floorline.db" description:"Path to the sqlite file holding device identity and timer state."`
	Retention time.Duration `envconfig:"LOCALSTORE_RETENTION" default:"168h" description:"How long stale local timer entries are kept before the reaper removes them."`
}

type PubSub struct {
	Provider string `envconfig:"PUBSUB_PROVIDER" default:"nats" description:"The pubsub provider to use (nats or inmemory)."`
	StoreDir string `envconfig:"NATS_STORE_DIR" default:"/var/lib/floorline/nats" description:"The directory to store nats data."`
	Server   struct {
		URL                       string `envconfig:"NATS_SERVER_URL" description:"External NATS server URL. When set the embedded server is not started."`
		Token                     string `envconfig:"NATS_SERVER_TOKEN" description:"The authentication token for the NATS server."`
		EmbeddedNatsServerEnabled bool   `envconfig:"NATS_SERVER_EMBEDDED_ENABLED" default:"true" description:"Whether to enable the embedded NATS server."`
		Host                      string `envconfig:"NATS_SERVER_HOST" default:"127.0.0.1" description:"The host to bind the NATS server to."`
		Port                      int    `envconfig:"NATS_SERVER_PORT" default:"4222" description:"The port to bind the NATS server to."`
		MaxPayload                int    `envconfig:"NATS_SERVER_MAX_PAYLOAD" default:"1048576" description:"The maximum payload size in bytes (default 1MB)."`
	}
}

type Coordination struct {
	HeartbeatInterval  time.Duration `envconfig:"LEASE_HEARTBEAT_INTERVAL" default:"30s" description:"How often a held lease is renewed."`
	StaleThreshold     time.Duration `envconfig:"LEASE_STALE_THRESHOLD" default:"120s" description:"A lease silent for longer than this is presumed abandoned."`
	GCInterval         time.Duration `envconfig:"LEASE_GC_INTERVAL" default:"10m" description:"How often stale lease rows are swept from the store."`
	ElapsedTick        time.Duration `envconfig:"TIMER_ELAPSED_TICK" default:"1s" description:"How often running sessions publish elapsed-time events."`
	MirrorPushAttempts uint          `envconfig:"TIMER_MIRROR_PUSH_ATTEMPTS" default:"3" description:"Retry attempts for the best-effort timer mirror push."`
	MirrorPushDelay    time.Duration `envconfig:"TIMER_MIRROR_PUSH_DELAY" default:"250ms" description:"Delay between timer mirror push attempts."`
	DeviceLabel        string        `envconfig:"DEVICE_LABEL" description:"Human readable label for this device. Generated and persisted on first run when empty."`
}

type Facility struct {
	ConfigPath       string `envconfig:"FACILITY_CONFIG" description:"Path to the facility YAML file. Env defaults below apply when unset."`
	Name             string `envconfig:"FACILITY_NAME" default:"default"`
	DayStart         string `envconfig:"FACILITY_DAY_START" default:"08:00" description:"Facility-local time the Day shift begins (HH:MM)."`
	NightStart       string `envconfig:"FACILITY_NIGHT_START" default:"20:00" description:"Facility-local time the Night shift begins (HH:MM)."`
	UTCOffsetMinutes int    `envconfig:"FACILITY_UTC_OFFSET_MINUTES" default:"0" description:"Fixed facility offset from UTC in minutes."`
}

type WebServer struct {
	URL  string `envconfig:"SERVER_URL" description:"The URL the agent API is listening on."`
	Host string `envconfig:"SERVER_HOST" default:"127.0.0.1" description:"The host to bind the agent API to."`
	Port int    `envconfig:"SERVER_PORT" default:"8844"`
}
