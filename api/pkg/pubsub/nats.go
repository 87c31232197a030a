package pubsub

import (
	"fmt"
	"time"

	"context"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
)

type Nats struct {
	conn           *nats.Conn
	embeddedServer *server.Server
}

var _ PubSub = &Nats{}

// NewNats connects to the configured NATS server, starting an embedded
// one first when enabled. The embedded server doubles as the change
// feed for single-site deployments where no external broker exists.
func NewNats(cfg *config.PubSub) (*Nats, error) {
	var embedded *server.Server
	url := cfg.Server.URL

	if url == "" && cfg.Server.EmbeddedNatsServerEnabled {
		opts := &server.Options{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			Authorization: cfg.Server.Token,
			MaxPayload:    int32(cfg.Server.MaxPayload),
			NoSigs:        true,
			StoreDir:      cfg.StoreDir,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedded nats server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			return nil, fmt.Errorf("embedded nats server didn't become ready")
		}

		embedded = ns
		url = ns.ClientURL()

		log.Info().Str("url", url).Msg("embedded nats server started")
	}

	var connectOpts []nats.Option
	if cfg.Server.Token != "" {
		connectOpts = append(connectOpts, nats.Token(cfg.Server.Token))
	}

	nc, err := nats.Connect(url, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	return &Nats{
		conn:           nc,
		embeddedServer: embedded,
	}, nil
}

// NewInMemoryNats starts a throwaway embedded server on a random port.
// Used by tests and by the inmemory provider.
func NewInMemoryNats() (*Nats, error) {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("failed to start in-memory nats server")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Nats{
		conn:           nc,
		embeddedServer: ns,
	}, nil
}

func (n *Nats) Subscribe(_ context.Context, topic string, handler func(payload []byte) error) (Subscription, error) {
	sub, err := n.conn.Subscribe(topic, func(msg *nats.Msg) {
		err := handler(msg.Data)
		if err != nil {
			log.Err(err).Str("topic", topic).Msg("error handling message")
		}
	})
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (n *Nats) Publish(_ context.Context, topic string, payload []byte) error {
	return n.conn.Publish(topic, payload)
}

func (n *Nats) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	if n.embeddedServer != nil {
		n.embeddedServer.Shutdown()
	}
	return nil
}
