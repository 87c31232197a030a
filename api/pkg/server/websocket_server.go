package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/pubsub"
)

var sessionWebsocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// startSessionWebSocketServer registers the event stream endpoint. A
// client gets the session's backlog replayed first, then live events as
// they are published, so a kiosk reconnecting mid-shift catches up
// before streaming resumes.
func (apiServer *FloorlineAPIServer) startSessionWebSocketServer(
	_ context.Context,
	r *mux.Router,
	path string,
) {
	r.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		resourceKey := mux.Vars(r)["key"]
		if resourceKey == "" {
			http.Error(w, "no resource key supplied", http.StatusBadRequest)
			return
		}

		coordinator, ok := apiServer.Sessions.Get(resourceKey)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := sessionWebsocketUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("error upgrading websocket")
			return
		}
		defer conn.Close()

		// ping and subscription writes can race
		var wsMu sync.Mutex

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Server-initiated pings keep the connection alive through
		// proxies and firewalls.
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					wsMu.Lock()
					err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
					wsMu.Unlock()
					if err != nil {
						log.Debug().
							Err(err).
							Str("resource_key", resourceKey).
							Msg("session websocket ping failed, connection closing")
						return
					}
				}
			}
		}()

		writeMessage := func(payload []byte) error {
			wsMu.Lock()
			defer wsMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		// Subscribe before the replay so nothing published in between is
		// lost; a client may see an event twice across that seam, never a
		// gap.
		sub, err := apiServer.pubsub.Subscribe(ctx, pubsub.GetSessionEventsTopic(resourceKey), func(payload []byte) error {
			if writeErr := writeMessage(payload); writeErr != nil {
				log.Error().Err(writeErr).Msg("error writing to websocket")
			}
			return nil
		})
		if err != nil {
			log.Error().Err(err).Msg("error subscribing to session events")
			return
		}
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				log.Error().Msgf("failed to unsubscribe: %v", err)
			}
		}()

		for _, event := range coordinator.Backlog().Snapshot() {
			payload, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("error encoding backlog event")
				continue
			}
			if err := writeMessage(payload); err != nil {
				log.Debug().Err(err).Msg("client went away during backlog replay")
				return
			}
		}

		log.Trace().
			Str("resource_key", resourceKey).
			Int("backlog", coordinator.Backlog().Len()).
			Msg("session websocket connected")

		// block reading client messages; any error closes the connection
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				log.Trace().Msgf("client disconnected: %s", err.Error())
				break
			}
			if messageType == websocket.CloseMessage {
				log.Trace().Msgf("received close frame from client")
				break
			}
		}
	}).Methods(http.MethodGet)
}
