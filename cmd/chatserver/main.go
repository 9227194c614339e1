package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/unislot/slot-app/internal/classifier"
	"github.com/unislot/slot-app/internal/config"
	"github.com/unislot/slot-app/internal/ledger"
	"github.com/unislot/slot-app/internal/messaging"
	"github.com/unislot/slot-app/internal/metrics"
	"github.com/unislot/slot-app/internal/moderation"
	"github.com/unislot/slot-app/internal/protocol"
	"github.com/unislot/slot-app/internal/ratelimit"
	"github.com/unislot/slot-app/internal/room"
	"github.com/unislot/slot-app/internal/session"
	"github.com/unislot/slot-app/internal/ws"
)

func main() {
	cfg, err := config.LoadChatServer()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	serverConfig := ws.DefaultServerConfig()
	serverConfig.ListenAddr = cfg.ListenAddr
	serverConfig.MaxConnections = cfg.MaxConnections
	serverConfig.WriteTimeout = cfg.WriteTimeout

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "chatserver-" + cfg.ServerName
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	sessionStore, err := session.NewStore(cfg.RedisAddr, cfg.ServerName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(sessionStore.Client())

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	pingCancel()
	ledgerStore := ledger.NewStore(db)

	// --- Moderation ---
	var remote moderation.RemoteClassifier
	if cfg.ClassifierEndpoint != "" {
		remote = classifier.NewRemote(classifier.RemoteConfig{
			Endpoint: cfg.ClassifierEndpoint,
			Token:    cfg.ClassifierToken,
			Timeout:  cfg.ClassifierTimeout,
		})
	} else {
		log.Printf("no classifier endpoint configured, moderating with the local denylist only")
	}
	engine := moderation.NewEngine(remote, rand.NewSource(time.Now().UnixNano()))

	registry := room.NewRegistry()

	log.Printf("slot-app chat server starting")
	log.Printf("  listen_addr:     %s", cfg.ListenAddr)
	log.Printf("  server_name:     %s", cfg.ServerName)
	log.Printf("  max_connections: %d", cfg.MaxConnections)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  classifier:      %s", classifierLabel(cfg.ClassifierEndpoint))

	// Declare server early so closures can capture it.
	var server *ws.Server

	broadcaster := room.NewBroadcaster(engine, registry, ledgerStore,
		senderFunc(func(sessionID string, data []byte) error {
			return server.Send(sessionID, data)
		}),
		natsClient, cfg.ServerName)

	// subscribeRoom wires a room created on this instance to the fan-out bus so
	// messages accepted elsewhere reach local members.
	subscribeRoom := func(slotID string) {
		err := natsClient.SubscribeRoom(slotID, func(data []byte) {
			var event room.FanoutEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("[room-sub] unmarshal fanout slot=%s: %v", slotID, err)
				return
			}
			broadcaster.DeliverRemote(event)
		})
		if err != nil {
			log.Printf("[room-sub] subscribe slot=%s failed: %v", slotID, err)
		}
	}

	dispatcher := ws.NewMessageDispatcher()

	// Application-level pings refresh the Redis session TTL so long-lived idle
	// connections do not lose their session state.
	dispatcher.SetOnPing(func(connID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := sessionStore.Touch(ctx, connID); err != nil {
			log.Printf("ping touch session=%s: %v", connID, err)
		}
	})

	// -----------------------------------------------------------------------
	// identify — bind the user identity to the session
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeIdentify, func(conn *ws.Connection, msg interface{}) {
		identifyMsg, ok := msg.(protocol.IdentifyMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := sessionStore.SetIdentity(ctx, conn.ID, identifyMsg.UserID, identifyMsg.Username); err != nil {
			log.Printf("identify session=%s: %v", conn.ID, err)
		}
		log.Printf("identify session=%s user=%s", conn.ID, identifyMsg.UserID)
	})

	// -----------------------------------------------------------------------
	// join_slot — enter a slot's chat room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoinSlot, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinSlotMsg)
		if !ok || joinMsg.SlotID == "" {
			return
		}

		_, created := registry.Join(conn.ID, joinMsg.SlotID)
		if created {
			subscribeRoom(joinMsg.SlotID)
		}
		metrics.ActiveRooms.Set(float64(registry.RoomCount()))

		resp, _ := protocol.NewServerMessage(protocol.TypeSlotJoined, protocol.SlotJoinedMsg{
			SlotID:  joinMsg.SlotID,
			Members: len(registry.Members(joinMsg.SlotID)),
		})
		if err := conn.WriteMessage(resp); err != nil {
			log.Printf("join_slot reply session=%s: %v", conn.ID, err)
		}
		log.Printf("join_slot session=%s slot=%s", conn.ID, joinMsg.SlotID)
	})

	// -----------------------------------------------------------------------
	// leave_slot — leave a slot's chat room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeLeaveSlot, func(conn *ws.Connection, msg interface{}) {
		leaveMsg, ok := msg.(protocol.LeaveSlotMsg)
		if !ok || leaveMsg.SlotID == "" {
			return
		}

		_, emptied := registry.Leave(conn.ID, leaveMsg.SlotID)
		if emptied {
			_ = natsClient.UnsubscribeRoom(leaveMsg.SlotID)
			broadcaster.ForgetRoom(leaveMsg.SlotID)
		}
		metrics.ActiveRooms.Set(float64(registry.RoomCount()))

		resp, _ := protocol.NewServerMessage(protocol.TypeSlotLeft, protocol.SlotLeftMsg{
			SlotID: leaveMsg.SlotID,
		})
		if err := conn.WriteMessage(resp); err != nil {
			log.Printf("leave_slot reply session=%s: %v", conn.ID, err)
		}
		log.Printf("leave_slot session=%s slot=%s", conn.ID, leaveMsg.SlotID)
	})

	// -----------------------------------------------------------------------
	// send_message — moderate and deliver a chat message
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}
		ctx := context.Background()

		// Prefer the identity bound to the session over the client-supplied
		// fields, so a client cannot impersonate another user after identify.
		senderID, senderName := sendMsg.UserID, sendMsg.Username
		if sess, err := sessionStore.Get(ctx, conn.ID); err == nil && sess != nil && sess.UserID != "" {
			senderID, senderName = sess.UserID, sess.Username
		}

		allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleMessage)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
			resp, _ := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
				RetryAfter: limiter.RetryAfter(ctx, conn.ID, ratelimit.RuleMessage),
			})
			if err := conn.WriteMessage(resp); err != nil {
				log.Printf("rate_limited reply session=%s: %v", conn.ID, err)
			}
			return
		}

		if err := broadcaster.Submit(ctx, conn.ID, sendMsg.SlotID, senderID, senderName, sendMsg.Body); err != nil {
			log.Printf("send_message session=%s slot=%s: %v", conn.ID, sendMsg.SlotID, err)
		}
	})

	server = ws.NewServer(serverConfig, sessionStore, dispatcher.Dispatch)

	// Disconnect cleanup: drop the session from every room and release
	// fan-out subscriptions for rooms that became empty.
	server.SetOnDisconnect(func(connID string) {
		for _, slotID := range registry.DropSession(connID) {
			_ = natsClient.UnsubscribeRoom(slotID)
			broadcaster.ForgetRoom(slotID)
		}
		metrics.ActiveRooms.Set(float64(registry.RoomCount()))
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// senderFunc adapts a closure to the room.Sender interface so the broadcaster
// can be constructed before the server variable is assigned.
type senderFunc func(sessionID string, data []byte) error

func (f senderFunc) Send(sessionID string, data []byte) error {
	return f(sessionID, data)
}

func classifierLabel(endpoint string) string {
	if endpoint == "" {
		return "fallback only"
	}
	return endpoint
}
