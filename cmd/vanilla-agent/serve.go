package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/becomevocal/vanilla-agent-go/pkg/actions"
	"github.com/becomevocal/vanilla-agent-go/pkg/chat"
)

func newServeCommand() *cobra.Command {
	var addr, upstream string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Relay the upstream event stream to websocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if upstream != "" {
				cfg.UpstreamURL = upstream
			}
			if cfg.UpstreamURL == "" {
				return errors.New("serve: upstream_url is required (flag or config)")
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "upstream streaming chat endpoint")
	return cmd
}

type server struct {
	cfg      Config
	pubsub   *gochannel.GoChannel
	manager  *actions.Manager
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

func runServe(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})

	var store actions.MetadataStore = actions.NewMemoryStore()
	if cfg.MetadataDB != "" {
		sqlStore, err := actions.NewSQLiteStore(cfg.MetadataDB)
		if err != nil {
			return errors.Wrap(err, "serve: open metadata store")
		}
		store = sqlStore
	}
	defer func() { _ = store.Close() }()

	s := &server{
		cfg:      cfg,
		pubsub:   pubsub,
		manager:  actions.NewManager(store),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sessions: map[string]*chat.Session{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleSend)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /ws", s.handleWS)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("upstream", cfg.UpstreamURL).Msg("serving chat relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		_ = pubsub.Close()
		return err
	})
	return eg.Wait()
}

// session returns the conversation's session, creating it on first use.
func (s *server) session(id string) *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := chat.NewSession(
		chat.WithID(id),
		chat.WithTransport(chat.NewHTTPTransport(s.cfg.UpstreamURL)),
		chat.WithParserMode(s.cfg.ParserMode),
		chat.WithFinalizer(s.manager),
		chat.WithPublisher(s.pubsub),
		chat.WithMetadata(s.cfg.Metadata),
	)
	s.sessions[id] = sess
	return sess
}

type sendRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || req.Message == "" {
		http.Error(w, "conversationId and message are required", http.StatusBadRequest)
		return
	}
	sess := s.session(req.ConversationID)
	go func() {
		if err := sess.SendMessage(context.Background(), req.Message); err != nil {
			log.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("dispatch failed")
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":         "accepted",
		"conversationId": req.ConversationID,
	})
}

func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conv_id")
	if id == "" {
		http.Error(w, "conv_id is required", http.StatusBadRequest)
		return
	}
	sess := s.session(id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   sess.Status(),
		"messages": sess.Messages(),
	})
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conv_id")
	if id == "" {
		http.Error(w, "conv_id is required", http.StatusBadRequest)
		return
	}
	s.session(id).Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conv_id")
	if id == "" {
		http.Error(w, "conv_id is required", http.StatusBadRequest)
		return
	}
	s.session(id).Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleWS streams snapshot updates for one conversation over a websocket.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conv_id")
	if id == "" {
		http.Error(w, "conv_id is required", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sess := s.session(id)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, err := s.pubsub.Subscribe(ctx, sess.Topic())
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id).Msg("subscribe failed")
		return
	}

	// Reads only serve to detect the peer closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Current state first, updates after.
	if payload, err := json.Marshal(sess.Messages()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			msg.Ack()
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Debug().Err(err).Str("conversation_id", id).Msg("websocket write failed")
				return
			}
		}
	}
}
