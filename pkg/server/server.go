package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sh-games/battleship-backend/pkg/comms"
	"github.com/sh-games/battleship-backend/pkg/config"
	"github.com/sh-games/battleship-backend/pkg/game"
)

const busyReason = "Battleship game is full, please try again later"

// barrierPollInterval paces the phase supervisor's checks of the
// admission counters.
const barrierPollInterval = 50 * time.Millisecond

// Server accepts player connections for a single match and supervises
// the match's phase barriers.
type Server struct {
	log            *zap.Logger
	cfg            *config.Config
	match          *game.Match
	relay          *ChatRelay
	socketUpgrader websocket.Upgrader
	done           chan struct{}
}

// NewServer constructs a new Server instance for one match.
func NewServer(log *zap.Logger, cfg *config.Config, checkOriginFunc func(r *http.Request) bool) *Server {
	log = log.With(zap.String("match", uuid.NewString()))
	return &Server{
		log:            log,
		cfg:            cfg,
		match:          game.NewMatch(log, cfg.MaxPlayers),
		relay:          NewChatRelay(log, cfg.Host, cfg.ChatPortMin),
		socketUpgrader: websocket.Upgrader{CheckOrigin: checkOriginFunc},
		done:           make(chan struct{}),
	}
}

// Start starts up the websocket server and blocks until every player
// has acknowledged the end of the game.
func (s *Server) Start() {
	go s.runPhases()

	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: http.HandlerFunc(s.connectionHandler),
	}
	go func() {
		<-s.done
		srv.Close()
	}()

	s.log.Info(fmt.Sprintf("Started server on port %s", s.cfg.Port))
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.log.Fatal("Server failed during ListenAndServe", zap.Error(err))
	}
	s.log.Info("Closing the Battleship server")
}

// connectionHandler upgrades new HTTP requests from clients to
// websockets and hands the connection to a session worker. Clients
// beyond the match size are turned away with BUSY.
func (s *Server) connectionHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := s.socketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Unable to upgrade connection", zap.Error(err))
		return
	}
	conn := &comms.ConnectionWrapper{Socket: socket}
	defer conn.Close()

	s.match.Lock()
	full := s.match.AssignedPlayers() >= s.match.TargetPlayers
	var num int
	if !full {
		num = s.match.AssignPlayerNum()
	}
	s.match.Unlock()

	if full {
		conn.WriteMessage(comms.Message{
			Type:     TypeBusy,
			Contents: comms.ErrorResponse{Reason: busyReason},
		})
		s.log.Info("Turned away connection, game is full")
		return
	}

	err = conn.WriteMessage(comms.Message{
		Type:     TypeServerReady,
		Contents: ServerReadyResponse{PlayerNum: num},
	})
	if err != nil {
		s.log.Error(fmt.Sprintf("Unable to send SRDY to player %d", num), zap.Error(err))
		return
	}
	s.log.Info(fmt.Sprintf("Sent SRDY %d", num))

	sess := &session{
		log:   s.log,
		conn:  conn,
		match: s.match,
		relay: s.relay,
		num:   num,
	}
	sess.run()
}

// runPhases drives the match through its global barriers: all joined
// (with at least two teams), all boards placed, game over, all end
// acknowledgements in. Each barrier is poll-checked under the match
// lock, mirroring the client-poll-driven phase contract.
func (s *Server) runPhases() {
	for {
		s.match.Lock()
		if s.match.JoinCount == s.match.TargetPlayers {
			if !s.match.EnoughTeams() {
				s.match.Unlock()
				s.log.Fatal("Not enough teams, cancelling game")
			}
			s.match.SetupStarted = true
			s.match.Unlock()
			s.log.Info("Teams ready, going to game setup")
			break
		}
		s.match.Unlock()
		time.Sleep(barrierPollInterval)
	}

	for {
		s.match.Lock()
		if s.match.ReadyCount == s.match.TargetPlayers {
			s.match.SelectFirstTeam()
			s.match.Started = true
			s.match.Unlock()
			s.log.Info("Game setup complete, beginning game")
			break
		}
		s.match.Unlock()
		time.Sleep(barrierPollInterval)
	}

	for {
		s.match.Lock()
		ended := s.match.Ended
		winner := s.match.Winner()
		s.match.Unlock()
		if ended {
			s.log.Info(fmt.Sprintf("The game has ended, the winning team is %s", winner))
			break
		}
		time.Sleep(barrierPollInterval)
	}

	for {
		s.match.Lock()
		acked := s.match.EndCount == s.match.TargetPlayers
		s.match.Unlock()
		if acked {
			break
		}
		time.Sleep(barrierPollInterval)
	}
	s.log.Info("All players acknowledged game end")
	close(s.done)
}
