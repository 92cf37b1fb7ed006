package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/unixorn/crankd/internal/logging"
)

// notification is the wire form accepted on /notify.
type notification struct {
	Name string         `json:"name"`
	Info map[string]any `json:"info,omitempty"`
}

// Workspace accepts workspace notifications over a loopback listener
// and forwards the registered ones into the event sink. Producers post
// one-shot notifications or stream them over a WebSocket; the same
// listener serves the live event feed that monitors subscribe to.
type Workspace struct {
	logger   *logging.Logger
	listener net.Listener
	names    map[string]bool
	feed     chan []byte

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	wg sync.WaitGroup
}

// NewWorkspace binds the listen address immediately so an occupied port
// fails the process before it starts running. names are the
// notification names the configuration registered; everything else is
// dropped at the door.
func NewWorkspace(listen string, names []string, logger *logging.Logger) (*Workspace, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("binding workspace listener %s: %w", listen, err)
	}

	registered := make(map[string]bool, len(names))
	for _, n := range names {
		registered[n] = true
	}

	return &Workspace{
		logger:   logger,
		listener: ln,
		names:    registered,
		feed:     make(chan []byte, 100),
		clients:  make(map[*websocket.Conn]bool),
	}, nil
}

// Addr returns the bound listen address, useful when the configured
// port was 0.
func (ws *Workspace) Addr() string {
	return ws.listener.Addr().String()
}

func (ws *Workspace) Name() string { return "workspace" }

// Broadcast queues one feed message for connected monitors. The queue
// drops when full rather than blocking dispatch.
func (ws *Workspace) Broadcast(msg []byte) {
	select {
	case ws.feed <- msg:
	default:
		ws.logger.Debugf("feed queue full, dropping message")
	}
}

// Run serves until ctx is canceled, then closes monitor connections and
// shuts the listener down.
func (ws *Workspace) Run(ctx context.Context, sink chan<- Event) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/notify", func(w http.ResponseWriter, r *http.Request) {
		ws.handleNotify(ctx, w, r, sink)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		ws.handleEvents(ctx, w, r)
	})
	mux.HandleFunc("/health", ws.handleHealth)

	srv := &http.Server{Handler: mux}

	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.broadcastLoop(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ws.listener) }()

	ws.logger.Infof("workspace listener on %s", ws.Addr())

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("workspace listener: %w", err)
		}
	}

	ws.closeClients()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	ws.wg.Wait()
	return nil
}

// handleNotify accepts either one POSTed notification or a WebSocket
// stream of them.
func (ws *Workspace) handleNotify(ctx context.Context, w http.ResponseWriter, r *http.Request, sink chan<- Event) {
	if r.Header.Get("Upgrade") == "websocket" {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			ws.logger.Warnf("notify upgrade failed: %v", err)
			return
		}
		defer conn.CloseNow()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := ws.deliver(ctx, data, sink); err != nil {
				ws.logger.Warnf("notify stream: %v", err)
			}
		}
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "request too large", http.StatusBadRequest)
		return
	}
	if err := ws.deliver(ctx, body, sink); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// deliver parses one notification and forwards it if its name is
// registered. Unregistered names drop silently; only configured
// observers hear a notification.
func (ws *Workspace) deliver(ctx context.Context, data []byte, sink chan<- Event) error {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("malformed notification: %w", err)
	}
	if n.Name == "" {
		return errors.New("malformed notification: missing name")
	}

	if !ws.names[n.Name] {
		ws.logger.Debugf("ignoring unregistered workspace notification %q", n.Name)
		return nil
	}

	send(ctx, sink, &WorkspaceEvent{Name: n.Name, Info: n.Info})
	return nil
}

// handleEvents upgrades a monitor connection and keeps it subscribed to
// the feed until either side closes.
func (ws *Workspace) handleEvents(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		ws.logger.Warnf("feed upgrade failed: %v", err)
		return
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = true
	count := len(ws.clients)
	ws.clientsMu.Unlock()
	ws.logger.Debugf("monitor connected (total: %d)", count)

	// The read loop only notices disconnects; monitors send nothing.
	defer ws.removeClient(conn)
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (ws *Workspace) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.clientsMu.RLock()
	count := len(ws.clients)
	ws.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","monitors":%d}`+"\n", count)
}

func (ws *Workspace) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-ws.feed:
			ws.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(ws.clients))
			for conn := range ws.clients {
				conns = append(conns, conn)
			}
			ws.clientsMu.RUnlock()

			for _, conn := range conns {
				writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(writeCtx, websocket.MessageText, msg)
				cancel()
				if err != nil {
					ws.logger.Debugf("dropping monitor: %v", err)
					ws.removeClient(conn)
				}
			}
		}
	}
}

func (ws *Workspace) removeClient(conn *websocket.Conn) {
	ws.clientsMu.Lock()
	if _, exists := ws.clients[conn]; !exists {
		ws.clientsMu.Unlock()
		return
	}
	delete(ws.clients, conn)
	count := len(ws.clients)
	ws.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	ws.logger.Debugf("monitor disconnected (total: %d)", count)
}

func (ws *Workspace) closeClients() {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	for conn := range ws.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	ws.clients = make(map[*websocket.Conn]bool)
}
