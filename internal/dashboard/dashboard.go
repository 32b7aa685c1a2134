// Package dashboard serves a read-only view of the agent's running
// session: cycle counters, the last assembled snapshots, and the last
// cycle's decisions and execution outcomes. It exposes the same payload
// as JSON over HTTP and as a periodic WebSocket push.
//
// There are no mutation endpoints here — nothing served by this package
// can place, cancel, or alter an order. Grounded on
// original_source/check/web_dashboard.py and the teacher's
// internal/dashboard/risk_dashboard.go, reusing its HTTP/WS server
// shape with gorilla/mux and gorilla/websocket.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"futures-llm-agent/internal/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// SessionView is the read-only slice of scheduler.Session the dashboard
// depends on. Satisfied directly by *scheduler.Session; kept narrow so
// this package never needs to import the scheduler.
type SessionView interface {
	Stats() model.SessionStats
	Overview() string
	Snapshots() []model.MarketSnapshot
	Decisions() []model.Decision
	Executions() []model.ExecutionRecord
}

// Snapshot is the JSON payload served by / , /api/status, and /ws.
type Snapshot struct {
	Timestamp  time.Time               `json:"timestamp"`
	Stats      model.SessionStats      `json:"stats"`
	Overview   string                  `json:"overview"`
	Snapshots  []model.MarketSnapshot  `json:"snapshots"`
	Decisions  []model.Decision        `json:"decisions"`
	Executions []model.ExecutionRecord `json:"executions"`
}

// Dashboard serves the read-only session view over HTTP and WebSocket.
type Dashboard struct {
	session SessionView

	server           *http.Server
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.RWMutex
	broadcastChannel chan Snapshot
	stopChannel      chan struct{}

	mu        sync.Mutex
	isRunning bool
}

// New creates a dashboard that reads from session and serves on port.
func New(session SessionView, port int) *Dashboard {
	d := &Dashboard{
		session:          session,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan Snapshot, 16),
		stopChannel:      make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", d.handleIndex).Methods("GET")
	r.HandleFunc("/api/status", d.handleStatusAPI).Methods("GET")
	r.HandleFunc("/ws", d.handleWebSocket).Methods("GET")

	d.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return d
}

// Start runs the collector/broadcaster goroutines and the HTTP server.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go d.collector()
	go d.broadcaster()

	go func() {
		log.Info().Str("address", d.server.Addr).Msg("starting dashboard server")
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dashboard server failed")
		}
	}()

	d.isRunning = true
	return nil
}

// Stop closes all client connections and shuts down the HTTP server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return nil
	}
	close(d.stopChannel)

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		return err
	}
	d.isRunning = false
	return nil
}

// collector polls the session once a second and queues the result for
// broadcast; a full channel just drops the tick, the next one carries
// fresher data anyway.
func (d *Dashboard) collector() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case d.broadcastChannel <- d.collect():
			default:
			}
		case <-d.stopChannel:
			return
		}
	}
}

func (d *Dashboard) broadcaster() {
	for {
		select {
		case snap := <-d.broadcastChannel:
			d.broadcastToClients(snap)
		case <-d.stopChannel:
			return
		}
	}
}

func (d *Dashboard) collect() Snapshot {
	return Snapshot{
		Timestamp:  time.Now(),
		Stats:      d.session.Stats(),
		Overview:   d.session.Overview(),
		Snapshots:  d.session.Snapshots(),
		Decisions:  d.session.Decisions(),
		Executions: d.session.Executions(),
	}
}

func (d *Dashboard) broadcastToClients(snap Snapshot) {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal dashboard snapshot")
		return
	}

	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(d.clients, client)
		}
	}
}

func (d *Dashboard) handleStatusAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.collect())
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	d.clientsMu.Lock()
	d.clients[conn] = true
	d.clientsMu.Unlock()

	if data, err := json.Marshal(d.collect()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.clientsMu.Unlock()
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	t, err := template.New("dashboard").Parse(indexTemplate)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}

const indexTemplate = `
<!DOCTYPE html>
<html>
<head>
    <title>Futures LLM Agent - Session Dashboard</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1400px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #1f2937 0%, #374151 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .metric { display: flex; justify-content: space-between; padding: 6px 0; border-bottom: 1px solid #eee; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; font-size: 0.9em; }
        th, td { text-align: left; padding: 6px; border-bottom: 1px solid #eee; }
        th { background-color: #f8f9fa; }
        #last-update { color: #666; text-align: right; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Futures LLM Agent — Session Dashboard</h1></div>
        <div id="last-update">Last Updated: --</div>
        <div class="grid">
            <div class="card">
                <h3>Session</h3>
                <div id="stats"></div>
            </div>
            <div class="card">
                <h3>Market Overview</h3>
                <div id="overview"></div>
            </div>
            <div class="card">
                <h3>Last Decisions</h3>
                <table><thead><tr><th>Symbol</th><th>Action</th><th>Confidence</th><th>Risk</th></tr></thead><tbody id="decisions"></tbody></table>
            </div>
            <div class="card">
                <h3>Last Executions</h3>
                <table><thead><tr><th>Symbol</th><th>State</th><th>Filled Qty</th><th>Filled Price</th></tr></thead><tbody id="executions"></tbody></table>
            </div>
        </div>
    </div>
    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');
        ws.onmessage = function(event) { render(JSON.parse(event.data)); };
        ws.onclose = function() { setTimeout(() => location.reload(), 5000); };

        function render(data) {
            document.getElementById('last-update').textContent = 'Last Updated: ' + new Date(data.timestamp).toLocaleTimeString();
            const s = data.stats;
            document.getElementById('stats').innerHTML =
                '<div class="metric"><span>Cycles completed</span><span>' + s.CyclesCompleted + '</span></div>' +
                '<div class="metric"><span>Decisions executed</span><span>' + s.DecisionsExecuted + '</span></div>' +
                '<div class="metric"><span>Decisions held</span><span>' + s.DecisionsHeld + '</span></div>' +
                '<div class="metric"><span>Decisions rejected</span><span>' + s.DecisionsRejected + '</span></div>' +
                '<div class="metric"><span>Orders filled</span><span>' + s.OrdersFilled + '</span></div>' +
                '<div class="metric"><span>Orders failed</span><span>' + s.OrdersFailed + '</span></div>';
            document.getElementById('overview').textContent = data.overview || '(none yet)';

            const decisions = document.getElementById('decisions');
            decisions.innerHTML = '';
            (data.decisions || []).forEach(function(d) {
                const row = document.createElement('tr');
                row.innerHTML = '<td>' + d.Symbol + '</td><td>' + d.Action + '</td><td>' + d.Confidence.toFixed(1) + '</td><td>' + d.RiskScore.toFixed(1) + '</td>';
                decisions.appendChild(row);
            });

            const executions = document.getElementById('executions');
            executions.innerHTML = '';
            (data.executions || []).forEach(function(e) {
                const row = document.createElement('tr');
                row.innerHTML = '<td>' + e.Symbol + '</td><td>' + e.State + '</td><td>' + e.FilledQty + '</td><td>' + e.FilledPrice + '</td>';
                executions.appendChild(row);
            });
        }
    </script>
</body>
</html>
`
