package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/lueurxax/artist-pulse/internal/core/domain"
	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/metricsync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

type metricsResponse struct {
	metricsync.Snapshot
	Dimensions map[domain.Platform]domain.Dimension `json:"dimensions"`
	Selected   map[domain.Platform]selectedValues   `json:"selected"`
}

// selectedValues are one platform's numbers for its active dimension.
type selectedValues struct {
	Dimension domain.Dimension `json:"dimension"`
	Value     *int64           `json:"value"`
	Delta24h  *int64           `json:"delta_24h"`
	Delta7d   *int64           `json:"delta_7d"`
}

type dimensionRequest struct {
	Platform  domain.Platform  `json:"platform"`
	Dimension domain.Dimension `json:"dimension"`
}

func (a *API) paramsFrom(r *http.Request) (metricsync.Params, error) {
	q := r.URL.Query()

	p := metricsync.Params{
		EntityID:  chi.URLParam(r, "entityID"),
		Platforms: domain.ParsePlatforms(q.Get("platforms")),
		Days:      a.opts.DefaultDays,
	}

	if len(p.Platforms) == 0 {
		p.Platforms = a.opts.DefaultPlatforms
	}

	if raw := q.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return metricsync.Params{}, fmt.Errorf("days %q: %w", raw, coreerrors.ErrInvalidInput)
		}

		p.Days = days
	}

	return p, nil
}

func (a *API) coordinator(w http.ResponseWriter, r *http.Request) (*metricsync.Coordinator, bool) {
	p, err := a.paramsFrom(r)
	if err != nil {
		a.respondErr(w, err)

		return nil, false
	}

	coord, err := a.metrics.Get(p)
	if err != nil {
		a.respondErr(w, err)

		return nil, false
	}

	return coord, true
}

func (a *API) metricsView(coord *metricsync.Coordinator, snap metricsync.Snapshot) metricsResponse {
	byPlatform := make(map[domain.Platform]domain.MergedPlatformMetric, len(snap.Metrics))
	for _, m := range snap.Metrics {
		byPlatform[m.Platform] = m
	}

	dims := make(map[domain.Platform]domain.Dimension, len(snap.Params.Platforms))
	selected := make(map[domain.Platform]selectedValues, len(snap.Params.Platforms))

	for _, p := range snap.Params.Platforms {
		dim := coord.ActiveDimension(p)
		m := byPlatform[p]

		dims[p] = dim
		selected[p] = selectedValues{
			Dimension: dim,
			Value:     m.Latest.Value(dim),
			Delta24h:  m.Delta24h.Value(dim),
			Delta7d:   m.Delta7d.Value(dim),
		}
	}

	return metricsResponse{Snapshot: snap, Dimensions: dims, Selected: selected}
}

// getMetrics returns the coordinator snapshot, waiting up to SnapshotWait for
// the first cycle. A slow first cycle yields the loading snapshot.
func (a *API) getMetrics(w http.ResponseWriter, r *http.Request) {
	coord, ok := a.coordinator(w, r)
	if !ok {
		return
	}

	snap := coord.Snapshot()

	if a.opts.SnapshotWait > 0 && snap.Cycles == 0 {
		ctx, cancel := context.WithTimeout(r.Context(), a.opts.SnapshotWait)
		defer cancel()

		var err error

		snap, err = coord.AwaitCycle(ctx)
		if errors.Is(err, coreerrors.ErrCoordinatorStopped) {
			a.respondErr(w, err)

			return
		}
	}

	a.respondJSON(w, http.StatusOK, a.metricsView(coord, snap))
}

func (a *API) refreshMetrics(w http.ResponseWriter, r *http.Request) {
	coord, ok := a.coordinator(w, r)
	if !ok {
		return
	}

	if err := coord.Refresh(); err != nil {
		a.respondErr(w, err)

		return
	}

	a.respondJSON(w, http.StatusAccepted, a.metricsView(coord, coord.Snapshot()))
}

func (a *API) setDimension(w http.ResponseWriter, r *http.Request) {
	coord, ok := a.coordinator(w, r)
	if !ok {
		return
	}

	var req dimensionRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, err)

		return
	}

	if err := coord.SetActiveDimension(req.Platform, req.Dimension); err != nil {
		a.respondErr(w, err)

		return
	}

	a.respondJSON(w, http.StatusOK, a.metricsView(coord, coord.Snapshot()))
}

// streamMetrics pushes the current snapshot and every committed cycle over a
// websocket until either side closes or the coordinator stops.
func (a *API) streamMetrics(w http.ResponseWriter, r *http.Request) {
	coord, ok := a.coordinator(w, r)
	if !ok {
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug().Err(err).Msg("websocket upgrade failed")

		return
	}

	updates, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go a.readPump(conn, closed)

	a.writePump(conn, coord, updates, closed)
}

// readPump discards client frames and keeps the read deadline fresh.
func (a *API) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug().Err(err).Msg("unexpected websocket close")
			}

			return
		}
	}
}

func (a *API) writePump(conn *websocket.Conn, coord *metricsync.Coordinator, updates <-chan metricsync.Snapshot, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	if err := a.writeSnapshot(conn, coord, coord.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "coordinator stopped"))

				return
			}

			if err := a.writeSnapshot(conn, coord, snap); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (a *API) writeSnapshot(conn *websocket.Conn, coord *metricsync.Coordinator, snap metricsync.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	data, err := json.Marshal(a.metricsView(coord, snap))
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		a.logger.Debug().Err(err).Msg("websocket write failed")

		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}
