package server

import (
	"net/http"
	"time"

	"DropFM/logger"
	"DropFM/model"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressHandler streams an attempt's progress messages as JSON frames.
// Finished attempts get their history (or the stored outcome) and a close frame.
// URL: GET /api/uploads/{id}/progress
func (h *APIHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.loadOwnedUpload(w, r)
	if !ok {
		return
	}

	sub, err := h.progress.Subscribe(r.Context(), entry.ID)
	if err != nil {
		logger.Error("Failed to subscribe to progress", logger.AttemptID(entry.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "progress unavailable")
		return
	}
	defer sub.Close()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// the reader only handles pongs and notices the client going away
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, msg := range sub.History {
		if err := writeFrame(conn, msg); err != nil {
			return
		}
	}
	if entry.Status.Terminal() {
		// the row is final; history may have expired or still lack the last message
		if n := len(sub.History); n == 0 || !sub.History[n-1].Final {
			if err := writeFrame(conn, terminalFrame(entry)); err != nil {
				return
			}
		}
		closeSocket(conn)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, open := <-sub.C:
			if !open {
				closeSocket(conn)
				return
			}
			if err := writeFrame(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func closeSocket(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(wsWriteWait))
}

func terminalFrame(entry *model.UploadLog) map[string]interface{} {
	frame := map[string]interface{}{
		"attemptId": entry.ID,
		"message":   string(entry.Status),
		"final":     true,
		"fileCount": entry.FileCount,
	}
	if entry.ErrorMessage != nil {
		frame["message"] = "failed: " + *entry.ErrorMessage
	}
	return frame
}
