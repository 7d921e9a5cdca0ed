package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mantonx/scormbridge/internal/events"
)

const (
	noticeWriteWait  = 10 * time.Second
	noticePongWait   = 60 * time.Second
	noticePingPeriod = noticePongWait * 9 / 10
)

// NoticeMessage is one websocket frame sent to a view
type NoticeMessage struct {
	Type      string                 `json:"type"`
	ViewID    string                 `json:"view_id"`
	Level     string                 `json:"level,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

var noticeEventTypes = []events.EventType{
	events.EventSessionLoaded,
	events.EventSessionLoadFailed,
	events.EventSessionTerminated,
	events.EventSessionTornDown,
	events.EventCompletionRaised,
	events.EventCompletionRecorded,
	events.EventCompletionFailed,
}

// Notices handles GET /api/scorm/views/:viewId/notices
//
// The stream starts with the notices already attached to the view and then
// forwards session and completion events targeted at it.
func (h *Handler) Notices(c *gin.Context) {
	viewID := c.Param("viewId")
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notices not available"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "view_id", viewID, "error", err)
		return
	}
	defer conn.Close()

	out := make(chan NoticeMessage, 32)
	sub, err := h.bus.Subscribe(events.EventFilter{Types: noticeEventTypes, Target: viewID}, func(e events.Event) error {
		msg := NoticeMessage{
			Type:      string(e.Type),
			ViewID:    viewID,
			Title:     e.Title,
			Message:   e.Message,
			Data:      e.Data,
			Timestamp: e.Timestamp.Unix(),
		}
		if e.Type == events.EventCompletionFailed {
			msg.Level = "warning"
		}
		select {
		case out <- msg:
		default:
			h.logger.Warn("notice dropped, client too slow", "view_id", viewID, "type", e.Type)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe notices", "view_id", viewID, "error", err)
		return
	}
	defer h.bus.Unsubscribe(sub.ID)

	backlog := h.service.Notices(viewID)
	for _, n := range backlog {
		conn.SetWriteDeadline(time.Now().Add(noticeWriteWait))
		if err := conn.WriteJSON(NoticeMessage{
			Type:      "notice",
			ViewID:    viewID,
			Level:     string(n.Level),
			Message:   n.Message,
			Timestamp: n.At.Unix(),
		}); err != nil {
			return
		}
	}

	// The client sends nothing; reading only detects close and handles pongs
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(noticePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(noticePongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(noticePingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(noticeWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(noticeWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
