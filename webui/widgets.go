package webui

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iot-dashboard/widget"
)

type layoutWidget struct {
	ID     string        `json:"id"`
	Type   string        `json:"type"`
	Config widget.Config `json:"config"`
}

// commandRequest ist der Body von POST /api/widgets/:id/command.
type commandRequest struct {
	Target  string      `json:"target"` // value | fan | control
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
	FanID   string      `json:"fanId"`
	Command string      `json:"command"`
	Payload interface{} `json:"payload"`
}

func (s *Server) getLayout(c *gin.Context) {
	entries := s.store.Snapshot()
	widgets := make([]layoutWidget, 0, len(entries))
	for _, e := range entries {
		widgets = append(widgets, layoutWidget{ID: e.ID, Type: e.Type, Config: e.Config})
	}
	c.JSON(http.StatusOK, gin.H{
		"title":   s.store.Title(),
		"widgets": widgets,
		// bekannte Typ-Tags, damit das Frontend unbekannte Widgets erkennt
		"types": s.engine.Registry().Types(),
	})
}

func (s *Server) getWidgets(c *gin.Context) {
	c.JSON(http.StatusOK, wireOutputs(s.engine.RenderAll(s.store.Snapshot())))
}

func (s *Server) getWidget(c *gin.Context) {
	out, err := s.render(c.Param("id"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, wireOutput(out))
}

func (s *Server) render(id string) (widget.Output, error) {
	entry, err := s.store.Get(id)
	if err != nil {
		return widget.Output{}, fmt.Errorf("widget %s: %w", id, err)
	}
	return s.engine.Render(entry.Descriptor, entry.Config), nil
}

// postCommand rendert das Widget neu und ruft den gebundenen Sender auf.
func (s *Server) postCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	out, err := s.render(c.Param("id"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	if out.State != widget.StateRendered {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"message": out.Message, "state": out.State})
		return
	}

	ctx := c.Request.Context()
	sender := out.Props["sendCommand"]
	target := req.Target
	if target == "" {
		target = "value"
	}

	if sender == nil {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("widget type %s does not accept commands", out.WidgetType))
		return
	}
	if !targetMatches(sender, target) {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("target %q is not supported by widget type %s", target, out.WidgetType))
		return
	}

	var sendErr error
	switch send := sender.(type) {
	case widget.SendCommandFunc:
		if req.Key == "" {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("key is required"))
			return
		}
		sendErr = send(ctx, req.Key, req.Value)
	case widget.FanSendCommandFunc:
		if req.FanID == "" || req.Command == "" {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("fanId and command are required"))
			return
		}
		sendErr = send(ctx, req.FanID, req.Command, req.Value)
	case widget.CommandControlSendCommandFunc:
		if req.Command == "" {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("command is required"))
			return
		}
		sendErr = send(ctx, req.Command, req.Payload)
	}

	if sendErr != nil {
		s.log.WithField("widget_id", out.WidgetID).Warnf("WEBUI: Command failed: %v", sendErr)
		abortWithError(c, statusFor(sendErr), sendErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Command sent"})
}

func targetMatches(sender interface{}, target string) bool {
	switch sender.(type) {
	case widget.SendCommandFunc:
		return target == "value"
	case widget.FanSendCommandFunc:
		return target == "fan"
	case widget.CommandControlSendCommandFunc:
		return target == "control"
	}
	return false
}

func (s *Server) postSettings(c *gin.Context) {
	var settings map[string]interface{}
	if err := c.ShouldBindJSON(&settings); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	out, err := s.render(c.Param("id"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	save, ok := out.Props["onSaveSettings"].(widget.SaveSettingsFunc)
	if !ok {
		abortWithError(c, http.StatusBadRequest, fmt.Errorf("widget type %s has no settings", out.WidgetType))
		return
	}
	save(settings)

	updated, err := s.render(c.Param("id"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, wireOutput(updated))
}

// widgetsWebSocket schickt alle push_interval_ms die Ausgaben aller Widgets.
func (s *Server) widgetsWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorf("WEBUI: Error upgrading to WebSocket: %v", err)
		return
	}
	defer gracefulShutdown(conn, s.log)

	done := make(chan struct{})
	go monitorWebSocket(conn, done, s.log)

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		outs := wireOutputs(s.engine.RenderAll(s.store.Snapshot()))
		if err := conn.WriteJSON(outs); err != nil {
			s.log.Debugf("WEBUI: Error sending widget outputs: %v", err)
			return
		}
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
