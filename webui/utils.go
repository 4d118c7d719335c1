package webui

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"iot-dashboard/command"
	"iot-dashboard/layout"
	"iot-dashboard/widget"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wireOutput entfernt Callbacks aus den Props, damit die Ausgabe serialisierbar ist.
func wireOutput(out widget.Output) widget.Output {
	if out.Props != nil {
		out.Props = out.Props.Serializable()
	}
	return out
}

func wireOutputs(outs []widget.Output) []widget.Output {
	for i := range outs {
		outs[i] = wireOutput(outs[i])
	}
	return outs
}

// statusFor bildet Fehler der Command-Senders auf HTTP-Statuscodes ab.
func statusFor(err error) int {
	switch {
	case errors.Is(err, layout.ErrWidgetNotFound):
		return http.StatusNotFound
	case errors.Is(err, command.ErrNotWritable):
		return http.StatusConflict
	case errors.Is(err, widget.ErrNoCommandChannel):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"message": err.Error()})
}

// monitorWebSocket überwacht die Verbindung und schließt done bei Fehlern.
func monitorWebSocket(conn *websocket.Conn, done chan<- struct{}, log logrus.FieldLogger) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debugf("WEBUI: WebSocket disconnected: %v", err)
			return
		}
	}
}

func gracefulShutdown(conn *websocket.Conn, log logrus.FieldLogger) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		log.Debugf("WEBUI: Error closing WebSocket: %v", err)
	}
	conn.Close()
}
