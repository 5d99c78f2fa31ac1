package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	visionnav "github.com/menta2k/vision-nav"
	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/types"
)

const streamWriteTimeout = 10 * time.Second

// streamReply is sent for every frame received on /ws/detect
type streamReply struct {
	Frame          int               `json:"frame"`
	Detections     []types.Detection `json:"detections"`
	AnnotatedImage string            `json:"annotated_image,omitempty"`
}

type streamError struct {
	Frame int    `json:"frame"`
	Error string `json:"error"`
}

// streamDetect runs detection on every frame pushed over a websocket.
// Binary messages are raw encoded images; text messages are the same JSON
// document accepted by /detect_objects.
func (s *Server) streamDetect(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxBodyBytes)
	log := monitoring.WithRequest(RequestID(r.Context()))
	log.Info("detection stream opened")

	ctx := r.Context()
	frame := 0
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("detection stream closed unexpectedly")
			}
			break
		}
		frame++

		var (
			report *visionnav.FrameReport
			reason string
		)
		switch msgType {
		case websocket.BinaryMessage:
			img, _, derr := s.assistant.Processor().Decode(data)
			if derr != nil {
				err = derr
				break
			}
			report, err = s.assistant.DetectImage(ctx, img)
		case websocket.TextMessage:
			var req visionnav.FrameRequest
			if jerr := json.Unmarshal(data, &req); jerr != nil {
				reason = "Invalid JSON message: " + jerr.Error()
				break
			}
			report, err = s.assistant.DetectFrame(ctx, req)
		}

		var reply interface{}
		switch {
		case reason != "":
			reply = streamError{Frame: frame, Error: reason}
		case err != nil:
			_, reason = detectError(err)
			log.WithError(err).WithField("frame", frame).Debug("stream frame failed")
			reply = streamError{Frame: frame, Error: reason}
		case report == nil:
			reply = streamError{Frame: frame, Error: "unsupported message type"}
		default:
			detections := report.Detections
			if detections == nil {
				detections = []types.Detection{}
			}
			reply = streamReply{Frame: frame, Detections: detections, AnnotatedImage: report.AnnotatedImage}
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.WithError(err).Warn("detection stream write failed")
			break
		}
	}

	log.Infof("detection stream closed after %d frames", frame)
}
