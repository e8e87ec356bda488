package twilio

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// VoiceHandler serves the TwiML answer for an outbound call: connect a
// bidirectional media stream to our websocket endpoint.
func VoiceHandler(publicURL string, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	wsURL := strings.TrimRight(publicURL, "/")
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	return func(w http.ResponseWriter, r *http.Request) {
		twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s/ws" />
    </Connect>
</Response>`, wsURL)

		logger.Info("twiml served", slog.String("stream", wsURL+"/ws"))
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, twiml)
	}
}

// StatusHandler logs call lifecycle callbacks.
func StatusHandler(logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		logger.Info("call status",
			slog.String("callSid", formValue(r, "CallSid")),
			slog.String("status", formValue(r, "CallStatus")),
		)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}
}

// HealthHandler answers liveness probes.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	}
}

// NewMux assembles the telephony HTTP surface. streamHandler serves
// the /ws media stream endpoint.
func NewMux(publicURL string, streamHandler http.Handler, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/voice", VoiceHandler(publicURL, logger))
	mux.HandleFunc("/status", StatusHandler(logger))
	mux.HandleFunc("/health", HealthHandler())
	mux.Handle("/ws", streamHandler)
	return mux
}

func formValue(r *http.Request, key string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return "unknown"
}
