package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lounge_sessions_connected",
			Help: "Currently connected WebSocket sessions",
		},
	)

	SessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_sessions_evicted_total",
			Help: "Sessions terminated by the liveness sweeper",
		},
	)

	// Message metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_messages_received_total",
			Help: "Inbound envelopes by domain prefix",
		},
		[]string{"domain"},
	)

	InvalidMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_invalid_messages_total",
			Help: "Inbound frames rejected by envelope validation",
		},
	)

	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lounge_chat_messages_total",
			Help: "Chat messages relayed",
		},
		[]string{"kind"}, // "chat", "whisper", "emote"
	)

	// Player metrics
	PlayersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lounge_players_tracked",
			Help: "Players in the authoritative state registry",
		},
	)

	// Tick metrics
	BroadcastTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_broadcast_ticks_total",
			Help: "Position broadcast ticks that carried at least one update",
		},
	)

	PositionUpdatesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lounge_position_updates_sent_total",
			Help: "Individual position updates included in batch broadcasts",
		},
	)
)
