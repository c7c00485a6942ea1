// Package metrics exposes the merchant daemon's Prometheus instrumentation:
// sessions accepted per sub-protocol, protocol aborts per error kind,
// chain-watcher actions taken per (ContractStatus, action) pair, and a
// gauge of locally known channels by state name. Registered against the
// default Prometheus registry, the same pattern lnrpc/monitoring uses for
// lnd's own subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts every inbound session dispatched, labeled by
	// the branch it was routed to (parameters, establish, pay, close).
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zkchannels",
		Subsystem: "merchant",
		Name:      "sessions_total",
		Help:      "Inbound sessions dispatched, by protocol branch.",
	}, []string{"branch"})

	// AbortsTotal counts every ProtocolAbort sent, labeled by
	// the sub-protocol and the abort kind's string name.
	AbortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zkchannels",
		Subsystem: "merchant",
		Name:      "aborts_total",
		Help:      "Protocol aborts, by sub-protocol and abort kind.",
	}, []string{"protocol", "kind"})

	// ChainActionsTotal counts actions the chain-watching loop takes,
	// labeled by the on-chain ContractStatus observed and the action
	// taken in response (spec.md §4.H's (status, predicate) -> action
	// table).
	ChainActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zkchannels",
		Subsystem: "customer",
		Name:      "chain_actions_total",
		Help:      "Chain-watching loop actions, by observed contract status and action taken.",
	}, []string{"status", "action"})

	// ChannelsByState is a gauge of locally known channels per
	// zkabacus.State variant. It is registered, but no code in this module
	// sets it.
	ChannelsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "zkchannels",
		Subsystem: "customer",
		Name:      "channels_by_state",
		Help:      "Locally known channels, by current state.",
	}, []string{"state"})
)
