// Package bridge connects the reconciliation coordinator to the MQTT
// broker for home-automation consumers.
//
// Outbound: every reconciled state set is published as retained JSON to
// per-device state topics, with per-device availability alongside.
// Inbound: commands arriving on breeze/command/{device_id} are parsed,
// forwarded to the coordinator and acknowledged on the ack topic.
// A periodic health reporter publishes service status and the
// coordinator's diagnostics counters.
//
// The bridge is a thin adapter: all reconciliation semantics live in
// the breezer package; all broker mechanics live in the mqtt package.
package bridge
