// Package bridge connects field devices on MQTT to the irrigation service.
//
// Inbound, devices publish readings and acknowledgements on their own
// hardware topic. Every message carries the device API key; the key must
// resolve to the device whose hardware ID is in the topic, so a unit cannot
// report on behalf of another.
//
// Outbound, the bridge is an irrigation.Notifier. New commands are pushed to
// irrigation/command/{hardware_id} and status changes are published retained
// on irrigation/status/{hardware_id}. Publishing runs on a single worker so
// notifications never wait on the broker and per-device order is kept.
package bridge
