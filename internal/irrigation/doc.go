// Package irrigation implements the soil-moisture control core: the
// CurrentStatus projection, the auto-control decider, the per-device command
// queue and the reading ingestion pipeline that ties them together.
//
// # Data flow
//
//	reading ──► Projector.ApplyReading ──► Thresholds.Decide
//	                                           │ action?
//	                                           ▼
//	                                  Enqueue(auto) ──► Projector.ApplyCommand
//
// Readings and commands form an append-only log. CurrentStatus is a
// materialised view over that log: current_moisture follows the latest
// reading and pump_status follows the latest command. It can be rebuilt at
// any time with Service.RebuildStatus. The only field that is not derivable
// from the log is auto_mode, which CurrentStatus owns.
//
// # Consistency
//
// Every mutating Service method runs in a single store transaction, so a
// reading is never recorded without its projection and auto-control
// follow-through. Writes for the same device are serialised by an in-process
// keyed mutex, and CurrentStatus updates are compare-and-swap on a version
// column. A lost CAS surfaces as ErrConflict and the whole transaction is
// replayed with a fresh read, up to Options.MaxConflictRetries times.
//
// Devices are independent: nothing here takes a lock that spans devices.
//
// # Notifications
//
// Notifiers registered with AddNotifier are called after a transaction has
// committed, still under the device lock, so each device's status versions
// reach them in increasing order. They feed the MQTT bridge, telemetry and the dashboard
// WebSocket hub and never influence the stored state.
package irrigation
