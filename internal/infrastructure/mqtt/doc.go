// Package mqtt connects the irrigation core to the device message bus.
//
// Field controllers that cannot poll HTTP talk to the core over MQTT. The
// core subscribes to readings and acknowledgements, and publishes pump
// commands and retained status snapshots:
//
//	irrigation/reading/{hardware_id}  device -> core
//	irrigation/ack/{hardware_id}      device -> core
//	irrigation/command/{hardware_id}  core -> device
//	irrigation/status/{hardware_id}   core -> device (retained)
//	irrigation/system/status          core online/offline (retained, LWT)
//
// The client reconnects automatically with exponential backoff and
// restores its subscriptions after every reconnect. Message handlers run
// with panic recovery; a returned error is logged and otherwise ignored.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleReading(topic, payload)
//	    })
package mqtt
