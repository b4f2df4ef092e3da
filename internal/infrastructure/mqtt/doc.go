// Package mqtt provides the publish/subscribe transport between the
// coordinator and room-control nodes.
//
// Topic layout:
//
//	sensors/{id}/data        node -> coordinator  telemetry JSON
//	sensors/{id}/button      node -> coordinator  physical button press
//	actuators/{id}/led       coordinator -> node  "on" / "off"
//	actuators/{id}/heating   coordinator -> node  "on" / "off"
//	devices/{id}/override    coordinator -> node  retained override state
//	roomctl/system/status    coordinator status, also the LWT topic
//
// The client reconnects automatically and restores its subscriptions.
// Handlers are wrapped with panic recovery.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorData(), 1, handler)
//	err = client.PublishDefault(mqtt.Topics{}.ActuatorCommand("node1", mqtt.ActuatorLED), []byte("off"))
package mqtt
