// Package notify turns usage events into outbound notifications. Two
// publishers consume the event bus: one renders and publishes MQTT messages
// through the connection manager, the other renders and posts webhook
// requests through the HTTP sender. Both retry failed deliveries through a
// per-transport queue and report every attempt as a DeliveryEvent.
package notify
