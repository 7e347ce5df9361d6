// Package common provides shared types and utilities for server implementations.
package common

import (
	"encoding/json"

	"github.com/sessionlens/sessionlens/internal/notify"
	"github.com/sessionlens/sessionlens/internal/rpc/message"
)

// NotificationToJSONRPC converts a change notification into a JSON-RPC
// notification envelope for clients that speak JSON-RPC over the WebSocket
// transport.
func NotificationToJSONRPC(n *notify.Notification) ([]byte, error) {
	method := NotificationMethod(n.Name)

	rpcNotification, err := message.NewNotification(method, n.Payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(rpcNotification)
}

// NotificationMethod returns the JSON-RPC method name for a notification name.
func NotificationMethod(name notify.Name) string {
	return "event/" + string(name)
}
