package hub

import (
	"github.com/google/uuid"

	"github.com/kandev/orchmesh/internal/wsproto"
)

func newMessageID() string { return uuid.New().String() }

// ConnectionSender is the subset of the WebSocket gateway's Hub that the
// hub layer needs: direct-to-connection delivery and group membership,
// addressed purely by connection id so this package never depends on the
// transport package's concrete Client type.
type ConnectionSender interface {
	SendToConnection(connID string, msg *wsproto.Message) bool
	JoinGroupByID(connID, group string) bool
	LeaveGroupByID(connID, group string) bool
}

func push(conns ConnectionSender, connID, action string, payload any) {
	msg, err := wsproto.NewNotification(action, payload)
	if err != nil {
		return
	}
	conns.SendToConnection(connID, msg)
}

func pushError(conns ConnectionSender, connID string, errPayload ReceiveError) {
	push(conns, connID, wsproto.ActionReceiveError, errPayload)
}
