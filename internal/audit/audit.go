package audit

import (
	"context"

	"github.com/emberhq/emberchat/pkg/log"
)

// Audit actions.
const (
	ActionRegister      = "user.register"
	ActionLogin         = "user.login"
	ActionLoginFailed   = "user.login_failed"
	ActionConnect       = "chat.connect"
	ActionDisconnect    = "chat.disconnect"
	ActionSendDirect    = "chat.send_direct"
	ActionSendChannel   = "chat.send_channel"
	ActionDeleteMessage = "chat.delete_message"
	ActionCreateChannel = "channel.create"
	ActionDeleteChannel = "channel.delete"
	ActionJoinChannel   = "channel.join"
	ActionLeaveChannel  = "channel.leave"
	ActionSetAdmin      = "user.set_admin"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the entity acted upon.
func LogWithTarget(ctx context.Context, action string, userID, targetID int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldUserID, userID).
		Int64(FieldTargetID, targetID).
		Msg(msg)
}

// LogAdmin emits an audit log for a privileged operation, naming the
// acting administrator.
func LogAdmin(ctx context.Context, action string, userID int64, username string, targetID int64, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Int64(log.FieldUserID, userID).
		Str(log.FieldUsername, username).
		Int64(FieldTargetID, targetID).
		Msg(msg)
}
