package http

import (
	"encoding/json"

	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Text == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "text is required"}, nil
		}
		return &core.Command{Kind: core.CommandSendMessage, Text: msg.Text}, nil, nil

	case proto.InboundTypeRequestSpeak:
		return &core.Command{Kind: core.CommandRequestSpeak}, nil, nil

	case proto.InboundTypeReleaseSpeak:
		return &core.Command{Kind: core.CommandReleaseSpeak}, nil, nil

	case proto.InboundTypeForceRelease, proto.InboundTypeApproveSpeak,
		proto.InboundTypeRejectSpeak, proto.InboundTypeKick, proto.InboundTypeBan:
		var target proto.TargetData
		if err := json.Unmarshal(inbound.Data, &target); err != nil {
			return nil, nil, err
		}
		if target.Target == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "target is required"}, nil
		}
		kinds := map[string]core.CommandKind{
			proto.InboundTypeForceRelease: core.CommandForceRelease,
			proto.InboundTypeApproveSpeak: core.CommandApproveSpeak,
			proto.InboundTypeRejectSpeak:  core.CommandRejectSpeak,
			proto.InboundTypeKick:         core.CommandKick,
			proto.InboundTypeBan:          core.CommandBan,
		}
		return &core.Command{
			Kind:   kinds[inbound.Type],
			Target: target.Target,
			Reason: target.Reason,
		}, nil, nil

	case proto.InboundTypeMute:
		var mute proto.MuteData
		if err := json.Unmarshal(inbound.Data, &mute); err != nil {
			return nil, nil, err
		}
		if mute.Target == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "target is required"}, nil
		}
		return &core.Command{Kind: core.CommandSetMute, Target: mute.Target, Flag: mute.Muted}, nil, nil

	case proto.InboundTypeUnban:
		var unban proto.UnbanData
		if err := json.Unmarshal(inbound.Data, &unban); err != nil {
			return nil, nil, err
		}
		if unban.Addr == "" && unban.DeviceID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "an addr or device_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandUnban, Addr: unban.Addr, DeviceID: unban.DeviceID}, nil, nil

	case proto.InboundTypeSetRole:
		var sr proto.SetRoleData
		if err := json.Unmarshal(inbound.Data, &sr); err != nil {
			return nil, nil, err
		}
		if sr.Target == "" || sr.Role == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "target and role are required"}, nil
		}
		return &core.Command{Kind: core.CommandSetRole, Target: sr.Target, Role: perm.Role(sr.Role)}, nil, nil

	case proto.InboundTypeGetPermissions:
		return &core.Command{Kind: core.CommandGetPermissions}, nil, nil

	case proto.InboundTypeSetPermissions:
		var pd proto.PermissionsData
		if err := json.Unmarshal(inbound.Data, &pd); err != nil {
			return nil, nil, err
		}
		if pd.Permissions == nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "permissions are required"}, nil
		}
		return &core.Command{Kind: core.CommandSetPermissions, Matrix: matrixFromWire(pd.Permissions)}, nil, nil

	case proto.InboundTypeLockRoom:
		var toggle proto.ToggleData
		if err := json.Unmarshal(inbound.Data, &toggle); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandSetRoomLock, Flag: toggle.Enabled}, nil, nil

	case proto.InboundTypeManualApproval:
		var toggle proto.ToggleData
		if err := json.Unmarshal(inbound.Data, &toggle); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandSetManualApproval, Flag: toggle.Enabled}, nil, nil

	case proto.InboundTypeSettings:
		var sd proto.SettingsData
		if err := json.Unmarshal(inbound.Data, &sd); err != nil {
			return nil, nil, err
		}
		return &core.Command{
			Kind:     core.CommandUpdateSettings,
			Settings: &core.Settings{Color: sd.Color, FontSize: sd.FontSize},
			Avatar:   sd.Avatar,
		}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventChatMessage:
		return eventOutbound(proto.EventChatMessage, proto.EventChatMessageData{
			From:       event.Message.From,
			Avatar:     event.Message.Avatar,
			Text:       event.Message.Text,
			Color:      event.Message.Color,
			FontSize:   event.Message.FontSize,
			Attachment: event.Message.Attachment,
			TS:         event.Message.SentAt.Unix(),
		})
	case core.EventUserJoined:
		return eventOutbound(proto.EventUserJoined, userFromInfo(event.Info))
	case core.EventUserLeft:
		return eventOutbound(proto.EventUserLeft, proto.EventNamedData{User: event.User})
	case core.EventSnapshot:
		snap := event.Snapshot
		users := make([]proto.EventUserData, 0, len(snap.Users))
		for i := range snap.Users {
			users = append(users, userFromInfo(&snap.Users[i]))
		}
		return eventOutbound(proto.EventSnapshot, proto.EventSnapshotData{
			Room:        snap.Room,
			You:         snap.You,
			Users:       users,
			Floor:       floorFromState(&snap.Floor),
			Permissions: matrixToWire(snap.Matrix),
		})
	case core.EventSpeakGranted:
		data := proto.EventFloorData{}
		if event.Floor != nil {
			data = floorFromState(event.Floor)
		}
		data.Speaker = event.User
		return eventOutbound(proto.EventSpeakGranted, data)
	case core.EventSpeakReleased:
		return eventOutbound(proto.EventSpeakReleased, proto.EventNamedData{User: event.User, Reason: event.Reason})
	case core.EventSpeakExpired:
		return eventOutbound(proto.EventSpeakExpired, proto.EventNamedData{User: event.User})
	case core.EventQueueUpdated:
		return eventOutbound(proto.EventQueueUpdated, floorFromState(event.Floor))
	case core.EventApprovalPending:
		return eventOutbound(proto.EventApprovalPending, proto.EventNamedData{User: event.User})
	case core.EventPermissionsUpdated:
		return eventOutbound(proto.EventPermissionsUpdated, proto.PermissionsData{Permissions: matrixToWire(event.Matrix)})
	case core.EventBanUpdated:
		return eventOutbound(proto.EventBanUpdated, proto.EventNamedData{User: event.User})
	case core.EventUserUpdated:
		return eventOutbound(proto.EventUserUpdated, userFromInfo(event.Info))
	case core.EventKicked:
		return eventOutbound(proto.EventKicked, proto.EventNamedData{User: event.User, Reason: event.Reason})
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func userFromInfo(info *core.UserInfo) proto.EventUserData {
	if info == nil {
		return proto.EventUserData{}
	}
	return proto.EventUserData{
		Name:   info.Name,
		Role:   string(info.Role),
		Muted:  info.Muted,
		Avatar: info.Avatar,
	}
}

func floorFromState(st *core.FloorState) proto.EventFloorData {
	if st == nil {
		return proto.EventFloorData{Queue: []string{}, Pending: []string{}}
	}
	queue := st.Queue
	if queue == nil {
		queue = []string{}
	}
	pending := st.Pending
	if pending == nil {
		pending = []string{}
	}
	return proto.EventFloorData{
		Speaker:        st.Speaker,
		Remaining:      st.Remaining,
		Queue:          queue,
		Pending:        pending,
		Locked:         st.Locked,
		ManualApproval: st.ManualApproval,
	}
}

func matrixFromWire(in map[string][]string) perm.Matrix {
	m := make(perm.Matrix, len(in))
	for role, actions := range in {
		out := make([]perm.Action, 0, len(actions))
		for _, a := range actions {
			out = append(out, perm.Action(a))
		}
		m[perm.Role(role)] = out
	}
	return m
}

func matrixToWire(m perm.Matrix) map[string][]string {
	out := make(map[string][]string, len(m))
	for role, actions := range m {
		list := make([]string, 0, len(actions))
		for _, a := range actions {
			list = append(list, string(a))
		}
		out[string(role)] = list
	}
	return out
}
