package mqtt

import (
	"tagkeep/coordinator"
)

type armedMessage struct {
	RequestID string `json:"request_id"`
	Intent    string `json:"intent"`
	Origin    string `json:"origin"`
	Name      string `json:"name,omitempty"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type resultMessage struct {
	RequestID string `json:"request_id"`
	Intent    string `json:"intent"`
	Origin    string `json:"origin"`
	Outcome   string `json:"outcome"`
	UID       string `json:"uid,omitempty"`
	Name      string `json:"name,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type pingMessage struct {
	Status string `json:"status"`
	Items  int    `json:"items"`
}

type itemPayload struct {
	Name string `json:"name"`
	UID  string `json:"uid"`
	Slot int    `json:"slot"`
}

func armedPayload(p coordinator.Pending) armedMessage {
	return armedMessage{
		RequestID: p.RequestID.String(),
		Intent:    p.Request.Intent.String(),
		Origin:    p.Request.Origin.String(),
		Name:      p.Request.Label,
		TimeoutMS: p.Remaining.Milliseconds(),
	}
}

func resultPayload(ev coordinator.Event) resultMessage {
	msg := resultMessage{
		RequestID: ev.RequestID.String(),
		Intent:    ev.Intent.String(),
		Origin:    ev.Origin.String(),
		Outcome:   ev.Outcome.String(),
		UID:       ev.Entry.ID.String(),
		Name:      ev.Entry.Label,
		ElapsedMS: ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}
