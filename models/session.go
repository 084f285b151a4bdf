package models

import "time"

// Wire types shared by the HTTP server, the websocket endpoint and the
// remote client.

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type ChatReply struct {
	SessionID string  `json:"session_id"`
	Answer    *Answer `json:"answer"`
}

type SessionReply struct {
	SessionID string `json:"session_id"`
}

type MessagesReply struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// WSFrame is sent by the server over the websocket endpoint.
type WSFrame struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Answer    *Answer `json:"answer,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ArchivedSession summarises one session in the transcript archive.
type ArchivedSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
