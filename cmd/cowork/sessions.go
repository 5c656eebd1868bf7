package main

import (
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// sessionStore holds active ClientSession objects for push notifications.
type sessionStore struct {
	mu   sync.RWMutex
	data map[string]server.ClientSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{data: make(map[string]server.ClientSession)}
}

func (ss *sessionStore) set(id string, s server.ClientSession) {
	ss.mu.Lock()
	ss.data[id] = s
	ss.mu.Unlock()
}

func (ss *sessionStore) remove(id string) {
	ss.mu.Lock()
	delete(ss.data, id)
	ss.mu.Unlock()
}

func (ss *sessionStore) snapshot() []server.ClientSession {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]server.ClientSession, 0, len(ss.data))
	for _, s := range ss.data {
		out = append(out, s)
	}
	return out
}

// pushFunc returns the notifier hook that sends a JSON-RPC notification to
// every initialized session. A full channel drops the push for that session.
func (ss *sessionStore) pushFunc(logger *log.Logger) func(method string, params any) error {
	return func(method string, params any) error {
		for _, session := range ss.snapshot() {
			if !session.Initialized() {
				continue
			}
			notification := mcp.JSONRPCNotification{
				JSONRPC: mcp.JSONRPC_VERSION,
				Notification: mcp.Notification{
					Method: method,
					Params: mcp.NotificationParams{AdditionalFields: map[string]any{"params": params}},
				},
			}
			select {
			case session.NotificationChannel() <- notification:
			default:
				logger.Printf("Notifier: push to session %s dropped (channel full)", session.SessionID())
			}
		}
		return nil
	}
}
