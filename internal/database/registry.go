package database

import (
	"context"
	"log/slog"
	"sync"
)

var (
	instanceMu sync.RWMutex
	instance   *Connection
)

// CreateInstance opens a connection from cfg and registers it as the
// process-wide active connection.
func CreateInstance(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	conn, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return SetInstance(conn), nil
}

// SetInstance registers conn as the active connection and returns it.
func SetInstance(conn *Connection) *Connection {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = conn
	return conn
}

// Instance returns the active connection, or nil when none is registered.
func Instance() *Connection {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}

// ResetInstance unregisters the active connection and returns it so the
// caller can close it.
func ResetInstance() *Connection {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	prev := instance
	instance = nil
	return prev
}
