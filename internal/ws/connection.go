package ws

import (
	"context"
	"errors"
	"sync"

	"parley/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type eventHub interface {
	Connect(userID string) *Session
	Disconnect(s *Session)
	HandleEvent(s *Session, ev models.ClientEvent)
}

// Connection pumps events between one websocket and the hub. All hub
// events for a connection are handled on a single loop, so session
// state needs no locking.
type Connection struct {
	ws         wsConnection
	hub        eventHub
	sess       *Session
	fromClient chan models.ClientEvent
	errorCh    chan error
}

func NewConnection(hub eventHub, ws wsConnection, userID string) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		sess:       hub.Connect(userID),
		fromClient: make(chan models.ClientEvent),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Disconnect(c.sess)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.hub.HandleEvent(c.sess, ev)
		case ev := <-c.sess.send:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
