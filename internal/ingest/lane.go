package ingest

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/matheus3301/wppdesk/internal/chat"
	"go.uber.org/zap"
)

type laneKey struct {
	session string
	from    string
}

type lane struct {
	ch      chan chat.InboundEvent
	pending int
}

// Enqueue hands evt to the lane of its (session, sender) pair, starting the
// lane if needed. It blocks only when that lane's buffer is full.
func (p *Pipeline) Enqueue(sessionID string, evt chat.InboundEvent) {
	if p.ctx.Err() != nil {
		return
	}
	key := laneKey{session: sessionID, from: evt.From}

	p.mu.Lock()
	l, ok := p.lanes[key]
	if !ok {
		l = &lane{ch: make(chan chat.InboundEvent, p.cfg.LaneBuffer)}
		p.lanes[key] = l
		p.wg.Add(1)
		go p.runLane(key, l)
	}
	l.pending++
	p.mu.Unlock()

	select {
	case l.ch <- evt:
	case <-p.ctx.Done():
	}
}

// runLane processes events of one lane in order and exits after an idle
// period with nothing pending.
func (p *Pipeline) runLane(key laneKey, l *lane) {
	defer p.wg.Done()
	idle := time.NewTimer(p.cfg.LaneIdle)
	defer idle.Stop()

	for {
		select {
		case evt := <-l.ch:
			p.process(key.session, evt)
			p.mu.Lock()
			l.pending--
			p.mu.Unlock()
			idle.Reset(p.cfg.LaneIdle)
		case <-idle.C:
			p.mu.Lock()
			if l.pending == 0 {
				delete(p.lanes, key)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			idle.Reset(p.cfg.LaneIdle)
		case <-p.ctx.Done():
			return
		}
	}
}

// process is the callback boundary: errors and panics are logged and never
// escape.
func (p *Pipeline) process(sessionID string, evt chat.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("panic while ingesting message",
				zap.String("session", sessionID),
				zap.String("message_id", evt.ID),
				zap.Error(fmt.Errorf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	if _, err := p.HandleMessage(p.ctx, sessionID, evt); err != nil {
		p.Logger.Error("failed to ingest message",
			zap.String("session", sessionID), zap.String("message_id", evt.ID), zap.Error(err))
	}
}
