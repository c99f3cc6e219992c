package realtime

import (
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"go.uber.org/zap"
)

// Emitter is the fanout surface other packages depend on.
type Emitter interface {
	Deliver(ids []identity.ID, event string, payload any) int
}

// Dispatcher delivers events to connected members. Delivery is fire and
// forget: nothing is acknowledged, retried or stored.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger.Named("dispatcher")}
}

// Deliver sends the event to every connected id, the sender included, and
// returns how many connections accepted it.
func (d *Dispatcher) Deliver(ids []identity.ID, event string, payload any) int {
	return d.send(d.registry.ResolveMany(ids), "", event, payload)
}

// DeliverExcept is Deliver without the origin's own connection.
func (d *Dispatcher) DeliverExcept(origin identity.ID, ids []identity.ID, event string, payload any) int {
	return d.send(d.registry.ResolveMany(ids), origin, event, payload)
}

func (d *Dispatcher) Broadcast(event string, payload any) int {
	return d.send(d.registry.All(), "", event, payload)
}

func (d *Dispatcher) BroadcastExcept(origin identity.ID, event string, payload any) int {
	return d.send(d.registry.All(), origin, event, payload)
}

func (d *Dispatcher) send(conns []Conn, skip identity.ID, event string, payload any) int {
	if len(conns) == 0 {
		return 0
	}
	frame, err := Encode(event, payload)
	if err != nil {
		d.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return 0
	}

	reached := 0
	for _, c := range conns {
		if skip != "" && c.Identity() == skip {
			continue
		}
		if !c.Send(frame) {
			d.logger.Warn("dropped event for slow connection",
				zap.String("event", event),
				zap.String("identity", string(c.Identity())),
				zap.String("conn", c.ID()),
			)
			continue
		}
		reached++
	}
	return reached
}
