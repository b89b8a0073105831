// Package netmon watches host network availability through
// NetworkManager's D-Bus interface. Reconnection is pointless while the
// physical link is down, so the supervisor suspends recovery until
// global connectivity returns.
package netmon

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/events"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = "/org/freedesktop/NetworkManager"
	nmInterface = "org.freedesktop.NetworkManager"

	// NM_STATE_CONNECTED_GLOBAL
	nmStateConnectedGlobal uint32 = 70
)

// Monitor tracks NetworkManager's global connectivity state.
type Monitor struct {
	conn     *dbus.Conn
	bus      *events.Bus
	onChange func(online bool)
	stopChan chan struct{}
}

// New connects to the system bus. Hosts without NetworkManager get an
// error; callers should treat that as "assume online".
func New(bus *events.Bus) (*Monitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, common.WrapError(err, "failed to connect to system bus")
	}
	return &Monitor{
		conn:     conn,
		bus:      bus,
		stopChan: make(chan struct{}),
	}, nil
}

// SetOnChange sets a callback invoked on connectivity transitions.
func (m *Monitor) SetOnChange(callback func(online bool)) {
	m.onChange = callback
}

// Online queries the current global connectivity state.
func (m *Monitor) Online() (bool, error) {
	obj := m.conn.Object(nmService, dbus.ObjectPath(nmPath))
	variant, err := obj.GetProperty(nmInterface + ".State")
	if err != nil {
		return false, common.WrapError(err, "failed to read NetworkManager state")
	}
	state, ok := variant.Value().(uint32)
	if !ok {
		return false, common.WrapError(common.ErrConnectionFailed, "unexpected NetworkManager state type")
	}
	return state == nmStateConnectedGlobal, nil
}

// Start subscribes to StateChanged signals and dispatches transitions
// until Stop is called.
func (m *Monitor) Start() error {
	if err := m.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath(nmPath)),
		dbus.WithMatchInterface(nmInterface),
		dbus.WithMatchMember("StateChanged"),
	); err != nil {
		return common.WrapError(err, "failed to subscribe to NetworkManager signals")
	}

	signals := make(chan *dbus.Signal, 16)
	m.conn.Signal(signals)

	go m.loop(signals)
	common.LogInfo("Network monitor started")
	return nil
}

// Stop ends signal dispatch and closes the bus connection.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.conn.Close()
}

func (m *Monitor) loop(signals chan *dbus.Signal) {
	var last *bool
	for {
		select {
		case <-m.stopChan:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Name != nmInterface+".StateChanged" || len(sig.Body) == 0 {
				continue
			}
			state, ok := sig.Body[0].(uint32)
			if !ok {
				continue
			}
			online := state == nmStateConnectedGlobal
			if last != nil && *last == online {
				continue
			}
			last = &online

			if online {
				common.LogInfo("Network connectivity restored")
			} else {
				common.LogWarn("Network connectivity lost (state %d)", state)
			}
			if m.bus != nil {
				m.bus.Publish(events.NetworkChangedEvent{Online: online, Timestamp: time.Now()})
			}
			if m.onChange != nil {
				m.onChange(online)
			}
		}
	}
}
