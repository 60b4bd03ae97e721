package fleet

import (
	"sort"
	"time"
)

// Device is what the console knows about one billboard, derived entirely
// from its status topic traffic.
type Device struct {
	ID        string    `json:"id"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"last_seen"`
	LastState string    `json:"last_state,omitempty"`
	Firmware  string    `json:"firmware,omitempty"`
}

// registry tracks devices by ID. Callers hold the tracker lock.
type registry struct {
	devices      map[string]*Device
	offlineAfter time.Duration
}

func newRegistry(offlineAfter time.Duration) *registry {
	return &registry{
		devices:      make(map[string]*Device),
		offlineAfter: offlineAfter,
	}
}

// touch records a sighting of a device and returns it. Empty fields on
// the report leave the stored values alone.
func (r *registry) touch(id, state, firmware string, now time.Time) *Device {
	d, ok := r.devices[id]
	if !ok {
		d = &Device{ID: id}
		r.devices[id] = d
	}
	d.LastSeen = now
	d.Online = true
	if state != "" {
		d.LastState = state
	}
	if firmware != "" {
		d.Firmware = firmware
	}
	return d
}

// refreshOnline recomputes the online flag from last-seen ages and
// returns the devices that changed.
func (r *registry) refreshOnline(now time.Time) []Device {
	var changed []Device
	for _, d := range r.devices {
		online := now.Sub(d.LastSeen) <= r.offlineAfter
		if online != d.Online {
			d.Online = online
			changed = append(changed, *d)
		}
	}
	return changed
}

// online returns the IDs of devices currently considered online, sorted.
func (r *registry) online(now time.Time) []string {
	var ids []string
	for _, d := range r.devices {
		if now.Sub(d.LastSeen) <= r.offlineAfter {
			ids = append(ids, d.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// snapshot returns all devices sorted by ID.
func (r *registry) snapshot() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
