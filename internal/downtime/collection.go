package downtime

import (
	"fmt"

	"github.com/rs/zerolog"

	"planboard/internal/events"
	"planboard/internal/store"
)

// Topic prefixes the events published by a Collection.
const Topic = "downtimes"

// Collection is the canonical set of downtimes. Per-resource views are derived on read.
type Collection struct {
	items *store.Collection[*Downtime]
}

// NewCollection builds a collection publishing on bus (nil for a detached copy).
func NewCollection(bus *events.EventBus, items ...*Downtime) *Collection {
	topic := Topic
	if bus == nil {
		topic = ""
	}
	return &Collection{items: store.NewCollection(topic, bus, items...)}
}

// SetLogger reports failing event handlers on l.
func (c *Collection) SetLogger(l *zerolog.Logger) {
	c.items.SetLogger(l)
}

func (c *Collection) All() []*Downtime {
	return c.items.All()
}

func (c *Collection) Len() int {
	return c.items.Len()
}

func (c *Collection) Version() uint64 {
	return c.items.Version()
}

// Get returns the downtime with id.
func (c *Collection) Get(id int64) (*Downtime, error) {
	d, ok := c.items.Find(func(d *Downtime) bool { return d.ID == id })
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return d, nil
}

// ForResource is the view of downtimes affecting one resource.
func (c *Collection) ForResource(resourceID int64) []*Downtime {
	return c.items.Filter(func(d *Downtime) bool { return d.HasResource(resourceID) })
}

func (c *Collection) Add(items ...*Downtime) {
	c.items.Add(items...)
}

// Remove deletes the downtime with id; it reports whether one was found.
func (c *Collection) Remove(id int64) bool {
	return len(c.items.RemoveFunc(func(d *Downtime) bool { return d.ID == id })) > 0
}

func (c *Collection) Reset(items []*Downtime) {
	c.items.Reset(items)
}

// Update edits a downtime in place. The change event carries a snapshot taken
// before fn ran as Previous and the edited downtime as Payload. If the edit
// leaves the downtime invalid it is rolled back.
func (c *Collection) Update(id int64, fn func(d *Downtime)) error {
	d, err := c.Get(id)
	if err != nil {
		return err
	}
	before := d.Clone()
	fn(d)
	if err := d.Validate(); err != nil {
		restore(d, before)
		return err
	}
	c.items.Touch(d, before)
	return nil
}

// Clone deep-copies every downtime into a detached collection.
func (c *Collection) Clone() *Collection {
	all := c.All()
	copies := make([]*Downtime, 0, len(all))
	for _, d := range all {
		copies = append(copies, d.Clone())
	}
	return NewCollection(nil, copies...)
}

func restore(d, from *Downtime) {
	d.ResourceIDs = from.ResourceIDs
	d.From, d.To = from.From, from.To
	d.StartTime, d.EndTime = from.StartTime, from.EndTime
	d.Zone = from.Zone
	d.TypeID = from.TypeID
	d.CreatorID = from.CreatorID
	d.Details = from.Details
	d.UpdatedAt = from.UpdatedAt
}
