package planner

import (
	"errors"
	"sync/atomic"
	"time"

	"dayboard/internal/eventbus"
	"dayboard/internal/model"
	logx "dayboard/pkg/logx"
)

var ErrInvalidDate = model.ErrInvalidDate

// Options configures a Planner. Zero values pick defaults.
type Options struct {
	Clock       Clock
	Location    *time.Location
	MonthlyStep MonthlyStep
	Bus         eventbus.Bus
	Logger      logx.Logger
}

// Planner is safe for concurrent use. Location and monthly stepping may be
// swapped at runtime on config reload.
type Planner struct {
	store Store
	clock Clock
	bus   eventbus.Bus
	log   logx.Logger

	loc     atomic.Pointer[time.Location]
	monthly atomic.Int32
}

func New(store Store, opts Options) (*Planner, error) {
	if store == nil {
		return nil, errors.New("planner: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	p := &Planner{
		store: store,
		clock: opts.Clock,
		bus:   opts.Bus,
		log:   opts.Logger.With(logx.String("comp", "planner")),
	}
	p.loc.Store(opts.Location)
	p.monthly.Store(int32(opts.MonthlyStep))
	return p, nil
}

// Today returns the current calendar day in the planner's location.
func (p *Planner) Today() model.Date {
	return model.DateOf(p.clock.Now().In(p.loc.Load()))
}

func (p *Planner) Location() *time.Location { return p.loc.Load() }

func (p *Planner) SetLocation(loc *time.Location) {
	if loc != nil {
		p.loc.Store(loc)
	}
}

func (p *Planner) MonthlyStep() MonthlyStep { return MonthlyStep(p.monthly.Load()) }

func (p *Planner) SetMonthlyStep(m MonthlyStep) { p.monthly.Store(int32(m)) }

func (p *Planner) publish(typ string, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: p.clock.Now(), Data: data})
}
