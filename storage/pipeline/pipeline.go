// Package pipeline puts configurable stages in front of the controllers of a
// storage driver. A stage wraps the next controller in line and may answer an
// operation itself instead of passing it on.
package pipeline

import (
	"context"
	"errors"

	"github.com/honeycombio/queuerouter/config"
	"github.com/honeycombio/queuerouter/logger"
	"github.com/honeycombio/queuerouter/metrics"
	"github.com/honeycombio/queuerouter/storage"
)

type (
	QueueStage   func(next storage.QueueController) storage.QueueController
	MessageStage func(next storage.MessageController) storage.MessageController
	ClaimStage   func(next storage.ClaimController) storage.ClaimController
)

// Stage hooks any subset of the three resources. A nil hook means the stage
// has nothing to do for that resource.
type Stage struct {
	Queue   QueueStage
	Message MessageStage
	Claim   ClaimStage
}

// DataDriver serves every controller through the stages named in the
// Pipeline config section, ending with the controllers of Backend.
type DataDriver struct {
	Config  config.Config      `inject:""`
	Logger  logger.Logger      `inject:""`
	Metrics metrics.Metrics    `inject:"metrics"`
	Backend storage.DataDriver `inject:"backend"`

	// Stages maps stage names to stages. Start fills it with the built-in
	// stages when left nil.
	Stages map[string]Stage

	queues   storage.QueueController
	messages storage.MessageController
	claims   storage.ClaimController
}

var _ storage.DataDriver = (*DataDriver)(nil)

func (d *DataDriver) Start() error {
	if d.Backend == nil {
		return errors.New("missing Backend injection in pipeline DataDriver")
	}
	if d.Config == nil {
		return errors.New("missing Config injection in pipeline DataDriver")
	}
	if d.Logger == nil {
		d.Logger = &logger.NullLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = &metrics.NullMetrics{}
	}
	if d.Stages == nil {
		d.Stages = BuiltinStages(d.Logger, d.Metrics)
	}

	pc := d.Config.GetPipelineConfig()

	d.queues = d.Backend.QueueController()
	for _, s := range d.resolve("queue", pc.Queue, func(s Stage) bool { return s.Queue != nil }) {
		d.queues = s.Queue(d.queues)
	}
	d.messages = d.Backend.MessageController()
	for _, s := range d.resolve("message", pc.Message, func(s Stage) bool { return s.Message != nil }) {
		d.messages = s.Message(d.messages)
	}
	d.claims = d.Backend.ClaimController()
	for _, s := range d.resolve("claim", pc.Claim, func(s Stage) bool { return s.Claim != nil }) {
		d.claims = s.Claim(d.claims)
	}
	return nil
}

// resolve looks up the named stages that hook resource and returns them
// innermost first, so that wrapping in order leaves the first listed stage
// outermost. Unknown names are logged and skipped.
func (d *DataDriver) resolve(resource string, names []string, hooks func(Stage) bool) []Stage {
	var out []Stage
	for i := len(names) - 1; i >= 0; i-- {
		s, ok := d.Stages[names[i]]
		if !ok || !hooks(s) {
			d.Logger.Warn().WithString("stage", names[i]).WithString("resource", resource).
				Logf("skipping unknown pipeline stage")
			continue
		}
		out = append(out, s)
	}
	if len(out) > 0 {
		d.Logger.Debug().WithString("resource", resource).WithField("stages", names).
			Logf("loaded storage pipeline")
	}
	return out
}

func (d *DataDriver) QueueController() storage.QueueController     { return d.queues }
func (d *DataDriver) MessageController() storage.MessageController { return d.messages }
func (d *DataDriver) ClaimController() storage.ClaimController     { return d.claims }

func (d *DataDriver) IsAlive(ctx context.Context) bool {
	return d.Backend.IsAlive(ctx)
}
