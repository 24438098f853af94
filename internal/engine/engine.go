package engine

import (
	"gator-overflow/internal/database"
	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Engine coordinates communication between actors
type Engine struct {
	system        *actor.ActorSystem
	questionActor *actor.PID
}

// NewEngine spawns the question actor on system. publisher may be nil.
func NewEngine(
	system *actor.ActorSystem,
	store database.QuestionRepository,
	metrics *utils.MetricsCollector,
	publisher actors.ActivityPublisher,
	cfg actors.QuestionActorConfig,
) *Engine {
	context := system.Root

	questionProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewQuestionActor(store, metrics, publisher, cfg)
	})
	questionPID := context.Spawn(questionProps)

	return &Engine{
		system:        system,
		questionActor: questionPID,
	}
}

// GetQuestionActor returns the PID of the question actor
func (e *Engine) GetQuestionActor() *actor.PID {
	return e.questionActor
}

// Stop shuts the question actor down and waits for it to finish.
func (e *Engine) Stop() error {
	return e.system.Root.StopFuture(e.questionActor).Wait()
}
