package electionengine

import (
	"log/slog"

	httpadapter "electsys/contexts/enrollment/election-engine/adapters/http"
	"electsys/contexts/enrollment/election-engine/adapters/memory"
	"electsys/contexts/enrollment/election-engine/application/commands"
	"electsys/contexts/enrollment/election-engine/application/queries"
	"electsys/contexts/enrollment/election-engine/application/workers"
	"electsys/contexts/enrollment/election-engine/domain/entities"
	"electsys/contexts/enrollment/election-engine/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Ballot  workers.BallotRunner
	Store   *memory.Store
	Locks   *memory.LockRegistry
}

type Dependencies struct {
	Elections ports.ElectionRepository
	Courses   ports.CourseCatalog
	Students  ports.StudentDirectory
	Messages  ports.MessageBox
	Locks     ports.StudentLocks
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	electionUseCase := commands.ElectionUseCase{
		Elections: deps.Elections,
		Courses:   deps.Courses,
		Students:  deps.Students,
		Locks:     deps.Locks,
		Outbox:    deps.Outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	scheduleUseCase := queries.ScheduleUseCase{
		Elections: deps.Elections,
		Courses:   deps.Courses,
		Students:  deps.Students,
		Messages:  deps.Messages,
	}
	ballotRunner := workers.BallotRunner{
		Elections: deps.Elections,
		Courses:   deps.Courses,
		Students:  deps.Students,
		Messages:  deps.Messages,
		Outbox:    deps.Outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Elections: electionUseCase,
			Schedules: scheduleUseCase,
			Logger:    deps.Logger,
		},
		Ballot: ballotRunner,
	}
}

// NewInMemoryModule wires the module onto the memory store and lock registry,
// provisioning a lock for every seeded election's student. Used by tests and
// local runs.
func NewInMemoryModule(seed []entities.Election, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	locks := memory.NewLockRegistry()
	for _, election := range seed {
		locks.Provision(election.StudentID)
	}
	module := NewModule(Dependencies{
		Elections: store,
		Courses:   store,
		Students:  store,
		Messages:  store,
		Locks:     locks,
		Outbox:    store,
		Clock:     store,
		IDGen:     store,
		Logger:    logger,
	})
	module.Store = store
	module.Locks = locks
	return module
}
