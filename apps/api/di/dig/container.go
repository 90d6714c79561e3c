package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/engage/apps/api/echo"
	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/completion"
	"github.com/trezcool/engage/core/dashboard"
	"github.com/trezcool/engage/core/optimistic"
	"github.com/trezcool/engage/core/reconcile"
	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/core/submission"
	logsvc "github.com/trezcool/engage/services/logger"
	"github.com/trezcool/engage/storage/database"
	"github.com/trezcool/engage/storage/database/pgtree"
	sqlxrepos "github.com/trezcool/engage/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// CacheParam carries the two local caches: persistent (badger) and volatile (memory).
type CacheParam struct {
	dig.In
	Persistent *cache.Cache `name:"persistent"`
	Volatile   *cache.Cache `name:"volatile"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newTree(conf *core.Config, db *sql.DB, loggerParam DBLoggerParam) *pgtree.Tree {
	return pgtree.New(db, database.DSN(conf.Database.Name, false, conf), loggerParam.Logger)
}

func newBadgerStore(conf *core.Config, logger core.Logger) *cache.BadgerStore {
	store, err := cache.OpenBadger(conf.Cache.BadgerPath, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening local cache: %v", err), err)
	}
	return store
}

type caches struct {
	dig.Out
	Persistent *cache.Cache `name:"persistent"`
	Volatile   *cache.Cache `name:"volatile"`
}

func newCaches(conf *core.Config, store *cache.BadgerStore, logger core.Logger) caches {
	ttls := cache.DefaultTTLs().WithOverrides(conf.Cache.TTLs)
	return caches{
		Persistent: cache.New("persistent", store, cache.WithTTLs(ttls), cache.WithLogger(logger)),
		Volatile:   cache.New("volatile", cache.NewMemoryStore(), cache.WithTTLs(ttls), cache.WithLogger(logger)),
	}
}

func newLoader(tree *pgtree.Tree, cp CacheParam, logger core.Logger) *rtcache.Loader {
	return rtcache.NewLoader(tree, cp.Persistent, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newCoordinator(repo activity.Repository, loader *rtcache.Loader, cp CacheParam, graph *cache.Graph, logger core.Logger) *completion.Coordinator {
	return completion.NewCoordinator(completion.Deps{
		Repo:     repo,
		Loader:   loader,
		Volatile: cp.Volatile,
		Graph:    graph,
		Logger:   logger,
	})
}

func newViews(hub *echoapi.Hub) *submission.Views {
	return submission.NewViews(hub)
}

type submissionParams struct {
	dig.In
	Conf        *core.Config
	Logger      core.Logger
	Repo        activity.Repository
	Coordinator *completion.Coordinator
	Loader      *rtcache.Loader
	Caches      CacheParam
	Graph       *cache.Graph
	Views       *submission.Views
	Processing  *submission.Processing
	Validate    *validator.Validate
}

func newSubmissionService(p submissionParams) *submission.Service {
	opts := []optimistic.Option{
		optimistic.WithWindow(p.Conf.Optimistic.Window),
		optimistic.WithExitDelay(p.Conf.Optimistic.ExitDelay),
		optimistic.WithLogger(p.Logger),
	}
	return submission.NewService(submission.Deps{
		Repo:        p.Repo,
		Coordinator: p.Coordinator,
		Loader:      p.Loader,
		Volatile:    p.Caches.Volatile,
		Graph:       p.Graph,
		Views:       p.Views,
		Processing:  p.Processing,
		Validate:    p.Validate,
		Activities:  optimistic.NewTracker[activity.Activity](opts...),
		Submissions: optimistic.NewTracker[activity.Submission](opts...),
		Logger:      p.Logger,
	})
}

func newWatcher(conf *core.Config, tree *pgtree.Tree, processing *submission.Processing, logger core.Logger) *reconcile.Watcher {
	return reconcile.NewWatcher(tree,
		reconcile.WithDebounce(conf.Reconcile.Debounce),
		reconcile.WithQuietWindow(conf.Reconcile.QuietWindow),
		reconcile.WithReloadInterval(conf.Reconcile.ReloadInterval),
		reconcile.WithGuard(processing.Reviews()),
		reconcile.WithLogger(logger),
	)
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Translator    ut.Translator
	Coordinator   *completion.Coordinator
	SubmissionSvc *submission.Service
	DashboardSvc  *dashboard.Service
	Watcher       *reconcile.Watcher
	Hub           *echoapi.Hub
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Translator:    p.Translator,
		Coordinator:   p.Coordinator,
		SubmissionSvc: p.SubmissionSvc,
		DashboardSvc:  p.DashboardSvc,
		Watcher:       p.Watcher,
		Hub:           p.Hub,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewActivityRepository))
	must(c.Provide(newTree))
	must(c.Provide(newBadgerStore))
	must(c.Provide(newCaches))
	must(c.Provide(cache.DefaultGraph))
	must(c.Provide(newLoader))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newCoordinator))
	must(c.Provide(submission.NewProcessing))
	must(c.Provide(echoapi.NewHub))
	must(c.Provide(newViews))
	must(c.Provide(newSubmissionService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newWatcher))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
