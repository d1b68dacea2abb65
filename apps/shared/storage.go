package shared

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/curriculum"
	"github.com/examprep/examadmin/storage/database"
	inmemdb "github.com/examprep/examadmin/storage/database/inmem"
	sqlxrepos "github.com/examprep/examadmin/storage/database/sqlx"
)

// Storage is the curriculum backend selected by conf.Database.Engine.
type Storage struct {
	Service *curriculum.Service
	DB      *sqlx.DB // nil with the memory engine
}

// OpenStorage opens (and migrates) the configured database.
func OpenStorage(conf *core.Config) (*Storage, error) {
	if conf.Database.Engine == database.EngineMemory {
		mem := inmemdb.Open()
		return &Storage{Service: curriculum.NewService(inmemdb.NewCurriculumRepository(mem), mem)}, nil
	}

	db, err := OpenDB(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	svc := curriculum.NewService(sqlxrepos.NewCurriculumRepository(db), database.NewTransactor(db))
	return &Storage{Service: svc, DB: db}, nil
}

// OpenDB creates the database when missing and connects to it, without migrating.
func OpenDB(conf *core.Config) (*sqlx.DB, error) {
	if conf.Database.Engine == database.EngineMemory {
		return nil, errors.New("the memory engine has no SQL database")
	}
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	return database.Open(conf)
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
