package source

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/migration"
)

const DefaultMigrationsDir = "./migrations"

var ErrArtifactAlreadyExists = errors.New("migration artifact already exists")

// Source lists the conforming migration artifacts of a project.
type Source interface {
	Select(ctx context.Context) (migration.Refs, error)
}

// Creator writes a new migration artifact to the project.
type Creator interface {
	Create(name string, contents []byte, now time.Time) (string, error)
}

// LocalDir discovers migration artifacts in a filesystem directory.
// Filenames that do not parse as <epoch-millis>_<name>.go are
// skipped silently.
type LocalDir struct {
	dir string
	lg  logger.Logger
}

var _ Source = (*LocalDir)(nil)
var _ Creator = (*LocalDir)(nil)

func NewLocalDir(dir string, lg logger.Logger) *LocalDir {
	return &LocalDir{dir: dir, lg: lg}
}

// Select returns the refs of all conforming artifacts sorted by
// ascending version. A missing directory is an empty project, not
// an error.
func (s *LocalDir) Select(ctx context.Context) (migration.Refs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := ioutil.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "could not read migrations directory [%s]", s.dir)
	}

	var refs migration.Refs
	for i := range files {
		if files[i].IsDir() {
			continue
		}

		ref, ok := migration.ParseFilename(files[i].Name())
		if !ok {
			s.lg.Debugf("skipping [%s]: not a migration artifact", files[i].Name())
			continue
		}

		refs = append(refs, ref)
	}

	sort.Sort(refs)

	return refs, nil
}

// Create writes a new artifact named after name and now, refusing to
// overwrite an existing file. Returns the path of the written file.
func (s *LocalDir) Create(name string, contents []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create migrations directory [%s]", s.dir)
	}

	path := filepath.Join(s.dir, migration.Filename(name, now))

	if _, err := os.Stat(path); err == nil {
		return "", errors.Wrapf(ErrArtifactAlreadyExists, "[%s]", path)
	}

	if err := ioutil.WriteFile(path, contents, 0644); err != nil {
		return "", errors.Wrapf(err, "could not write migration artifact [%s]", path)
	}

	return path, nil
}
