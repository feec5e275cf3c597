package migration

import (
	"bytes"
	"text/template"

	"github.com/pkg/errors"
)

// TemplateData carries the placeholders stamped into generated
// boilerplate: the creation version, the sanitized name, a readable
// PascalCase identifier and the target package name.
type TemplateData struct {
	Package   string
	Version   int64
	Name      string
	ClassName string
}

const relationalTemplate = `package {{.Package}}

import (
	"context"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/migration"
)

// {{.ClassName}}
func init() {
	migration.Register(&migration.Unit{
		Version: {{.Version}},
		Name:    "{{.Name}}",
		Up: func(ctx context.Context, a adapter.Adapter) error {
			db, err := adapter.SQL(a)
			if err != nil {
				return err
			}

			_, err = db.Exec(ctx, ` + "``" + `)
			return err
		},
		Down: func(ctx context.Context, a adapter.Adapter) error {
			db, err := adapter.SQL(a)
			if err != nil {
				return err
			}

			_, err = db.Exec(ctx, ` + "``" + `)
			return err
		},
	})
}
`

const documentTemplate = `package {{.Package}}

import (
	"context"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/migration"
)

// {{.ClassName}}
func init() {
	migration.Register(&migration.Unit{
		Version: {{.Version}},
		Name:    "{{.Name}}",
		Up: func(ctx context.Context, a adapter.Adapter) error {
			docs, err := adapter.Docs(a)
			if err != nil {
				return err
			}

			return docs.Exec(ctx, adapter.OpCreateCollection, "", nil)
		},
		Down: func(ctx context.Context, a adapter.Adapter) error {
			docs, err := adapter.Docs(a)
			if err != nil {
				return err
			}

			return docs.Exec(ctx, adapter.OpDeleteOne, "", nil)
		},
	})
}
`

var relationalTmpl = template.Must(template.New("relational").Parse(relationalTemplate))
var documentTmpl = template.Must(template.New("document").Parse(documentTemplate))

// Render produces the boilerplate source of a new migration artifact
// for the given backend family.
func Render(relational bool, data TemplateData) ([]byte, error) {
	tmpl := documentTmpl
	if relational {
		tmpl = relationalTmpl
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(err, "could not render boilerplate for migration [%s]", data.Name)
	}

	return buf.Bytes(), nil
}
