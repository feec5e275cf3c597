package migration

import (
	"bytes"
	"context"
	"strconv"

	"github.com/strata-db/strata/adapter"
)

type (
	// Unit is a single named schema change. Version is the creation
	// time in epoch milliseconds and the sole total-order key. Up
	// applies the change against the adapter, Down reverses it.
	Unit struct {
		Version int64
		Name    string
		Up      func(ctx context.Context, a adapter.Adapter) error
		Down    func(ctx context.Context, a adapter.Adapter) error
	}

	Units []*Unit

	// Ref is the discovery-side view of a unit: what the artifact
	// filename alone tells us, before the unit is loaded.
	Ref struct {
		Version int64
		Name    string
		File    string
	}

	Refs []Ref

	// Loader resolves a discovered artifact to its executable unit.
	Loader interface {
		Load(name string) (*Unit, error)
	}
)

func (u *Unit) Key() string {
	return createKey(u.Version, u.Name)
}

func (r Ref) Key() string {
	return createKey(r.Version, r.Name)
}

func createKey(version int64, name string) string {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(version, 10))
	buf.WriteString("_")
	buf.WriteString(name)
	return buf.String()
}

func (m Units) Len() int {
	return len(m)
}

func (m Units) Less(i, j int) bool {
	return m[i].Version < m[j].Version
}

func (m Units) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func (r Refs) Len() int {
	return len(r)
}

func (r Refs) Less(i, j int) bool {
	return r[i].Version < r[j].Version
}

func (r Refs) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
}

func (r Refs) Names() (result []string) {
	for i := range r {
		result = append(result, r[i].Name)
	}
	return result
}
