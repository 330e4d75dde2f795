package main

import (
	"context"
	"fmt"
	"io"

	"github.com/HerbHall/omicsview/internal/client"
	"github.com/HerbHall/omicsview/internal/collection"
	"github.com/HerbHall/omicsview/internal/config"
	"github.com/HerbHall/omicsview/internal/tables"
)

// table is a running view whose row type is fixed at startup.
type table interface {
	collection.Commands
	Name() string
	Sortable(field string) bool
	Position() (page, pageCount int)
	Render(w io.Writer) error
	Subscribe(fn func()) (unsubscribe func())
	Start(ctx context.Context) error
	Close()
}

type tableSession[T any] struct {
	*collection.View[T]
	def tables.Definition[T]
}

func newSession[T any](def tables.Definition[T], c *client.Client, opts ...collection.Option) (*tableSession[T], error) {
	v, err := collection.New(def.Config, client.NewSource[T](c, def.Config.Endpoint), opts...)
	if err != nil {
		return nil, err
	}
	return &tableSession[T]{View: v, def: def}, nil
}

func (s *tableSession[T]) Sortable(field string) bool { return s.def.Sortable(field) }

func (s *tableSession[T]) Position() (int, int) {
	st := s.Snapshot()
	return st.Descriptor.Page(), st.PageCount
}

func (s *tableSession[T]) Render(w io.Writer) error {
	return tables.Render(w, s.def, s.Snapshot())
}

func (s *tableSession[T]) Subscribe(fn func()) func() {
	return s.View.Subscribe(func(collection.State[T]) { fn() })
}

// openTable builds the named table scoped to biomarkerID.
func openTable(name string, biomarkerID int, app *config.App, c *client.Client, opts ...collection.Option) (table, error) {
	tc := app.Table(name)
	switch name {
	case tables.NameMolecules:
		return newSession(tables.Molecules(biomarkerID).Configure(app.View, tc), c, opts...)
	case tables.NameInference:
		return newSession(tables.InferenceExperiments(biomarkerID).Configure(app.View, tc), c, opts...)
	case tables.NameBiomarkers:
		return newSession(tables.Biomarkers().Configure(app.View, tc), c, opts...)
	case tables.NameTrainedModels:
		return newSession(tables.TrainedModels(biomarkerID).Configure(app.View, tc), c, opts...)
	default:
		return nil, fmt.Errorf("unknown table %q (want one of %v)", name, tables.Names)
	}
}
