package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/query"
)

var (
	errMissingCount  = errors.New("response has no count")
	errNegativeCount = errors.New("response count is negative")
)

// envelope accepts both the {"data", "count"} shape and the paginator's
// {"results", "count"} shape.
type envelope[T any] struct {
	Count   *int `json:"count"`
	Data    []T  `json:"data"`
	Results []T  `json:"results"`
}

// HTTPSource fetches pages of T from one collection endpoint.
type HTTPSource[T any] struct {
	client   *Client
	endpoint string
}

// Compile-time interface check.
var _ fetch.Source[struct{}] = (*HTTPSource[struct{}])(nil)

// NewSource returns a source reading endpoint through c.
func NewSource[T any](c *Client, endpoint string) *HTTPSource[T] {
	return &HTTPSource[T]{client: c, endpoint: endpoint}
}

// Endpoint returns the collection path.
func (s *HTTPSource[T]) Endpoint() string { return s.endpoint }

// Fetch implements fetch.Source.
func (s *HTTPSource[T]) Fetch(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error) {
	var env envelope[T]
	if err := s.client.Get(ctx, s.endpoint, desc.Values(), &env); err != nil {
		return query.Page[T]{}, err
	}
	switch {
	case env.Count == nil:
		return query.Page[T]{}, s.malformed(errMissingCount)
	case *env.Count < 0:
		return query.Page[T]{}, s.malformed(fmt.Errorf("%w: %d", errNegativeCount, *env.Count))
	}

	items := env.Data
	if items == nil {
		items = env.Results
	}
	if items == nil {
		items = []T{}
	}
	return query.Page[T]{Items: items, TotalCount: *env.Count}, nil
}

func (s *HTTPSource[T]) malformed(err error) error {
	s.client.logger.Warn("malformed collection payload",
		zap.String("endpoint", s.endpoint),
		zap.Error(err),
	)
	return &fetch.ServerError{Err: fmt.Errorf("%s: %w", s.endpoint, err)}
}
