package graph

import dgraph "github.com/dominikbraun/graph"

func newStringGraph() dgraph.Graph[string, string] {
	return dgraph.New(dgraph.StringHash, dgraph.Directed())
}

func isAlreadyExists(err error) bool {
	return err == dgraph.ErrVertexAlreadyExists || err == dgraph.ErrEdgeAlreadyExists
}
