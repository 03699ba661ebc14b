// Package graphql exposes processed blocks and sync status over GraphQL.
package graphql

import (
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/pkg/storage"
	"github.com/0xmhha/tron-indexer-go/pkg/syncer"
)

// StatusProvider supplies the current sync status
type StatusProvider interface {
	Status() syncer.Status
}

// Schema holds the GraphQL schema
type Schema struct {
	schema  graphql.Schema
	storage storage.BlockReader
	status  StatusProvider
	logger  *zap.Logger
}

// NewSchema builds the query schema. status may be nil, in which case
// syncStatus resolves to null.
func NewSchema(store storage.BlockReader, status StatusProvider, logger *zap.Logger) (*Schema, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Schema{storage: store, status: status, logger: logger}

	queries := graphql.Fields{
		"latestHeight": &graphql.Field{
			Type:    graphql.NewNonNull(bigIntType),
			Resolve: s.resolveLatestHeight,
		},
		"block": &graphql.Field{
			Type: blockType,
			Args: graphql.FieldConfigArgument{
				"number": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
			},
			Resolve: s.resolveBlock,
		},
		"blocks": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(blockType))),
			Description: "Blocks in [from, to], ascending; missing numbers are skipped",
			Args: graphql.FieldConfigArgument{
				"from": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
				"to":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
			},
			Resolve: s.resolveBlocks,
		},
		"syncStatus": &graphql.Field{
			Type:    syncStatusType,
			Resolve: s.resolveSyncStatus,
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queries}),
	})
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s, nil
}
